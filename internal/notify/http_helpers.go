package notify

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
)

var httpDefaultClient = http.DefaultClient

// multipartPostJSONPlusFile POSTs a multipart form carrying one JSON
// field and one file field — the shape Discord's webhook API (and
// similar "JSON payload + attachment" endpoints) expects.
func multipartPostJSONPlusFile(ctx context.Context, url, jsonField string, jsonBody []byte, fileField, fileName string, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField(jsonField, string(jsonBody)); err != nil {
		return err
	}
	part, err := w.CreateFormFile(fileField, fileName)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return doPost(ctx, httpDefaultClient, url, w.FormDataContentType(), &buf)
}
