package notify

import "encoding/base64"

// decodeThumbnail decodes an AlertEvent's base64 thumbnail field.
func decodeThumbnail(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
