package perception

import "encoding/base64"

// encodeThumbnail base64-encodes a captured frame's already-JPEG-encoded
// bytes for carrying on an AlertEvent or PendingAlert (spec §3: "optional
// frame snapshot reference (base64 thumbnail...)"). No resizing: frames
// are captured at the camera's configured resolution, which spec.md
// treats as the thumbnail resolution too.
func encodeThumbnail(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}
