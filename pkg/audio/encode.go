package audio

import (
	"encoding/base64"
	"strings"
)

// encodeChunkSize bounds how much binary data is encoded per append so
// a single oversized buffer never turns into one giant allocation or
// argument. Must be a multiple of 3 so chunk boundaries never produce
// internal padding.
const encodeChunkSize = 48 * 1024

// EncodeChunked converts binary audio to its text-safe transport form
// (standard base64), processing the input in fixed-size chunks.
// EncodeChunked(nil) returns "".
func EncodeChunked(data []byte) string {
	var b strings.Builder
	b.Grow(base64.StdEncoding.EncodedLen(len(data)))

	for len(data) > 0 {
		n := len(data)
		if n > encodeChunkSize {
			n = encodeChunkSize
		}
		b.WriteString(base64.StdEncoding.EncodeToString(data[:n]))
		data = data[n:]
	}
	return b.String()
}

// DecodeChunked reverses EncodeChunked. For every byte sequence x,
// DecodeChunked(EncodeChunked(x)) returns x, including empty input.
func DecodeChunked(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
