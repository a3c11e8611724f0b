package versioning

import (
	"encoding/base64"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// compress zstd-compresses s and base64-encodes the result so the bytes
// survive round-trip through a TEXT column regardless of driver UTF-8
// validation.
func compress(s string) (string, error) {
	compressed := zstdEncoder.EncodeAll([]byte(s), nil)
	return base64.StdEncoding.EncodeToString(compressed), nil
}

func decompress(s string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	out, err := zstdDecoder.DecodeAll(raw, nil)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
