package iftpatch

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Decoder expands a compressed patch payload. dict is the compression
// dictionary the payload was encoded against, nil for payloads encoded
// without one. sizeHint is the declared uncompressed length; decoders use
// it to bound the output, payloads expanding beyond it are broken.
//
// Decoder is an interface so tests can substitute deterministic fakes and
// clients can plug in alternative brotli bindings.
type Decoder interface {
	Decode(compressed, dict []byte, sizeHint int) ([]byte, error)
}

// BrotliDecoder decodes the shared-brotli streams of the patch formats.
// The zero value is ready for use.
type BrotliDecoder struct{}

// Decode implements the Decoder interface.
func (BrotliDecoder) Decode(compressed, dict []byte, sizeHint int) ([]byte, error) {
	if sizeHint < 0 {
		return nil, fmt.Errorf("brotli: negative size hint %d", sizeHint)
	}
	r := brotli.NewReaderWithOptions(bytes.NewReader(compressed), brotli.ReaderOptions{
		CustomDictionary: dict,
	})
	out := bytes.Buffer{}
	out.Grow(sizeHint)
	// read one byte past the declared length to detect oversized payloads
	n, err := io.Copy(&out, io.LimitReader(r, int64(sizeHint)+1))
	if err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}
	if n > int64(sizeHint) {
		return nil, fmt.Errorf("brotli: payload expands beyond declared %d bytes", sizeHint)
	}
	return out.Bytes(), nil
}
