package encode

import (
	"bytes"
	"image"

	"github.com/gen2brain/webp"
)

// WebPEncoder encodes overlays as WebP using a pure-Go (WASM-based) encoder.
// It uses a system libwebp via purego if available, otherwise the WASM build.
// Quality 100 selects lossless encoding, which keeps overlay edges crisp.
type WebPEncoder struct {
	Quality int
}

func newWebPEncoder(quality int) (Encoder, error) {
	if quality <= 0 {
		quality = 85
	}
	return &WebPEncoder{Quality: quality}, nil
}

func (e *WebPEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	opts := webp.Options{
		Lossless: e.Quality >= 100,
		Quality:  e.Quality,
	}
	if err := webp.Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *WebPEncoder) Format() string        { return "webp" }
func (e *WebPEncoder) ContentType() string   { return "image/webp" }
func (e *WebPEncoder) FileExtension() string { return ".webp" }
