package encode

import (
	"bytes"
	"image"
	"image/png"
)

// PNGEncoder encodes overlays as PNG, keeping transparency.
type PNGEncoder struct{}

func (e *PNGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *PNGEncoder) Format() string        { return "png" }
func (e *PNGEncoder) ContentType() string   { return "image/png" }
func (e *PNGEncoder) FileExtension() string { return ".png" }
