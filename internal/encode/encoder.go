// Package encode turns a composited overlay into PNG, JPEG or WebP bytes.
package encode

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"
)

// Encoder encodes an image into output bytes.
type Encoder interface {
	// Encode encodes an image to bytes in the output format.
	Encode(img image.Image) ([]byte, error)

	// Format returns the format name (e.g. "jpeg", "png", "webp").
	Format() string

	// ContentType returns the MIME type of the encoded bytes.
	ContentType() string

	// FileExtension returns the appropriate file extension.
	FileExtension() string
}

// NewEncoder creates an encoder for the given format and quality. The format
// may be a short name ("png") or a MIME type ("image/png"), as sent in a
// map request's FORMAT parameter.
func NewEncoder(format string, quality int) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg", "image/jpeg", "image/jpg":
		return &JPEGEncoder{Quality: quality}, nil
	case "png", "image/png":
		return &PNGEncoder{}, nil
	case "webp", "image/webp":
		return newWebPEncoder(quality)
	default:
		return nil, fmt.Errorf("unsupported image format: %q (supported: png, jpeg, webp)", format)
	}
}

// FormatForPath guesses the output format from a file name's extension.
func FormatForPath(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png", true
	case ".jpg", ".jpeg":
		return "jpeg", true
	case ".webp":
		return "webp", true
	default:
		return "", false
	}
}
