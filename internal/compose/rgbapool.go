package compose

import (
	"image"
	"sync"
)

type rasterSize struct {
	w, h int
}

// Layer rasters are keyed by canvas size. A service usually renders only a
// handful of distinct sizes, so the map stays small.
var rasterPools sync.Map // rasterSize -> *sync.Pool

// getRaster returns a transparent w×h raster, reusing a pooled one if possible.
func getRaster(w, h int) *image.RGBA {
	if p, ok := rasterPools.Load(rasterSize{w, h}); ok {
		if v := p.(*sync.Pool).Get(); v != nil {
			img := v.(*image.RGBA)
			clear(img.Pix)
			return img
		}
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// putRaster hands a raster back for reuse. The caller must not touch it
// afterwards.
func putRaster(img *image.RGBA) {
	if img == nil {
		return
	}
	p, _ := rasterPools.LoadOrStore(rasterSize{img.Rect.Dx(), img.Rect.Dy()}, &sync.Pool{})
	p.(*sync.Pool).Put(img)
}
