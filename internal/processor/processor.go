package processor

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"
	"time"

	"github.com/disintegration/imaging"
)

// Luma coefficients and the contrast multiplier of the enhancement map.
// These values are the numeric contract of the service: the enhanced pixel
// for (R, G, B, A) is (E, E, E, A) with E = min(255, 1.2 * luma).
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114

	contrastBoost = 1.2
)

// Processor runs the grayscale + contrast enhancement transform.
type Processor struct{}

// New creates a new Processor.
func New() *Processor {
	return &Processor{}
}

// Process decodes the input raster, applies the per-pixel enhancement map,
// and encodes the result as PNG. The returned duration is the wall-clock
// time of the pass. Output is always PNG regardless of the input format so
// the computed channel values survive losslessly.
func (p *Processor) Process(src io.Reader) ([]byte, time.Duration, error) {
	start := time.Now()

	img, err := imaging.Decode(src)
	if err != nil {
		return nil, time.Since(start), fmt.Errorf("failed to decode image: %w", err)
	}

	enhanced := imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		l := lumaR*float64(c.R) + lumaG*float64(c.G) + lumaB*float64(c.B)
		e := math.Min(255, l*contrastBoost)
		v := uint8(math.Round(e))

		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, enhanced, imaging.PNG); err != nil {
		return nil, time.Since(start), fmt.Errorf("failed to encode enhanced image: %w", err)
	}

	return buf.Bytes(), time.Since(start), nil
}
