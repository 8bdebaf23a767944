// Package dcblock removes DC offset between the neural model stage and the
// cabinet convolution stage. Amp models routinely introduce a small DC
// component that would otherwise bias the convolver and waste headroom.
package dcblock

import "math"

// defaultCutoffHz is the highpass corner. Low enough to leave the audible
// band untouched, high enough to settle quickly after a model swap.
const defaultCutoffHz = 20.0

// Blocker is a first-order DC-blocking highpass:
//
//	y[n] = x[n] - x[n-1] + r*y[n-1]
//
// with r derived from the sample rate at Init time. The zero value is
// unusable; call Init before processing.
type Blocker struct {
	r  float64
	x1 float64
	y1 float64
}

// Init configures the blocker for the given sample rate and clears state.
func (b *Blocker) Init(sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	b.r = 1.0 - 2.0*math.Pi*defaultCutoffHz/float64(sampleRate)
	b.Reset()
}

// Process filters buf in place.
func (b *Blocker) Process(buf []float64) {
	x1, y1, r := b.x1, b.y1, b.r
	for i, x := range buf {
		y := x - x1 + r*y1
		buf[i] = y
		x1 = x
		y1 = y
	}
	b.x1, b.y1 = x1, y1
}

// Reset clears the filter history without touching the coefficient.
func (b *Blocker) Reset() {
	b.x1 = 0
	b.y1 = 0
}
