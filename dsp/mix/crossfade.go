package mix

// ControlMax is the upper bound of the raw crossfade control range.
// Hosts deliver blend/mix controls as values in [0, ControlMax]; the
// smoother normalizes them to [0, 1].
const ControlMax = 1000.0

const (
	// controlScale maps the raw control range onto [0, 1].
	controlScale = 1.0 / ControlMax

	// pole is the one-pole smoothing coefficient. The resulting time
	// constant does not scale with sample rate.
	pole = 0.999
)

// Crossfade blends two equal-length signal buffers with a one-pole smoothed
// interpolation weight. The smoothing state persists across buffers so that
// abrupt control changes or source re-routing never produce clicks.
//
// Per sample: h = target + pole*h'; out = a*(1-h) + b*h, where
// target = control/ControlMax. The weight converges monotonically toward the
// target and stays within [0, 1] for any control in range.
type Crossfade struct {
	h [2]float64
}

// Blend mixes a and b into out using the raw control value in
// [0, ControlMax]. out may alias a or b. All three slices must have the
// same length.
func (c *Crossfade) Blend(out, a, b []float64, control float64) {
	target := controlScale * control * (1.0 - pole)
	h1 := c.h[1]

	for i := range out {
		h0 := target + pole*h1
		out[i] = a[i]*(1.0-h0) + b[i]*h0
		h1 = h0
	}

	c.h[0] = h1
	c.h[1] = h1
}

// Weight returns the most recent smoothed interpolation weight.
func (c *Crossfade) Weight() float64 {
	return c.h[1]
}

// Reset clears the smoothing history. Call on DSP (re)initialization.
func (c *Crossfade) Reset() {
	c.h[0] = 0
	c.h[1] = 0
}
