// Package denormal provides a scoped hardware floating-point mode toggle
// that flushes denormal numbers to zero for the duration of one audio
// processing call.
//
// Denormals show up naturally in exponentially decaying DSP state (filter
// tails, convolution tails) and are orders of magnitude slower to compute on
// x86. Enabling FTZ (flush-to-zero) and DAZ (denormals-are-zero) in the MXCSR
// register removes that cost. The guard is scoped: Enter before processing a
// buffer, Leave after, so the altered mode never escapes the audio path.
//
// On architectures without MXCSR access (or with the purego build tag) the
// guard is a no-op; ARM flushes denormals by default in the common
// configurations.
package denormal

import "runtime"

// Guard toggles FTZ/DAZ around one processing call. The zero value is ready
// for use. Enter and Leave must be called in pairs on the same goroutine;
// the guard pins the goroutine to its OS thread in between so the mode
// change cannot leak onto another thread.
type Guard struct {
	saved  uint32
	active bool
}

// Enter enables flush-to-zero and denormals-are-zero, saving the previous
// control state. No-op when the platform does not support MXCSR.
func (g *Guard) Enter() {
	if !supported() {
		return
	}
	runtime.LockOSThread()
	g.saved = readControl()
	writeControl(g.saved | controlFTZ | controlDAZ)
	g.active = true
}

// Leave restores the control state saved by Enter.
func (g *Guard) Leave() {
	if !g.active {
		return
	}
	writeControl(g.saved)
	g.active = false
	runtime.UnlockOSThread()
}

// Supported reports whether the guard manipulates hardware state on this
// platform (as opposed to being a no-op).
func Supported() bool {
	return supported()
}
