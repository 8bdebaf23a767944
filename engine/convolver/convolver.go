// Package convolver wraps impulse-response convolution engines behind the
// lifecycle the amp engine's background worker drives: configure with a new
// impulse file, wait for readiness, start, and tear down again — all without
// ever letting the audio thread observe a half-configured engine.
package convolver

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
)

// Errors shared by convolution engine implementations.
var (
	ErrNotReady          = errors.New("convolver: engine not ready to start")
	ErrNotRunning        = errors.New("convolver: engine not running")
	ErrConfigureTimeout  = errors.New("convolver: configuration did not become ready")
	ErrBlockSizeMismatch = errors.New("convolver: block length differs from configured buffer size")
	ErrNotWaveFile       = errors.New("convolver: not a RIFF/WAVE file")
	ErrUnsupportedFormat = errors.New("convolver: unsupported wave encoding")
	ErrEmptyImpulse      = errors.New("convolver: impulse response is empty")
)

// State is the convolution engine lifecycle position.
type State int32

const (
	// StateNotConfigured is the initial state: no impulse loaded.
	StateNotConfigured State = iota
	// StateConfiguring is transient while Configure runs.
	StateConfiguring
	// StateReady means configuration completed and Start may be called.
	StateReady
	// StateRunning means Compute is permitted.
	StateRunning
	// StateStopped means processing stopped; Cleanup or Configure follow.
	StateStopped
	// StateCleaned means resources are released.
	StateCleaned
)

// Engine is the lifecycle surface of an impulse-response convolution engine.
// All methods except Compute and Runnable are driven from the background
// worker; Compute and Runnable are called from the audio thread, gated by
// the engine-wide busy flag so they never overlap a reconfiguration.
type Engine interface {
	SetSampleRate(rate int)
	SetBufferSize(size int)

	// Configure loads the impulse at path with the given gain and prepares
	// internal state. Ready reports true once configuration has completed.
	Configure(path string, gain float64) error
	Ready() bool

	// Start moves the engine into the running state. priority and policy
	// are host scheduling hints, opaque to the implementation.
	Start(priority, policy int) error
	StopProcess()
	Cleanup()

	Runnable() bool
	SetNotRunnable()

	// Compute convolves buf in place. Only valid while running.
	Compute(buf []float64) error
}

// readyAttempts bounds the readiness poll during reconfiguration. Each miss
// yields the worker goroutine, so a slow configuration stalls only the
// worker, never the audio path.
const readyAttempts = 1 << 16

// Channel drives one Engine through the reload/silence lifecycle on behalf
// of the background worker. It holds no path state of its own; the engine's
// slot table owns paths.
type Channel struct {
	eng Engine
	log zerolog.Logger
}

// NewChannel wraps eng. The logger is used for non-real-time lifecycle
// events only.
func NewChannel(eng Engine, log zerolog.Logger) *Channel {
	return &Channel{eng: eng, log: log}
}

// Reload tears the engine down and brings it back up with a new impulse.
// The order is strict: stop, cleanup, set sample rate and buffer size,
// configure, wait for readiness, start. On any failure the channel is left
// silent (bypassed) and the error is returned for the caller to revert the
// slot path.
//
// Reload blocks and must only run on the background worker.
func (c *Channel) Reload(path string, sampleRate, bufferSize, priority, policy int) error {
	c.Silence()
	c.eng.Cleanup()

	c.eng.SetSampleRate(sampleRate)
	c.eng.SetBufferSize(bufferSize)

	if err := c.eng.Configure(path, 1.0); err != nil {
		return fmt.Errorf("configure %s: %w", path, err)
	}

	if !c.waitReady() {
		return fmt.Errorf("%w: %s", ErrConfigureTimeout, path)
	}

	if err := c.eng.Start(priority, policy); err != nil {
		return fmt.Errorf("start after configure %s: %w", path, err)
	}

	c.log.Debug().Str("impulse", path).Int("rate", sampleRate).Int("buffer", bufferSize).
		Msg("impulse channel started")
	return nil
}

// Silence stops processing if the engine is runnable. The channel becomes a
// passthrough until the next successful Reload.
func (c *Channel) Silence() {
	if c.eng.Runnable() {
		c.eng.SetNotRunnable()
		c.eng.StopProcess()
	}
}

// Runnable reports whether Compute currently produces output.
func (c *Channel) Runnable() bool {
	return c.eng.Runnable()
}

// Compute convolves buf in place. When the engine is not runnable or
// rejects the block, buf is left untouched (bypass).
func (c *Channel) Compute(buf []float64) {
	if !c.eng.Runnable() {
		return
	}
	// A failed Compute leaves buf untouched, which is the bypass.
	_ = c.eng.Compute(buf)
}

// Shutdown stops and cleans the engine. Call once, at engine teardown.
func (c *Channel) Shutdown() {
	c.eng.StopProcess()
	c.eng.Cleanup()
}

// waitReady is the bounded retry-with-yield replacement for a readiness
// spin. It never runs on the audio thread.
func (c *Channel) waitReady() bool {
	for range readyAttempts {
		if c.eng.Ready() {
			return true
		}
		runtime.Gosched()
	}
	return false
}
