package convolver

import (
	"fmt"
	"os"
	"sync/atomic"

	algofft "github.com/MeKo-Christian/algo-fft"
	vecmath "github.com/cwbudde/algo-vecmath"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

// FFT is the built-in Engine implementation: streaming overlap-add
// convolution with the impulse response loaded from a mono or multi-channel
// PCM WAV file (multi-channel impulses are mixed down).
//
// Configure performs all allocation and the kernel FFT; Compute is
// allocation-free and processes exactly one engine buffer per call.
type FFT struct {
	log zerolog.Logger

	sampleRate int
	bufferSize int

	state    atomic.Int32
	runnable atomic.Bool

	// Convolution state, valid from StateReady onward.
	blockSize    int
	kernelLen    int
	fftSize      int
	plan         *algofft.Plan[complex128]
	kernelFFT    []complex128
	inputPadded  []complex128
	outputPadded []complex128
	convResult   []float64
	tail         []float64
}

// NewFFT returns an unconfigured engine.
func NewFFT(log zerolog.Logger) *FFT {
	return &FFT{log: log}
}

// SetSampleRate records the engine sample rate used to sanity-check
// impulse files.
func (f *FFT) SetSampleRate(rate int) {
	f.sampleRate = rate
}

// SetBufferSize records the fixed block length Compute will be called with.
func (f *FFT) SetBufferSize(size int) {
	f.bufferSize = size
}

// State returns the current lifecycle state.
func (f *FFT) State() State {
	return State(f.state.Load())
}

// Configure loads the impulse at path, applies gain, and prepares the
// overlap-add state for the configured buffer size.
func (f *FFT) Configure(path string, gain float64) error {
	f.state.Store(int32(StateConfiguring))

	kernel, irRate, err := loadImpulse(path)
	if err != nil {
		f.state.Store(int32(StateNotConfigured))
		return err
	}
	if irRate != f.sampleRate {
		// Resampling is out of scope; a mismatched impulse still convolves,
		// just with a shifted frequency response.
		f.log.Warn().Str("impulse", path).Int("impulse_rate", irRate).
			Int("engine_rate", f.sampleRate).Msg("impulse sample rate mismatch")
	}
	if gain != 1.0 {
		vecmath.ScaleBlock(kernel, kernel, gain)
	}

	blockSize := f.bufferSize
	if blockSize <= 0 {
		f.state.Store(int32(StateNotConfigured))
		return fmt.Errorf("convolver: buffer size not set before configure (%s)", path)
	}

	fftSize := nextPowerOf2(blockSize + len(kernel) - 1)
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		f.state.Store(int32(StateNotConfigured))
		return fmt.Errorf("convolver: FFT plan (size %d): %w", fftSize, err)
	}

	kernelFFT := make([]complex128, fftSize)
	kernelPadded := make([]complex128, fftSize)
	for i, v := range kernel {
		kernelPadded[i] = complex(v, 0)
	}
	if err := plan.Forward(kernelFFT, kernelPadded); err != nil {
		f.state.Store(int32(StateNotConfigured))
		return fmt.Errorf("convolver: kernel FFT: %w", err)
	}

	f.blockSize = blockSize
	f.kernelLen = len(kernel)
	f.fftSize = fftSize
	f.plan = plan
	f.kernelFFT = kernelFFT
	f.inputPadded = make([]complex128, fftSize)
	f.outputPadded = make([]complex128, fftSize)
	f.convResult = make([]float64, blockSize+len(kernel)-1)
	f.tail = make([]float64, len(kernel)-1)

	f.state.Store(int32(StateReady))
	return nil
}

// Ready reports whether configuration has completed.
func (f *FFT) Ready() bool {
	return f.State() == StateReady
}

// Start moves the engine into the running state. The scheduling hints are
// recorded for diagnostics only; convolution runs inline on the caller's
// buffer.
func (f *FFT) Start(priority, policy int) error {
	if f.State() != StateReady {
		return ErrNotReady
	}
	f.state.Store(int32(StateRunning))
	f.runnable.Store(true)
	f.log.Debug().Int("priority", priority).Int("policy", policy).Msg("convolver running")
	return nil
}

// StopProcess halts processing. The engine keeps its configuration until
// Cleanup.
func (f *FFT) StopProcess() {
	f.runnable.Store(false)
	f.state.Store(int32(StateStopped))
}

// Cleanup releases the convolution state.
func (f *FFT) Cleanup() {
	f.plan = nil
	f.kernelFFT = nil
	f.inputPadded = nil
	f.outputPadded = nil
	f.convResult = nil
	f.tail = nil
	f.state.Store(int32(StateCleaned))
}

// Runnable reports whether Compute produces output.
func (f *FFT) Runnable() bool {
	return f.runnable.Load()
}

// SetNotRunnable drops the runnable flag ahead of StopProcess so the audio
// thread stops calling Compute before teardown begins.
func (f *FFT) SetNotRunnable() {
	f.runnable.Store(false)
}

// Compute convolves one block in place. buf must have the configured buffer
// size. Allocation-free.
func (f *FFT) Compute(buf []float64) error {
	if f.State() != StateRunning {
		return ErrNotRunning
	}
	if len(buf) != f.blockSize {
		return fmt.Errorf("%w: got %d, configured %d", ErrBlockSizeMismatch, len(buf), f.blockSize)
	}

	clear(f.inputPadded)
	for i, v := range buf {
		f.inputPadded[i] = complex(v, 0)
	}

	if err := f.plan.Forward(f.inputPadded, f.inputPadded); err != nil {
		return fmt.Errorf("convolver: forward FFT: %w", err)
	}
	for i := range f.outputPadded {
		f.outputPadded[i] = f.inputPadded[i] * f.kernelFFT[i]
	}
	if err := f.plan.Inverse(f.outputPadded, f.outputPadded); err != nil {
		return fmt.Errorf("convolver: inverse FFT: %w", err)
	}

	resultLen := f.blockSize + f.kernelLen - 1
	for i := range resultLen {
		f.convResult[i] = real(f.outputPadded[i])
	}

	// Overlap-add the previous block's tail.
	if len(f.tail) > 0 {
		n := min(len(f.tail), resultLen)
		vecmath.AddBlockInPlace(f.convResult[:n], f.tail[:n])
	}

	copy(buf, f.convResult[:f.blockSize])

	// Save the new tail for the next block.
	newTail := resultLen - f.blockSize
	copy(f.tail[:newTail], f.convResult[f.blockSize:resultLen])
	clear(f.tail[newTail:])

	return nil
}

// nextPowerOf2 returns the smallest power of two >= n.
func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// loadImpulse decodes a PCM WAV impulse response into a normalized mono
// float64 kernel.
func loadImpulse(path string) ([]float64, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("convolver: opening impulse: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotWaveFile, path)
	}
	if dec.WavAudioFormat != 1 {
		return nil, 0, fmt.Errorf("%w: format %d (want PCM)", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("convolver: decoding impulse %s: %w", path, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrEmptyImpulse, path)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	var norm float64
	switch dec.BitDepth {
	case 8:
		norm = 1 << 7
	case 16:
		norm = 1 << 15
	case 24:
		norm = 1 << 23
	case 32:
		norm = 1 << 31
	default:
		norm = 1 << 15
	}

	// Mix interleaved frames down to mono.
	frames := len(buf.Data) / channels
	kernel := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for ch := range channels {
			sum += float64(buf.Data[i*channels+ch])
		}
		kernel[i] = sum / (float64(channels) * norm)
	}

	return kernel, buf.Format.SampleRate, nil
}
