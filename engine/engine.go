package engine

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-amp/control"
	"github.com/cwbudde/algo-amp/dsp/dcblock"
	"github.com/cwbudde/algo-amp/dsp/denormal"
	"github.com/cwbudde/algo-amp/dsp/mix"
	"github.com/cwbudde/algo-amp/engine/convolver"
	"github.com/cwbudde/algo-amp/neural"
)

// ErrSampleRate is returned by New for a non-positive sample rate.
var ErrSampleRate = errors.New("engine: sample rate must be positive")

// Ports binds the engine to host-owned buffers and controls. Input and
// Output may alias (in-place processing); when they do not, the engine
// copies input to output before processing. Blend and Mix are raw control
// values in [0, mix.ControlMax]; nil means 0. Control carries host messages
// in, Notify carries engine notifications out; either may be nil.
type Ports struct {
	Input  []float64
	Output []float64

	Blend *float64
	Mix   *float64

	Control *control.Queue
	Notify  *control.Queue
}

// Engine is the two-goroutine amp modeling core. The audio thread drives
// Process; a background worker performs every blocking load. All exported
// methods other than Process are host-side and must not be called from the
// audio thread, except where noted.
type Engine struct {
	log        zerolog.Logger
	sampleRate int
	rtPriority int
	rtPolicy   int

	families    [2]modelFamily
	impulses    [2]impulseSlot
	convEngines [2]convolver.Engine

	// busy is true from request acceptance until the worker finishes.
	// restorePending defers batch reconciliation to the audio thread so it
	// is serialized with regular load traffic.
	busy           atomic.Bool
	restorePending atomic.Bool
	opCode         atomic.Int32

	reqCh       chan workRequest
	completions chan Op
	wg          sync.WaitGroup
	closeOnce   sync.Once
	syncLoads   bool

	ports Ports

	bufA      []float64
	bufB      []float64
	blendFade mix.Crossfade
	mixFade   mix.Crossfade
	dcb       dcblock.Blocker
	guard     denormal.Guard

	cycleMu    sync.Mutex
	cycleCond  *sync.Cond
	cycleCount atomic.Uint64
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger routes worker-side diagnostics to log. The audio thread never
// logs. Default is a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithProfileLoader replaces the built-in profile model loader.
func WithProfileLoader(l neural.Loader) Option {
	return func(e *Engine) { e.families[familyProfile].loader = l }
}

// WithRecurrentLoader replaces the built-in recurrent model loader.
func WithRecurrentLoader(l neural.Loader) Option {
	return func(e *Engine) { e.families[familyRecurrent].loader = l }
}

// WithConvolverEngines replaces the built-in FFT convolution engines for
// impulse channels 0 and 1.
func WithConvolverEngines(c0, c1 convolver.Engine) Option {
	return func(e *Engine) {
		e.convEngines[0] = c0
		e.convEngines[1] = c1
	}
}

// WithScheduling records the host's real-time priority and policy hints,
// forwarded to convolution engines on start.
func WithScheduling(priority, policy int) Option {
	return func(e *Engine) {
		e.rtPriority = priority
		e.rtPolicy = policy
	}
}

// WithSynchronousLoads makes load operations run inline on the calling
// goroutine instead of the background worker. Intended for hosts without a
// second scheduling context, such as offline renderers; Process then blocks
// on file I/O.
func WithSynchronousLoads() Option {
	return func(e *Engine) { e.syncLoads = true }
}

// New constructs an engine for the given sample rate. The returned engine
// is silent until models or impulses are loaded; until then Process passes
// input through unchanged.
func New(sampleRate int, opts ...Option) (*Engine, error) {
	if sampleRate <= 0 {
		return nil, ErrSampleRate
	}

	e := &Engine{
		log:        zerolog.Nop(),
		sampleRate: sampleRate,
	}
	e.families[familyProfile].loader = neural.LoaderFunc(neural.LoadProfile)
	e.families[familyRecurrent].loader = neural.LoaderFunc(neural.LoadRecurrent)

	for _, opt := range opts {
		opt(e)
	}

	// Channels are built after options so they pick up the configured
	// logger regardless of option order.
	for i := range e.impulses {
		eng := e.convEngines[i]
		if eng == nil {
			eng = convolver.NewFFT(e.log)
		}
		e.impulses[i].channel = convolver.NewChannel(eng, e.log)
	}

	e.dcb.Init(sampleRate)
	e.cycleCond = sync.NewCond(&e.cycleMu)
	e.reqCh = make(chan workRequest, 1)
	e.completions = make(chan Op, 1)

	if !e.syncLoads {
		e.wg.Add(1)
		go e.workerLoop()
	}
	return e, nil
}

// Bind attaches host buffers and queues. Call before the first Process and
// never concurrently with it.
func (e *Engine) Bind(p Ports) {
	e.ports = p
}

// SampleRate returns the rate the engine was constructed with.
func (e *Engine) SampleRate() int {
	return e.sampleRate
}

// Busy reports whether a load operation is in flight.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// PendingOp returns the operation currently armed or in flight, OpNone when
// idle.
func (e *Engine) PendingOp() Op {
	return Op(e.opCode.Load())
}

// BlendWeight returns the smoothed neural blend weight, in [0, 1].
func (e *Engine) BlendWeight() float64 {
	return e.blendFade.Weight()
}

// MixWeight returns the smoothed cabinet mix weight, in [0, 1].
func (e *Engine) MixWeight() float64 {
	return e.mixFade.Weight()
}

// Init resets all time-varying DSP state: crossfade histories, the DC
// blocker, and recurrent model state. Loaded resources stay loaded. Call on
// host activation, never concurrently with Process.
func (e *Engine) Init() {
	e.blendFade.Reset()
	e.mixFade.Reset()
	e.dcb.Reset()
	e.families[familyProfile].reset()
	e.families[familyRecurrent].reset()
}

// Close stops the background worker, waiting for an in-flight operation to
// finish, and tears down the convolution engines. The engine must not be
// used afterwards.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.reqCh)
		e.wg.Wait()
		e.impulses[0].channel.Shutdown()
		e.impulses[1].channel.Shutdown()
	})
}

// Cycle returns the number of completed Process calls. Pair with WaitCycle
// to synchronize host-side readers with buffer boundaries.
func (e *Engine) Cycle() uint64 {
	return e.cycleCount.Load()
}

// WaitCycle blocks until the cycle counter advances past seen and returns
// the new count. Callers typically pass the value of a previous Cycle call
// to wait for one full buffer to complete.
func (e *Engine) WaitCycle(seen uint64) uint64 {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	for e.cycleCount.Load() <= seen {
		e.cycleCond.Wait()
	}
	return e.cycleCount.Load()
}

// stateProperties lists every persisted slot in save order.
var stateProperties = [...]control.Property{
	control.PropProfileA,
	control.PropProfileB,
	control.PropRecurrentA,
	control.PropRecurrentB,
	control.PropImpulse0,
	control.PropImpulse1,
}

// slotPath returns the stored path for a property.
func (e *Engine) slotPath(p control.Property) string {
	switch p {
	case control.PropProfileA:
		return e.families[familyProfile].slots[slotA].path.get()
	case control.PropProfileB:
		return e.families[familyProfile].slots[slotB].path.get()
	case control.PropRecurrentA:
		return e.families[familyRecurrent].slots[slotA].path.get()
	case control.PropRecurrentB:
		return e.families[familyRecurrent].slots[slotB].path.get()
	case control.PropImpulse0:
		return e.impulses[0].path.get()
	case control.PropImpulse1:
		return e.impulses[1].path.get()
	default:
		return ""
	}
}

// stagePath stores a path for a property without triggering a load.
func (e *Engine) stagePath(p control.Property, path string) {
	switch p {
	case control.PropProfileA:
		e.families[familyProfile].slots[slotA].path.set(path)
	case control.PropProfileB:
		e.families[familyProfile].slots[slotB].path.set(path)
	case control.PropRecurrentA:
		e.families[familyRecurrent].slots[slotA].path.set(path)
	case control.PropRecurrentB:
		e.families[familyRecurrent].slots[slotB].path.set(path)
	case control.PropImpulse0:
		e.impulses[0].path.set(path)
	case control.PropImpulse1:
		e.impulses[1].path.set(path)
	}
}

// SaveState returns the persisted form of the engine: one entry per slot,
// keyed by property name, with the wire "None" token for empty slots.
func (e *Engine) SaveState() map[string]string {
	state := make(map[string]string, len(stateProperties))
	for _, p := range stateProperties {
		state[p.String()] = control.WirePath(e.slotPath(p))
	}
	return state
}

// RestoreState stages the paths recorded in state and schedules one batch
// reconciliation: the next Process call (once no operation is in flight)
// loads every staged slot in a single worker pass. Unknown keys are
// ignored; sentinel and empty values stage nothing.
func (e *Engine) RestoreState(state map[string]string) {
	staged := false
	for _, p := range stateProperties {
		v, ok := state[p.String()]
		if !ok {
			continue
		}
		path := control.InternalPath(v)
		if path == "" {
			continue
		}
		e.stagePath(p, path)
		staged = true
	}
	if staged {
		e.restorePending.Store(true)
	}
}
