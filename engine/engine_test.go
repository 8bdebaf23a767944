package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/cwbudde/algo-amp/control"
	"github.com/cwbudde/algo-amp/neural"
)

// constProc overwrites the buffer with a fixed value, making routing
// decisions observable at the output.
type constProc struct {
	v float64
}

func (p constProc) Process(buf []float64) {
	for i := range buf {
		buf[i] = p.v
	}
}

func (p constProc) Reset() {}

// gainProc scales the buffer, preserving the input's shape.
type gainProc struct {
	g float64
}

func (p gainProc) Process(buf []float64) {
	for i := range buf {
		buf[i] *= p.g
	}
}

func (p gainProc) Reset() {}

func constLoader(v float64) neural.Loader {
	return neural.LoaderFunc(func(string) (neural.Processor, error) {
		return constProc{v: v}, nil
	})
}

func gainLoader(g float64) neural.Loader {
	return neural.LoaderFunc(func(string) (neural.Processor, error) {
		return gainProc{g: g}, nil
	})
}

func failLoader(err error) neural.Loader {
	return neural.LoaderFunc(func(string) (neural.Processor, error) {
		return nil, err
	})
}

// gatedLoader blocks inside Load until released, for exercising the busy
// protocol.
type gatedLoader struct {
	entered chan struct{}
	release chan struct{}
	proc    neural.Processor
}

func newGatedLoader(p neural.Processor) *gatedLoader {
	return &gatedLoader{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		proc:    p,
	}
}

func (g *gatedLoader) Load(string) (neural.Processor, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.proc, nil
}

// fakeConv is a scriptable convolution engine.
type fakeConv struct {
	rate       int
	bufSize    int
	configured string
	gain       float64

	configureErr error
	ready        bool
	runnable     bool

	// value overwrites the buffer on Compute.
	value float64
}

func (f *fakeConv) SetSampleRate(rate int) { f.rate = rate }
func (f *fakeConv) SetBufferSize(size int) { f.bufSize = size }

func (f *fakeConv) Configure(path string, gain float64) error {
	if f.configureErr != nil {
		return f.configureErr
	}
	f.configured = path
	f.gain = gain
	f.ready = true
	return nil
}

func (f *fakeConv) Ready() bool { return f.ready }

func (f *fakeConv) Start(priority, policy int) error {
	f.runnable = true
	return nil
}

func (f *fakeConv) StopProcess()    {}
func (f *fakeConv) Cleanup()        {}
func (f *fakeConv) Runnable() bool  { return f.runnable }
func (f *fakeConv) SetNotRunnable() { f.runnable = false }

func (f *fakeConv) Compute(buf []float64) error {
	for i := range buf {
		buf[i] = f.value
	}
	return nil
}

// rig wires an engine to host-side buffers, queues, and fake convolution
// engines, with loads running inline unless async is requested.
type rig struct {
	e      *Engine
	in     []float64
	out    []float64
	blend  float64
	mix    float64
	ctrl   *control.Queue
	notify *control.Queue
	conv   [2]*fakeConv
}

func newRig(t *testing.T, n int, opts ...Option) *rig {
	t.Helper()

	r := &rig{
		in:   make([]float64, n),
		out:  make([]float64, n),
		conv: [2]*fakeConv{{}, {}},
	}

	var err error
	r.ctrl, err = control.NewQueue(control.DefaultQueueCapacity)
	if err != nil {
		t.Fatal(err)
	}
	r.notify, err = control.NewQueue(control.DefaultQueueCapacity)
	if err != nil {
		t.Fatal(err)
	}

	opts = append([]Option{
		WithSynchronousLoads(),
		WithConvolverEngines(r.conv[0], r.conv[1]),
	}, opts...)

	r.e, err = New(48000, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.e.Close)

	r.e.Bind(Ports{
		Input:   r.in,
		Output:  r.out,
		Blend:   &r.blend,
		Mix:     &r.mix,
		Control: r.ctrl,
		Notify:  r.notify,
	})
	return r
}

// impulseIn writes a unit impulse into the input buffer.
func (r *rig) impulseIn() {
	for i := range r.in {
		r.in[i] = 0
	}
	r.in[0] = 1
}

// drainNotify pops every pending notification.
func (r *rig) drainNotify() []control.Message {
	var msgs []control.Message
	for {
		m, ok := r.notify.Pop()
		if !ok {
			return msgs
		}
		msgs = append(msgs, m)
	}
}

// waitIdle polls until no operation is in flight.
func (r *rig) waitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for r.e.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("engine stayed busy")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewRejectsBadSampleRate(t *testing.T) {
	if _, err := New(0); !errors.Is(err, ErrSampleRate) {
		t.Fatalf("New(0): err = %v, want ErrSampleRate", err)
	}
}

func TestSaveStateDefaults(t *testing.T) {
	r := newRig(t, 16)

	state := r.e.SaveState()
	if len(state) != control.NumProperties {
		t.Fatalf("state has %d entries, want %d", len(state), control.NumProperties)
	}
	for k, v := range state {
		if v != control.NoFile {
			t.Fatalf("state[%q] = %q, want %q", k, v, control.NoFile)
		}
	}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	r := newRig(t, 16, WithProfileLoader(constLoader(1)))

	r.ctrl.Push(control.Set(control.PropProfileA, "/amps/clean.nam"))
	r.e.Process(16)

	state := r.e.SaveState()
	if state["profile.a"] != "/amps/clean.nam" {
		t.Fatalf("state[profile.a] = %q", state["profile.a"])
	}
	if state["recurrent.a"] != control.NoFile {
		t.Fatalf("state[recurrent.a] = %q, want None", state["recurrent.a"])
	}

	// A fresh engine restored from that state loads the same slot.
	r2 := newRig(t, 16, WithProfileLoader(constLoader(1)))
	r2.e.RestoreState(state)

	if r2.e.Busy() {
		t.Fatal("restore must stage, not load")
	}
	if r2.e.families[familyProfile].slots[slotA].active.Load() {
		t.Fatal("slot active before the reconciling Process call")
	}

	r2.e.Process(16)
	if !r2.e.families[familyProfile].slots[slotA].active.Load() {
		t.Fatal("slot not loaded after restore reconciliation")
	}
	if got := r2.e.slotPath(control.PropProfileA); got != "/amps/clean.nam" {
		t.Fatalf("restored path = %q", got)
	}
}

func TestRestoreIgnoresSentinelsAndUnknownKeys(t *testing.T) {
	r := newRig(t, 16)

	r.e.RestoreState(map[string]string{
		"profile.a":   control.NoFile,
		"impulse.0":   "",
		"no.such.key": "/x",
	})
	r.e.Process(16)

	if r.e.PendingOp() != OpNone {
		t.Fatalf("pending op = %v after empty restore", r.e.PendingOp())
	}
	for _, p := range stateProperties {
		if got := r.e.slotPath(p); got != "" {
			t.Fatalf("slot %v staged %q from sentinel restore", p, got)
		}
	}
}

func TestWaitCycle(t *testing.T) {
	r := newRig(t, 16)

	seen := r.e.Cycle()
	done := make(chan uint64, 1)
	go func() {
		done <- r.e.WaitCycle(seen)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		select {
		case got := <-done:
			if got <= seen {
				t.Fatalf("WaitCycle returned %d, seen %d", got, seen)
			}
			return
		default:
			if time.Now().After(deadline) {
				t.Fatal("WaitCycle never returned")
			}
			r.e.Process(16)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := newRig(t, 16)
	r.e.Close()
	r.e.Close()
}
