package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/algo-amp/control"
)

func TestOpForProperty(t *testing.T) {
	cases := map[control.Property]Op{
		control.PropProfileA:   OpLoadProfileA,
		control.PropProfileB:   OpLoadProfileB,
		control.PropRecurrentA: OpLoadRecurrentA,
		control.PropRecurrentB: OpLoadRecurrentB,
		control.PropImpulse0:   OpLoadImpulse0,
		control.PropImpulse1:   OpLoadImpulse1,
	}
	for p, want := range cases {
		if got := opForProperty(p); got != want {
			t.Errorf("opForProperty(%v) = %v, want %v", p, got, want)
		}
	}
}

func TestOpStringDecodesHighCodesAsReconcile(t *testing.T) {
	if got := Op(11).String(); got != "reconcile-all" {
		t.Fatalf("Op(11) = %q", got)
	}
	if got := Op(23).String(); got != "reconcile-all" {
		t.Fatalf("Op(23) = %q", got)
	}
	if got := Op(9).String(); got != "unknown" {
		t.Fatalf("Op(9) = %q", got)
	}
}

func TestMutualExclusivityPerLetter(t *testing.T) {
	r := newRig(t, 16,
		WithProfileLoader(constLoader(2)),
		WithRecurrentLoader(constLoader(4)),
	)

	r.ctrl.Push(control.Set(control.PropProfileA, "/p"))
	r.e.Process(16)
	if !r.e.families[familyProfile].slots[slotA].active.Load() {
		t.Fatal("profile A not loaded")
	}

	// Loading the recurrent model into the same letter evicts the profile.
	r.ctrl.Push(control.Set(control.PropRecurrentA, "/r"))
	r.e.Process(16)

	if r.e.families[familyProfile].slots[slotA].active.Load() {
		t.Fatal("profile A still active after recurrent A load")
	}
	if got := r.e.slotPath(control.PropProfileA); got != "" {
		t.Fatalf("profile A path = %q, want empty", got)
	}
	if !r.e.families[familyRecurrent].slots[slotA].active.Load() {
		t.Fatal("recurrent A not loaded")
	}

	// The other letter is untouched by the swap.
	r.ctrl.Push(control.Set(control.PropProfileB, "/pb"))
	r.e.Process(16)
	if !r.e.families[familyRecurrent].slots[slotA].active.Load() {
		t.Fatal("recurrent A evicted by a B-letter load")
	}
}

func TestLoadBothSlotsOps(t *testing.T) {
	cases := []struct {
		name   string
		family familyID
		props  [2]control.Property
		op     Op
	}{
		{"profile", familyProfile,
			[2]control.Property{control.PropProfileA, control.PropProfileB},
			OpLoadProfileBoth},
		{"recurrent", familyRecurrent,
			[2]control.Property{control.PropRecurrentA, control.PropRecurrentB},
			OpLoadRecurrentBoth},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, 16,
				WithProfileLoader(constLoader(2)),
				WithRecurrentLoader(constLoader(4)),
			)

			r.e.stagePath(tc.props[0], "/a")
			r.e.stagePath(tc.props[1], "/b")
			if !r.e.request(tc.op, 16) {
				t.Fatal("request refused while idle")
			}

			for _, letter := range []int{slotA, slotB} {
				if !r.e.families[tc.family].slots[letter].active.Load() {
					t.Fatalf("%s slot %d not loaded by both-op", tc.name, letter)
				}
			}
		})
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	r := newRig(t, 16,
		WithProfileLoader(constLoader(2)),
		WithRecurrentLoader(constLoader(4)),
	)

	r.e.RestoreState(map[string]string{
		"profile.a":   "/p",
		"recurrent.b": "/r",
		"impulse.0":   "/cab.wav",
	})
	r.e.Process(16)
	first := r.e.SaveState()

	// Reconciling again against the now-stored paths changes nothing.
	if !r.e.request(OpReconcileAll, 16) {
		t.Fatal("request refused while idle")
	}
	second := r.e.SaveState()

	for k, v := range first {
		if second[k] != v {
			t.Fatalf("state[%q] drifted: %q -> %q", k, v, second[k])
		}
	}
	if !r.e.families[familyProfile].slots[slotA].active.Load() ||
		!r.e.families[familyRecurrent].slots[slotB].active.Load() {
		t.Fatal("slots lost activation on second reconcile")
	}
	if !r.conv[0].runnable {
		t.Fatal("impulse channel lost runnable state on second reconcile")
	}
}

func TestReconcileLoadsOnlyStagedSlots(t *testing.T) {
	r := newRig(t, 16, WithRecurrentLoader(constLoader(4)))

	r.e.RestoreState(map[string]string{
		"profile.a":   control.NoFile,
		"profile.b":   control.NoFile,
		"recurrent.a": control.NoFile,
		"recurrent.b": "/rnn/crunch.json",
		"impulse.0":   control.NoFile,
		"impulse.1":   control.NoFile,
	})
	r.e.Process(16)

	if !r.e.families[familyRecurrent].slots[slotB].active.Load() {
		t.Fatal("recurrent B not loaded")
	}
	for _, p := range []control.Property{
		control.PropProfileA, control.PropProfileB, control.PropRecurrentA,
	} {
		if got := r.e.slotPath(p); got != "" {
			t.Fatalf("slot %v = %q, want untouched", p, got)
		}
	}
	if r.conv[0].configured != "" || r.conv[1].configured != "" {
		t.Fatal("impulse channels configured without a staged path")
	}
}

func TestReconcileProfileWinsSharedLetter(t *testing.T) {
	r := newRig(t, 16,
		WithProfileLoader(constLoader(2)),
		WithRecurrentLoader(constLoader(4)),
	)

	// Both families staged for letter A: the profile load runs first and
	// evicts the recurrent staging.
	r.e.RestoreState(map[string]string{
		"profile.a":   "/p",
		"recurrent.a": "/r",
	})
	r.e.Process(16)

	if !r.e.families[familyProfile].slots[slotA].active.Load() {
		t.Fatal("profile A not loaded")
	}
	if r.e.families[familyRecurrent].slots[slotA].active.Load() {
		t.Fatal("recurrent A loaded despite profile precedence")
	}
	if got := r.e.slotPath(control.PropRecurrentA); got != "" {
		t.Fatalf("recurrent A path = %q, want cleared", got)
	}
}

func TestImpulseReloadConfiguresChannel(t *testing.T) {
	r := newRig(t, 128)
	r.ctrl.Push(control.Set(control.PropImpulse0, "/cabs/412.wav"))

	r.e.Process(128)

	c := r.conv[0]
	if c.configured != "/cabs/412.wav" {
		t.Fatalf("configured = %q", c.configured)
	}
	if c.rate != 48000 || c.bufSize != 128 {
		t.Fatalf("rate/bufsize = %d/%d, want 48000/128", c.rate, c.bufSize)
	}
	if !c.runnable {
		t.Fatal("channel not running after reload")
	}
}

func TestImpulseReloadFailureClearsPath(t *testing.T) {
	r := newRig(t, 16)
	r.conv[1].configureErr = errors.New("unreadable")
	r.ctrl.Push(control.Set(control.PropImpulse1, "/cabs/bad.wav"))

	r.e.Process(16)

	if got := r.e.slotPath(control.PropImpulse1); got != "" {
		t.Fatalf("impulse path = %q after failed reload, want empty", got)
	}
	if r.conv[1].runnable {
		t.Fatal("channel running after failed reload")
	}
	// The completion still reports both impulse channels.
	var sawImpulse bool
	for _, m := range r.drainNotify() {
		if m.Property == control.PropImpulse1 {
			sawImpulse = true
			if m.Path != control.NoFile {
				t.Fatalf("impulse.1 notified as %q, want None", m.Path)
			}
		}
	}
	if !sawImpulse {
		t.Fatal("no impulse.1 notification after failed reload")
	}
}

func TestImpulseSentinelSetSilencesChannel(t *testing.T) {
	r := newRig(t, 16)
	r.ctrl.Push(control.Set(control.PropImpulse0, "/cabs/412.wav"))
	r.e.Process(16)
	if !r.conv[0].runnable {
		t.Fatal("channel not running")
	}

	r.ctrl.Push(control.Set(control.PropImpulse0, control.NoFile))
	r.e.Process(16)
	if r.conv[0].runnable {
		t.Fatal("channel still running after sentinel set")
	}
}

func TestRequestRefusedWhileBusy(t *testing.T) {
	r := newRig(t, 16)
	r.e.busy.Store(true)
	defer r.e.busy.Store(false)

	if r.e.request(OpLoadProfileA, 16) {
		t.Fatal("request accepted while busy")
	}
}

// TestAsyncBusyProtocol exercises the full request/complete cycle against a
// real worker goroutine with a load blocked mid-flight.
func TestAsyncBusyProtocol(t *testing.T) {
	gate := newGatedLoader(constProc{v: 2})

	r := &rig{
		in:   make([]float64, 16),
		out:  make([]float64, 16),
		conv: [2]*fakeConv{{value: 7, runnable: true}, {}},
	}
	var err error
	if r.ctrl, err = control.NewQueue(control.DefaultQueueCapacity); err != nil {
		t.Fatal(err)
	}
	if r.notify, err = control.NewQueue(control.DefaultQueueCapacity); err != nil {
		t.Fatal(err)
	}
	if r.e, err = New(48000,
		WithConvolverEngines(r.conv[0], r.conv[1]),
		WithProfileLoader(gate),
	); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.e.Close)
	r.e.Bind(Ports{Input: r.in, Output: r.out, Control: r.ctrl, Notify: r.notify})

	r.impulseIn()
	r.ctrl.Push(control.Set(control.PropProfileA, "/slow.nam"))
	r.e.Process(16)

	// The worker is now parked inside Load.
	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never entered the loader")
	}
	if !r.e.Busy() {
		t.Fatal("engine not busy during in-flight load")
	}
	if r.e.PendingOp() != OpLoadProfileA {
		t.Fatalf("pending op = %v", r.e.PendingOp())
	}

	// While busy: sets only stage, restores stay pending, and the cabinet
	// stage is bypassed even though channel 0 claims runnable.
	r.ctrl.Push(control.Set(control.PropRecurrentB, "/other.json"))
	r.e.RestoreState(map[string]string{"impulse.1": "/cab.wav"})
	r.e.Process(16)

	// Dry passthrough modulo the DC blocker's tail; channel 0 would have
	// stamped 7 if the cabinet stage had run.
	if math.Abs(r.out[0]-1) > 0.01 {
		t.Fatalf("out[0] = %v during busy, want dry passthrough", r.out[0])
	}
	if got := r.e.slotPath(control.PropRecurrentB); got != "/other.json" {
		t.Fatalf("staged path = %q", got)
	}
	if r.e.PendingOp() != OpLoadProfileA {
		t.Fatalf("pending op changed to %v while busy", r.e.PendingOp())
	}
	if !r.e.restorePending.Load() {
		t.Fatal("restore ran while busy")
	}

	close(gate.release)
	r.waitIdle(t)

	// Completion is published at the next buffer boundary; the same buffer
	// also arms the deferred restore.
	r.e.Process(16)
	if len(r.drainNotify()) == 0 {
		t.Fatal("no notifications after completion")
	}
	if !r.e.families[familyProfile].slots[slotA].active.Load() {
		t.Fatal("profile A not loaded after release")
	}

	r.waitIdle(t)
	r.e.Process(16)
	if r.e.restorePending.Load() {
		t.Fatal("restore still pending after idle buffers")
	}
}
