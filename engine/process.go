package engine

import (
	"github.com/cwbudde/algo-amp/control"
	"github.com/cwbudde/algo-amp/dsp/mix"
)

// Process runs one audio buffer of n samples through the chain:
// control intake, neural stage with blend crossfade, DC blocker, cabinet
// convolution stage with mix crossfade, notifications, cycle broadcast.
//
// Process is the only method meant for the audio thread. It never blocks on
// the worker: resources mid-replacement are simply skipped for the buffer,
// so a load in flight degrades the chain to a passthrough of the affected
// stage rather than a stall.
func (e *Engine) Process(n int) {
	if n <= 0 {
		return
	}

	e.guard.Enter()

	in := e.ports.Input[:n]
	out := e.ports.Output[:n]

	e.drainControl(n)

	// A restored state reconciles in one batch once no other operation is
	// in flight.
	if e.restorePending.Load() && !e.busy.Load() {
		if e.request(OpReconcileAll, n) {
			e.restorePending.Store(false)
		}
	}

	if &out[0] != &in[0] {
		copy(out, in)
	}

	e.ensureScratch(n)
	bufA := e.bufA[:n]
	bufB := e.bufB[:n]

	e.neuralStage(out, bufA, bufB)
	e.dcb.Process(out)
	e.cabinetStage(out, bufA, bufB)

	// Publish completions at the buffer boundary only.
	select {
	case <-e.completions:
		e.notifyLoadedState()
		e.opCode.Store(int32(OpNone))
	default:
	}

	e.cycleCount.Add(1)
	e.cycleCond.Broadcast()

	e.guard.Leave()
}

// drainControl consumes every queued host message before the buffer's DSP.
func (e *Engine) drainControl(n int) {
	q := e.ports.Control
	if q == nil {
		return
	}
	for {
		m, ok := q.Pop()
		if !ok {
			return
		}
		switch m.Kind {
		case control.KindGet:
			e.notifyCurrent()
		case control.KindSet:
			e.handleSet(m, n)
		}
	}
}

// handleSet stages the requested path and, when no operation is in flight,
// arms the matching load. A set arriving while busy still stages the path;
// the host retries or a later batch reconciliation picks it up.
func (e *Engine) handleSet(m control.Message, n int) {
	op := opForProperty(m.Property)
	if op == OpNone {
		return
	}
	e.stagePath(m.Property, control.InternalPath(m.Path))
	if !e.busy.Load() {
		e.request(op, n)
	}
}

// neuralStage routes the two model families onto the scratch buffers and
// blends or selects per the active-slot pattern. With no active slot, out
// carries the dry input through.
func (e *Engine) neuralStage(out, bufA, bufB []float64) {
	copy(bufA, out)
	copy(bufB, out)

	profA := e.families[familyProfile].slots[slotA].active.Load()
	profB := e.families[familyProfile].slots[slotB].active.Load()
	recA := e.families[familyRecurrent].slots[slotA].active.Load()
	recB := e.families[familyRecurrent].slots[slotB].active.Load()

	// The family holding an active A slot drives buffer a; the other
	// family drives buffer b. Ties (no A slot anywhere) default the
	// profile family to b.
	if profA {
		e.families[familyProfile].process(bufA)
		e.families[familyRecurrent].process(bufB)
	} else {
		e.families[familyRecurrent].process(bufA)
		e.families[familyProfile].process(bufB)
	}

	switch {
	case (profA && recB) || (profB && recA):
		e.blendFade.Blend(out, bufA, bufB, e.controlValue(e.ports.Blend))
	case profA || recA:
		copy(out, bufA)
	case profB:
		copy(out, bufB)
	case recB:
		// A lone recurrent B still lands on buffer a (no active A slot
		// anywhere puts the recurrent family on a).
		copy(out, bufA)
	}
}

// cabinetStage runs both convolution channels over copies of the neural
// output and blends or selects the runnable ones. Channels are skipped
// entirely while a load is in flight so a reconfiguring engine is never
// touched from the audio thread.
func (e *Engine) cabinetStage(out, bufA, bufB []float64) {
	copy(bufA, out)
	copy(bufB, out)

	busy := e.busy.Load()
	run0 := !busy && e.impulses[0].channel.Runnable()
	run1 := !busy && e.impulses[1].channel.Runnable()

	if run0 {
		e.impulses[0].channel.Compute(bufA)
	}
	if run1 {
		e.impulses[1].channel.Compute(bufB)
	}

	switch {
	case run0 && run1:
		e.mixFade.Blend(out, bufA, bufB, e.controlValue(e.ports.Mix))
	case run0:
		copy(out, bufA)
	case run1:
		copy(out, bufB)
	}
}

// controlValue dereferences a host control port, clamped to the crossfade
// range. A nil port reads as 0.
func (e *Engine) controlValue(p *float64) float64 {
	if p == nil {
		return 0
	}
	v := *p
	if v < 0 {
		return 0
	}
	if v > mix.ControlMax {
		return mix.ControlMax
	}
	return v
}

// ensureScratch sizes the scratch buffers for n samples. Allocates only
// when the host grows its buffer, which hosts do outside of real-time use.
func (e *Engine) ensureScratch(n int) {
	if len(e.bufA) < n {
		e.bufA = make([]float64, n)
		e.bufB = make([]float64, n)
	}
}

// notifyCurrent answers a Get: one set notification per slot holding a
// path, in stable property order.
func (e *Engine) notifyCurrent() {
	q := e.ports.Notify
	if q == nil {
		return
	}
	for _, p := range stateProperties {
		if path := e.slotPath(p); path != "" {
			q.Push(control.Set(p, path))
		}
	}
}

// notifyLoadedState reports the post-operation state after a completion:
// first the model slots that ended up empty (their unload side of a swap),
// then the model slots holding a file, then both impulse channels
// unconditionally. Hosts that mirror state see removals before additions.
func (e *Engine) notifyLoadedState() {
	q := e.ports.Notify
	if q == nil {
		return
	}

	model := stateProperties[:4]
	for _, p := range model {
		if e.slotPath(p) == "" {
			q.Push(control.Set(p, control.NoFile))
		}
	}
	for _, p := range model {
		if path := e.slotPath(p); path != "" {
			q.Push(control.Set(p, path))
		}
	}
	q.Push(control.Set(control.PropImpulse0, control.WirePath(e.impulses[0].path.get())))
	q.Push(control.Set(control.PropImpulse1, control.WirePath(e.impulses[1].path.get())))
}
