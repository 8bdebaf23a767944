package engine

import "github.com/cwbudde/algo-amp/control"

// workRequest is one unit of background work. bufSize is the buffer length
// observed when the request was issued; convolution engines are configured
// against it.
type workRequest struct {
	op      Op
	bufSize int
}

// request arms the state machine with op. Returns false without side
// effects when an operation is already in flight. Only the audio thread
// calls request, so the load/store pair on busy cannot race with another
// requester.
func (e *Engine) request(op Op, bufSize int) bool {
	if e.busy.Load() {
		return false
	}
	e.busy.Store(true)
	e.opCode.Store(int32(op))

	req := workRequest{op: op, bufSize: bufSize}
	if e.syncLoads {
		e.apply(req)
		e.finish(op)
		return true
	}

	// Capacity one and the busy flag together guarantee space here.
	e.reqCh <- req
	return true
}

// finish clears the busy flag and publishes the completion for the
// dispatcher to pick up at the next buffer boundary.
func (e *Engine) finish(op Op) {
	e.busy.Store(false)
	select {
	case e.completions <- op:
	default:
	}
}

// workerLoop runs every blocking operation on a single goroutine until the
// request channel closes.
func (e *Engine) workerLoop() {
	defer e.wg.Done()
	for req := range e.reqCh {
		e.apply(req)
		e.finish(req.op)
	}
}

// apply executes one operation. Runs on the worker goroutine (or inline
// under synchronous loads); never on the audio thread alongside Process
// DSP, because the busy flag gates every audio-side touch of the resources
// being replaced.
func (e *Engine) apply(req workRequest) {
	switch req.op {
	case OpLoadProfileA:
		e.loadModel(familyProfile, slotA)
	case OpLoadProfileB:
		e.loadModel(familyProfile, slotB)
	case OpLoadProfileBoth:
		e.loadModel(familyProfile, slotA)
		e.loadModel(familyProfile, slotB)
	case OpLoadRecurrentA:
		e.loadModel(familyRecurrent, slotA)
	case OpLoadRecurrentB:
		e.loadModel(familyRecurrent, slotB)
	case OpLoadRecurrentBoth:
		e.loadModel(familyRecurrent, slotA)
		e.loadModel(familyRecurrent, slotB)
	case OpLoadImpulse0:
		e.reloadImpulse(0, req.bufSize)
	case OpLoadImpulse1:
		e.reloadImpulse(1, req.bufSize)
	default:
		if req.op > 10 {
			e.reconcileAll(req.bufSize)
		}
	}
}

// loadModel loads the staged path of one slot and unloads the other
// family's same-lettered slot: at most one family may drive a given letter.
// An empty staged path unloads the slot. A failed load clears the slot so
// the next state report shows it empty.
func (e *Engine) loadModel(id familyID, letter int) {
	fam := &e.families[id]
	slot := &fam.slots[letter]

	if path := slot.path.get(); path == "" {
		slot.deactivate()
	} else {
		proc, err := fam.loader.Load(path)
		if err != nil {
			e.log.Warn().Err(err).Str("path", path).
				Str("slot", slotName(id, letter)).Msg("model load failed")
			slot.clear()
		} else {
			slot.install(proc)
			e.log.Info().Str("path", path).
				Str("slot", slotName(id, letter)).Msg("model loaded")
		}
	}

	e.families[1-id].slots[letter].clear()
}

// reloadImpulse reconfigures one convolution channel against its staged
// path. A failed reload leaves the channel silent and clears the path.
func (e *Engine) reloadImpulse(idx, bufSize int) {
	sl := &e.impulses[idx]

	path := sl.path.get()
	if path == "" {
		sl.channel.Silence()
		return
	}

	if err := sl.channel.Reload(path, e.sampleRate, bufSize, e.rtPriority, e.rtPolicy); err != nil {
		e.log.Warn().Err(err).Str("path", path).Int("channel", idx).
			Msg("impulse reload failed")
		sl.path.set("")
		return
	}
	e.log.Info().Str("path", path).Int("channel", idx).Msg("impulse loaded")
}

// reconcileAll brings every slot in line with its stored path in one pass:
// model slots with a path are (re)loaded, empty impulse channels are
// silenced. Model order matters because loading a slot clears the sibling
// family's path; profile paths win over recurrent ones staged for the same
// letter, matching the precedence of individual loads.
func (e *Engine) reconcileAll(bufSize int) {
	for _, id := range [...]familyID{familyProfile, familyRecurrent} {
		for letter := slotA; letter <= slotB; letter++ {
			if e.families[id].slots[letter].path.get() != "" {
				e.loadModel(id, letter)
			}
		}
	}
	for idx := range e.impulses {
		e.reloadImpulse(idx, bufSize)
	}
}

// slotName labels a model slot for logs.
func slotName(id familyID, letter int) string {
	props := [2][2]control.Property{
		{control.PropProfileA, control.PropProfileB},
		{control.PropRecurrentA, control.PropRecurrentB},
	}
	return props[id][letter].String()
}
