package engine

import (
	"sync/atomic"

	"github.com/cwbudde/algo-amp/engine/convolver"
	"github.com/cwbudde/algo-amp/neural"
)

// Slot letters. Slot A of either family is the "primary" side of the blend.
const (
	slotA = 0
	slotB = 1
)

// familyID selects one of the two neural model families.
type familyID int

const (
	familyProfile familyID = iota
	familyRecurrent
)

// pathCell is a path string readable from the audio thread while the worker
// rewrites it. Empty means no file.
type pathCell struct {
	p atomic.Pointer[string]
}

func (c *pathCell) get() string {
	if s := c.p.Load(); s != nil {
		return *s
	}
	return ""
}

func (c *pathCell) set(s string) {
	if s == "" {
		c.p.Store(nil)
		return
	}
	c.p.Store(&s)
}

// modelSlot is one loadable neural model position. The worker installs and
// clears processors; the audio thread only ever observes the activation flag
// flip after the processor pointer is in place.
type modelSlot struct {
	path   pathCell
	active atomic.Bool
	proc   atomic.Pointer[neural.Processor]
}

func (s *modelSlot) processor() neural.Processor {
	if p := s.proc.Load(); p != nil {
		return *p
	}
	return nil
}

// install publishes a loaded processor. Order matters: the pointer must be
// visible before the activation flag.
func (s *modelSlot) install(p neural.Processor) {
	s.proc.Store(&p)
	s.active.Store(true)
}

// deactivate unloads the slot but keeps its path untouched.
func (s *modelSlot) deactivate() {
	s.active.Store(false)
	s.proc.Store(nil)
}

// clear unloads the slot and forgets its path.
func (s *modelSlot) clear() {
	s.deactivate()
	s.path.set("")
}

// modelFamily groups the two slots of one model kind with its loader.
type modelFamily struct {
	loader neural.Loader
	slots  [2]modelSlot
}

// process runs every active slot of the family over buf in place.
func (f *modelFamily) process(buf []float64) {
	for i := range f.slots {
		s := &f.slots[i]
		if !s.active.Load() {
			continue
		}
		if p := s.processor(); p != nil {
			p.Process(buf)
		}
	}
}

// reset clears recurrent state in every active slot.
func (f *modelFamily) reset() {
	for i := range f.slots {
		if p := f.slots[i].processor(); p != nil {
			p.Reset()
		}
	}
}

// impulseSlot is one cabinet convolution position: a stored impulse path and
// the channel that runs it.
type impulseSlot struct {
	path    pathCell
	channel *convolver.Channel
}
