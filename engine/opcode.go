package engine

import "github.com/cwbudde/algo-amp/control"

// Op encodes what the background worker must (re)load. It is the sole
// request contract between the dispatcher and the worker.
type Op int32

const (
	// OpNone means no pending work.
	OpNone Op = 0
	// OpLoadProfileA (re)loads the profile model into slot A.
	OpLoadProfileA Op = 1
	// OpLoadProfileB (re)loads the profile model into slot B.
	OpLoadProfileB Op = 2
	// OpLoadProfileBoth (re)loads both profile slots.
	OpLoadProfileBoth Op = 3
	// OpLoadRecurrentA (re)loads the recurrent model into slot A.
	OpLoadRecurrentA Op = 4
	// OpLoadRecurrentB (re)loads the recurrent model into slot B.
	OpLoadRecurrentB Op = 5
	// OpLoadRecurrentBoth (re)loads both recurrent slots.
	OpLoadRecurrentBoth Op = 6
	// OpLoadImpulse0 reconfigures convolution channel 0.
	OpLoadImpulse0 Op = 7
	// OpLoadImpulse1 reconfigures convolution channel 1.
	OpLoadImpulse1 Op = 8
	// OpReconcileAll reconciles every model slot and both impulse channels
	// against their currently stored paths, touching only slots that have
	// one. Used after restoring persisted state; any code above 10 decodes
	// to this operation.
	OpReconcileAll Op = 11
)

// String names the operation for logs.
func (o Op) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpLoadProfileA:
		return "load-profile-a"
	case OpLoadProfileB:
		return "load-profile-b"
	case OpLoadProfileBoth:
		return "load-profile-ab"
	case OpLoadRecurrentA:
		return "load-recurrent-a"
	case OpLoadRecurrentB:
		return "load-recurrent-b"
	case OpLoadRecurrentBoth:
		return "load-recurrent-ab"
	case OpLoadImpulse0:
		return "load-impulse-0"
	case OpLoadImpulse1:
		return "load-impulse-1"
	default:
		if o > 10 {
			return "reconcile-all"
		}
		return "unknown"
	}
}

// opForProperty maps an inbound Set target to its single-slot operation.
func opForProperty(p control.Property) Op {
	switch p {
	case control.PropProfileA:
		return OpLoadProfileA
	case control.PropProfileB:
		return OpLoadProfileB
	case control.PropRecurrentA:
		return OpLoadRecurrentA
	case control.PropRecurrentB:
		return OpLoadRecurrentB
	case control.PropImpulse0:
		return OpLoadImpulse0
	case control.PropImpulse1:
		return OpLoadImpulse1
	default:
		return OpNone
	}
}
