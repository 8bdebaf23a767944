// Package control defines the message surface between a host and the engine:
// property get/set messages addressing the six loadable resources, and
// fixed-capacity single-producer/single-consumer queues that carry them to
// and from the audio thread without locks or allocation.
package control

// NoFile is the wire token for "no file loaded". Inside the engine an absent
// path is the empty string; the token appears only in messages and persisted
// state so existing hosts keep working.
const NoFile = "None"

// Property identifies one loadable resource slot.
type Property uint8

const (
	// PropProfileA is the sample-accurate profile model, slot A.
	PropProfileA Property = iota
	// PropProfileB is the sample-accurate profile model, slot B.
	PropProfileB
	// PropRecurrentA is the real-time recurrent model, slot A.
	PropRecurrentA
	// PropRecurrentB is the real-time recurrent model, slot B.
	PropRecurrentB
	// PropImpulse0 is impulse-response convolution channel 0.
	PropImpulse0
	// PropImpulse1 is impulse-response convolution channel 1.
	PropImpulse1

	numProperties
)

// NumProperties is the count of addressable resource slots.
const NumProperties = int(numProperties)

// String returns the stable property name used in logs and state keys.
func (p Property) String() string {
	switch p {
	case PropProfileA:
		return "profile.a"
	case PropProfileB:
		return "profile.b"
	case PropRecurrentA:
		return "recurrent.a"
	case PropRecurrentB:
		return "recurrent.b"
	case PropImpulse0:
		return "impulse.0"
	case PropImpulse1:
		return "impulse.1"
	default:
		return "unknown"
	}
}

// Kind discriminates control messages.
type Kind uint8

const (
	// KindGet requests a report of all currently loaded resources.
	// Property and Path are ignored.
	KindGet Kind = iota
	// KindSet carries a load request (inbound) or a load/unload
	// notification (outbound) for one property.
	KindSet
)

// Message is one timestamped control event. Frame is the sample offset
// within the buffer the message applies to; the engine treats all messages
// as taking effect at the buffer boundary.
type Message struct {
	Frame    int64
	Kind     Kind
	Property Property
	Path     string
}

// Get returns a KindGet message.
func Get() Message {
	return Message{Kind: KindGet}
}

// Set returns a KindSet message for the given property and path.
func Set(p Property, path string) Message {
	return Message{Kind: KindSet, Property: p, Path: path}
}

// WirePath translates an internal path to its wire form.
func WirePath(path string) string {
	if path == "" {
		return NoFile
	}
	return path
}

// InternalPath translates a wire path to its internal form.
func InternalPath(path string) string {
	if path == NoFile {
		return ""
	}
	return path
}
