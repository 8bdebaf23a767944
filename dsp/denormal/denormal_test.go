package denormal

import "testing"

func TestGuardEnterLeave(t *testing.T) {
	var g Guard

	// Must be safe regardless of platform support.
	g.Enter()
	g.Leave()

	// Leave without Enter is a no-op.
	var g2 Guard
	g2.Leave()
}

func TestGuardRestoresControlState(t *testing.T) {
	if !Supported() {
		t.Skip("no MXCSR on this platform")
	}

	before := readControl()

	var g Guard
	g.Enter()
	inside := readControl()
	if inside&controlFTZ == 0 || inside&controlDAZ == 0 {
		t.Fatalf("FTZ/DAZ not set inside guard: %#x", inside)
	}
	g.Leave()

	after := readControl()
	if after != before {
		t.Fatalf("control state not restored: before %#x, after %#x", before, after)
	}
}

func TestGuardReentry(t *testing.T) {
	var g Guard
	for range 3 {
		g.Enter()
		g.Leave()
	}
}
