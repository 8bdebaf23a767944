//go:build !purego && amd64

package denormal

import "golang.org/x/sys/cpu"

// MXCSR control bits. DAZ lives in bit 6, FTZ in bit 15.
const (
	controlDAZ uint32 = 1 << 6
	controlFTZ uint32 = 1 << 15
)

// supported reports SSE availability. SSE2 is part of the amd64 baseline;
// the explicit check guards unusual execution environments.
func supported() bool {
	return cpu.X86.HasSSE2
}

// readControl returns the current MXCSR register value.
//
//go:noescape
func readControl() uint32

// writeControl sets the MXCSR register value.
//
//go:noescape
func writeControl(v uint32)
