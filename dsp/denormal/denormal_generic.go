//go:build purego || !amd64

package denormal

const (
	controlDAZ uint32 = 0
	controlFTZ uint32 = 0
)

func supported() bool { return false }

func readControl() uint32 { return 0 }

func writeControl(uint32) {}
