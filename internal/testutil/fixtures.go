package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes samples (range [-1, 1]) as a 16-bit mono PCM WAV file and
// returns its path. The file lives in a test temp directory.
func WriteWAV(t *testing.T, name string, samples []float64, sampleRate int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		v := int(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		buf.Data[i] = v
	}

	if err := enc.Write(buf); err != nil {
		t.Fatalf("encoding %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// WriteProfileModel writes a minimal valid profile model file and returns
// its path.
func WriteProfileModel(t *testing.T, name string) string {
	t.Helper()
	return writeFixture(t, name, `{
		"version": "0.5.2",
		"architecture": "WaveNet",
		"config": {},
		"weights": [0.0, 0.1, -0.1]
	}`)
}

// WriteRecurrentModel writes a minimal valid recurrent model file and
// returns its path.
func WriteRecurrentModel(t *testing.T, name string) string {
	t.Helper()
	return writeFixture(t, name, `{
		"in_shape": [1, 1, 1],
		"layers": [{"type": "lstm", "shape": [1, 1, 8]}]
	}`)
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
