// Package neural defines the model surface of the amp engine: the processor
// interface the audio path runs, and loaders for the two model file families
// (sample-accurate "profile" captures and real-time recurrent networks).
//
// The package deliberately does not implement network inference. Hosts inject
// a real backend through the Loader interface; the built-in loaders validate
// and parse the JSON model headers and return a level-matching pass-through
// processor, so the engine's load/swap/crossfade machinery is fully
// exercisable without an inference dependency.
package neural

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Errors reported by the built-in loaders.
var (
	ErrNotModelFile = errors.New("neural: not a recognized model file")
	ErrEmptyWeights = errors.New("neural: model file carries no weights")
	ErrEmptyNetwork = errors.New("neural: model file describes no layers")
)

// Processor is one loaded model. Process runs the model over buf in place;
// it must not allocate or block. Reset clears any recurrent state.
type Processor interface {
	Process(buf []float64)
	Reset()
}

// Loader parses a model file and returns a ready Processor. Load runs on the
// engine's background worker and may block on I/O; it must never panic.
type Loader interface {
	Load(path string) (Processor, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(path string) (Processor, error)

// Load calls f.
func (f LoaderFunc) Load(path string) (Processor, error) {
	return f(path)
}

// targetLoudnessDB is the playback level profile models are normalized to
// when the file carries loudness metadata.
const targetLoudnessDB = -18.0

// gainStage is the pass-through processor returned by the built-in loaders.
type gainStage struct {
	gain float64
}

func (g *gainStage) Process(buf []float64) {
	if g.gain == 1.0 {
		return
	}
	for i := range buf {
		buf[i] *= g.gain
	}
}

func (g *gainStage) Reset() {}

// profileFile is the header of a profile capture file (a JSON document with
// architecture metadata and a flat weight vector).
type profileFile struct {
	Version      string          `json:"version"`
	Architecture string          `json:"architecture"`
	Config       json.RawMessage `json:"config"`
	Weights      []float64       `json:"weights"`
	Metadata     struct {
		Loudness *float64 `json:"loudness"`
	} `json:"metadata"`
}

// LoadProfile parses a profile model file. The file must be a JSON document
// naming an architecture and carrying a non-empty weight vector.
func LoadProfile(path string) (Processor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("neural: reading profile model: %w", err)
	}

	var pf profileFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotModelFile, path, err)
	}
	if pf.Version == "" || pf.Architecture == "" {
		return nil, fmt.Errorf("%w: %s: missing version or architecture", ErrNotModelFile, path)
	}
	if len(pf.Weights) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyWeights, path)
	}

	gain := 1.0
	if pf.Metadata.Loudness != nil {
		gain = math.Pow(10, (targetLoudnessDB-*pf.Metadata.Loudness)/20)
	}
	return &gainStage{gain: gain}, nil
}

// recurrentFile is the header of a recurrent network file (RTNeural-style
// JSON: an input shape and an ordered layer list).
type recurrentFile struct {
	InShape []int `json:"in_shape"`
	Layers  []struct {
		Type    string          `json:"type"`
		Shape   json.RawMessage `json:"shape"`
		Weights json.RawMessage `json:"weights"`
	} `json:"layers"`
}

// LoadRecurrent parses a recurrent network model file. The file must be a
// JSON document with an input shape and at least one typed layer.
func LoadRecurrent(path string) (Processor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("neural: reading recurrent model: %w", err)
	}

	var rf recurrentFile
	if err := json.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotModelFile, path, err)
	}
	if len(rf.InShape) == 0 || len(rf.Layers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyNetwork, path)
	}
	for _, l := range rf.Layers {
		if l.Type == "" {
			return nil, fmt.Errorf("%w: %s: untyped layer", ErrNotModelFile, path)
		}
	}

	return &gainStage{gain: 1.0}, nil
}
