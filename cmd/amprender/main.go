// Command amprender runs an audio file through the amp modeling engine
// offline: it loads a preset (models, impulse responses, crossfade
// controls), streams the input through the processing chain buffer by
// buffer, and writes the result as a 16-bit mono WAV file.
//
// Usage:
//
//	amprender -preset rig.yaml -in guitar.wav -out rendered.wav
//
// Examples:
//
//	amprender -preset crunch.yaml -in di.wav -out amp.wav
//	amprender -preset clean.yaml -in di.wav -out amp.wav -block 256 -v
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-amp/engine"
	"github.com/cwbudde/algo-amp/preset"
)

func main() {
	presetPath := flag.String("preset", "", "preset YAML file (required)")
	inPath := flag.String("in", "", "input WAV file (required)")
	outPath := flag.String("out", "", "output WAV file (required)")
	block := flag.Int("block", 512, "processing block size in samples")
	verbose := flag.Bool("v", false, "log engine activity to stderr")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: amprender -preset rig.yaml -in guitar.wav -out rendered.wav\n\n")
		fmt.Fprintf(os.Stderr, "Renders an audio file through the amp modeling engine.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *presetPath == "" || *inPath == "" || *outPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *block < 1 {
		fmt.Fprintf(os.Stderr, "error: block size must be positive\n")
		os.Exit(2)
	}

	log := zerolog.Nop()
	if *verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	if err := render(*presetPath, *inPath, *outPath, *block, log); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func render(presetPath, inPath, outPath string, block int, log zerolog.Logger) error {
	p, err := preset.Load(presetPath)
	if err != nil {
		return err
	}

	samples, rate, err := readWAV(inPath)
	if err != nil {
		return err
	}
	log.Info().Str("input", inPath).Int("rate", rate).
		Int("samples", len(samples)).Msg("input decoded")

	// Offline rendering has no second scheduling context to hide load
	// latency in, so loads run inline.
	e, err := engine.New(rate,
		engine.WithSynchronousLoads(),
		engine.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer e.Close()

	buf := make([]float64, block)
	e.Bind(engine.Ports{
		Input:  buf,
		Output: buf,
		Blend:  &p.Blend,
		Mix:    &p.Mix,
	})
	e.RestoreState(p.State())

	// Pad to whole blocks; convolution channels are configured for one
	// block length. The tail is trimmed again before writing.
	n := len(samples)
	for len(samples)%block != 0 {
		samples = append(samples, 0)
	}

	rendered := make([]float64, 0, len(samples))
	for off := 0; off < len(samples); off += block {
		copy(buf, samples[off:off+block])
		e.Process(block)
		rendered = append(rendered, buf...)
	}
	rendered = rendered[:n]

	if err := writeWAV(outPath, rendered, rate); err != nil {
		return err
	}
	log.Info().Str("output", outPath).Msg("render complete")
	return nil
}

// readWAV decodes a WAV file to float64 samples in [-1, 1], mixing
// interleaved channels down to mono.
func readWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: not a RIFF/WAVE file", path)
	}
	if dec.WavAudioFormat != 1 {
		return nil, 0, fmt.Errorf("%s: only PCM wave files are supported", path)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding %s: %w", path, err)
	}
	if pcm == nil || len(pcm.Data) == 0 {
		return nil, 0, fmt.Errorf("%s: no audio data", path)
	}

	var scale float64
	switch pcm.SourceBitDepth {
	case 8:
		scale = 1 << 7
	case 16:
		scale = 1 << 15
	case 24:
		scale = 1 << 23
	case 32:
		scale = 1 << 31
	default:
		return nil, 0, fmt.Errorf("%s: unsupported bit depth %d", path, pcm.SourceBitDepth)
	}

	channels := pcm.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm.Data) / channels
	samples := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(pcm.Data[i*channels+c])
		}
		samples[i] = sum / (float64(channels) * scale)
	}
	return samples, pcm.Format.SampleRate, nil
}

// writeWAV encodes float64 samples in [-1, 1] as 16-bit mono PCM.
func writeWAV(path string, samples []float64, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
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
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalizing %s: %w", path, err)
	}
	return f.Close()
}
