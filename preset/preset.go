// Package preset persists the engine's loadable-resource configuration as a
// YAML document: one path per model slot and impulse channel, plus the two
// crossfade controls.
package preset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-amp/control"
	"github.com/cwbudde/algo-amp/dsp/mix"
)

// Preset is one saved amp configuration. Empty path fields mean "nothing
// loaded"; the engine's "None" wire token never appears in preset files.
type Preset struct {
	Name string `yaml:"name,omitempty"`

	ProfileA   string `yaml:"profile_a,omitempty"`
	ProfileB   string `yaml:"profile_b,omitempty"`
	RecurrentA string `yaml:"recurrent_a,omitempty"`
	RecurrentB string `yaml:"recurrent_b,omitempty"`
	Impulse0   string `yaml:"impulse_0,omitempty"`
	Impulse1   string `yaml:"impulse_1,omitempty"`

	// Blend and Mix are raw crossfade controls in [0, mix.ControlMax].
	Blend float64 `yaml:"blend"`
	Mix   float64 `yaml:"mix"`
}

// FromState converts an engine state map (as returned by SaveState) to a
// Preset. Wire sentinels become empty fields.
func FromState(state map[string]string) Preset {
	get := func(p control.Property) string {
		return control.InternalPath(state[p.String()])
	}
	return Preset{
		ProfileA:   get(control.PropProfileA),
		ProfileB:   get(control.PropProfileB),
		RecurrentA: get(control.PropRecurrentA),
		RecurrentB: get(control.PropRecurrentB),
		Impulse0:   get(control.PropImpulse0),
		Impulse1:   get(control.PropImpulse1),
	}
}

// State converts the preset to the engine's state map form, with wire
// sentinels for empty slots.
func (p *Preset) State() map[string]string {
	return map[string]string{
		control.PropProfileA.String():   control.WirePath(p.ProfileA),
		control.PropProfileB.String():   control.WirePath(p.ProfileB),
		control.PropRecurrentA.String(): control.WirePath(p.RecurrentA),
		control.PropRecurrentB.String(): control.WirePath(p.RecurrentB),
		control.PropImpulse0.String():   control.WirePath(p.Impulse0),
		control.PropImpulse1.String():   control.WirePath(p.Impulse1),
	}
}

// clampControls keeps the crossfade controls inside the engine's range.
func (p *Preset) clampControls() {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > mix.ControlMax {
			return mix.ControlMax
		}
		return v
	}
	p.Blend = clamp(p.Blend)
	p.Mix = clamp(p.Mix)
}

// Load reads a preset file. Out-of-range control values are clamped rather
// than rejected.
func Load(path string) (*Preset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("preset: reading %s: %w", path, err)
	}

	var p Preset
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("preset: parsing %s: %w", path, err)
	}
	p.clampControls()
	return &p, nil
}

// Save writes the preset to path as YAML.
func Save(path string, p *Preset) error {
	raw, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("preset: encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("preset: writing %s: %w", path, err)
	}
	return nil
}
