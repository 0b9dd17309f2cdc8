package strategy

import (
	"errors"
	"fmt"
)

// PresetMode bundles a strategy variant, its parameters, and the share
// cap for one of the named risk profiles.
type PresetMode struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Type            Type   `json:"type"`
	Params          Params `json:"params"`
	MaxPositionSize int64  `json:"max_position_size"`
}

// ErrUnknownPreset is returned for a preset name outside the known set.
var ErrUnknownPreset = errors.New("strategy: unknown preset")

var presets = map[string]PresetMode{
	"safe": {
		Name:            "Safe Mode (Low Risk)",
		Description:     "Conservative trading with strict risk management",
		Type:            TypeSMACrossover,
		Params:          Params{SMAShort: 10, SMALong: 30, CrossoverOnly: true}.WithDefaults(),
		MaxPositionSize: 5,
	},
	"normal": {
		Name:            "Normal Mode (Balanced)",
		Description:     "Balanced risk/reward with moderate trading activity",
		Type:            TypeSMACrossover,
		Params:          Params{SMAShort: 5, SMALong: 20, CrossoverOnly: true}.WithDefaults(),
		MaxPositionSize: 10,
	},
	"aggressive": {
		Name:            "High Risk High Reward Mode",
		Description:     "Aggressive trading with higher risk tolerance",
		Type:            TypeEMACrossover,
		Params:          Params{EMAShort: 8, EMALong: 15, CrossoverOnly: true}.WithDefaults(),
		MaxPositionSize: 20,
	},
}

// Preset returns the named parameter bundle: "safe", "normal", or
// "aggressive".
func Preset(name string) (PresetMode, error) {
	p, ok := presets[name]
	if !ok {
		return PresetMode{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// PresetNames lists the available preset names.
func PresetNames() []string {
	return []string{"safe", "normal", "aggressive"}
}
