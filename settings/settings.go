// Package settings holds the user-configurable knobs the core consumes.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
)

// Tick accounting mode names.
const (
	TicksModeAccurate = "accurate"
	TicksModeAuto     = "auto"
	TicksModeCustom   = "custom"
)

// Init clock source names.
const (
	InitClockSystem = "system"
	InitClockFixed  = "fixed"
)

// Settings holds the subset of user configuration the core consumes.
type Settings struct {
	// TicksMode selects tick accounting: "accurate" counts executed
	// cycles, "auto" uses the per-title override table, "custom" uses
	// CustomTicks for every block.
	TicksMode string `json:"ticks_mode"`

	// CustomTicks is the per-block tick constant for the "custom" mode.
	CustomTicks uint64 `json:"custom_ticks"`

	// InitClock selects the wall-clock origin: "system" captures the host
	// clock at boot, "fixed" starts from InitTime.
	InitClock string `json:"init_clock"`

	// InitTime is the fixed boot wall-clock time as a Unix timestamp,
	// used when InitClock is "fixed".
	InitTime int64 `json:"init_time"`

	// BatteryLevel is the reported charge level (0-5).
	BatteryLevel uint8 `json:"battery_level"`

	// AdapterConnected reports whether the charger is plugged in.
	AdapterConnected bool `json:"adapter_connected"`

	// BatteryCharging reports whether the battery is charging.
	BatteryCharging bool `json:"battery_charging"`

	// WifiLinkLevel is the reported signal strength (0-3).
	WifiLinkLevel uint8 `json:"wifi_link_level"`

	// NetworkEnabled reports internet connectivity to the guest.
	NetworkEnabled bool `json:"network_enabled"`

	// Factor3D is the stereoscopy slider position (0.0-1.0).
	Factor3D float32 `json:"factor_3d"`
}

// Default returns the settings a fresh install runs with.
func Default() *Settings {
	return &Settings{
		TicksMode:        TicksModeAuto,
		CustomTicks:      10000,
		InitClock:        InitClockSystem,
		BatteryLevel:     5,
		AdapterConnected: true,
		BatteryCharging:  false,
		WifiLinkLevel:    3,
		NetworkEnabled:   true,
		Factor3D:         0,
	}
}

// Load reads settings from a JSON file, filling unset fields from the
// defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	s := Default()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	return s, nil
}

// Save writes the settings to a JSON file.
func (s *Settings) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// Validate checks every field against its valid range.
func (s *Settings) Validate() error {
	switch s.TicksMode {
	case TicksModeAccurate, TicksModeAuto, TicksModeCustom:
	default:
		return fmt.Errorf("ticks_mode must be one of accurate, auto, custom")
	}
	if s.TicksMode == TicksModeCustom && s.CustomTicks == 0 {
		return fmt.Errorf("custom_ticks must be > 0 in custom mode")
	}
	switch s.InitClock {
	case InitClockSystem, InitClockFixed:
	default:
		return fmt.Errorf("init_clock must be one of system, fixed")
	}
	if s.BatteryLevel > 5 {
		return fmt.Errorf("battery_level must be 0-5")
	}
	if s.WifiLinkLevel > 3 {
		return fmt.Errorf("wifi_link_level must be 0-3")
	}
	if s.Factor3D < 0 || s.Factor3D > 1 {
		return fmt.Errorf("factor_3d must be within [0, 1]")
	}
	return nil
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	copied := *s
	return &copied
}
