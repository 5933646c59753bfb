// Package config loads a machine profile: the host-side knobs the engine
// spec assumes a caller supplies at construction (RAM size, host-exit
// address, instruction budget) but never reads from disk itself.
//
// Modeled on cmd/ccapp/site_config.go's yaml.v3 load pattern: an
// Unmarshal into a plain struct, logged through log/slog, defaults filled
// in for anything the file omits.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinyhart/rv64sim/internal/engine"
)

// DefaultRAMSize matches the teacher's own default guest memory size
// convention of a round power-of-two; 128 MiB is enough room for the
// RV64I test-suite binaries this simulator targets.
const DefaultRAMSize = 128 << 20

// Profile is the on-disk shape of a machine profile file.
type Profile struct {
	RAMSize         uint64 `yaml:"ram_size"`
	HostExit        uint64 `yaml:"host_exit"`
	MaxInstructions uint64 `yaml:"max_instructions"`
	Trace           bool   `yaml:"trace"`
	Color           bool   `yaml:"color"`
}

// Load reads a YAML machine profile from path. A missing file is not an
// error: Default is returned instead, matching the teacher's site-config
// "missing means use defaults" behavior.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("machine profile not found, using defaults", "path", path)
			return Default(), nil
		}
		return Profile{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	slog.Info("loaded machine profile", "path", path, "ram_size", p.RAMSize)
	return p, nil
}

// Default returns the profile used when no file is given.
func Default() Profile {
	return Profile{
		RAMSize: DefaultRAMSize,
	}
}

// EngineConfig translates a Profile into an engine.Config.
func (p Profile) EngineConfig() engine.Config {
	return engine.Config{
		RAMSize:         p.RAMSize,
		HostExit:        p.HostExit,
		MaxInstructions: p.MaxInstructions,
	}
}
