// Package config loads the connection subsystem's configuration
// (§6): the options spec.md enumerates plus the engine's own
// tunables, YAML-backed per SPEC_FULL.md F.1, grounded on the
// n-backup example's config loading style.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every option spec.md §6 enumerates plus the engine
// tunables SPEC_FULL.md adds (table capacity, bucket caps, the §9
// Open Question a/b knobs).
type Config struct {
	// §6 "Configuration" options consumed by this subsystem.
	OnionRouter        bool   `yaml:"onion_router"`
	LinkPadding        bool   `yaml:"link_padding"`
	DefaultBandwidthOp uint32 `yaml:"default_bandwidth_op"`
	OrPort             uint16 `yaml:"or_port"`
	ApPort             uint16 `yaml:"ap_port"`
	DirPort            uint16 `yaml:"dir_port"`

	// Engine tunables not named by spec.md's Configuration list but
	// required to instantiate the components it describes.
	TableCapacity     int   `yaml:"table_capacity"`
	GlobalBucketCap   int64 `yaml:"global_bucket_cap"`
	FairShare         int   `yaml:"fair_share"`

	// DebugAssertions gates the invariant checker (C10, §9 Open
	// Question a).
	DebugAssertions bool `yaml:"debug_assertions"`

	// ReadQuantumOverride is the §9 Open Question b test knob: the
	// original hardcoded at_most=103; here it is a configurable,
	// documented override, 0 meaning "use the fair-share computation".
	ReadQuantumOverride int `yaml:"read_quantum_override"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration a freshly-installed relay boots
// with: client-only (not a relay), no link padding, a generous but
// bounded table, debug assertions off.
func Default() Config {
	return Config{
		OnionRouter:        false,
		LinkPadding:        false,
		DefaultBandwidthOp: 1 << 20, // 1 MiB/s
		TableCapacity:      4096,
		GlobalBucketCap:    1 << 24, // 16 MiB/s
		FairShare:          487,
		DebugAssertions:    false,
		LogLevel:           "info",
	}
}

// Load reads and parses a YAML config file, overlaying it on Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
