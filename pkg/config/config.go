// Package config collects the user-tunable knobs that spec section 9
// calls out as "global mutable option state" in the reference engine
// (layout, split size, trim, scrub size, sparse-zero) and threads them as
// one explicit record through every public call instead. Defaults can be
// loaded from a TOML dotfile the way cmd/vorteil's conf.toml is, and
// overridden by environment variables through viper, before being
// finalized by CLI flags in cmd/gowbfs.
package config

import (
	"os"
	"path/filepath"

	"github.com/sisatech/toml"
	"github.com/spf13/viper"
)

// DefaultSplitSize is the reference engine's DEF_SPLIT_SIZE: 4 GiB minus
// one Wii sector (32 KiB) of headroom, safely under the 4 GiB ceiling of
// FAT32-formatted USB drives the split backend was designed to humor.
const DefaultSplitSize int64 = 4*1024*1024*1024 - 32*1024

// Options carries every per-operation tunable. The zero value leaves
// SplitSize and ScrubGranularityWiiSectors at 0; Default returns the
// reference engine's own defaults.
type Options struct {
	// SplitSize bounds each file of a split backend, in bytes.
	SplitSize int64

	// Selector chooses which Wii partitions the walker preserves.
	Selector uint32

	// Copy11 requests a byte-for-byte copy instead of selector-filtered
	// usage-bitmap allocation.
	Copy11 bool

	// Trim requests that scrub output be shrunk to the last live group
	// instead of the nominal full size.
	Trim bool

	// ScrubGranularityWiiSectors is the scrub walk's group size in Wii
	// sectors: 1 for per-sector granularity, 64 for WBFS-block
	// granularity (matching OPT_scrub_size in the reference engine).
	ScrubGranularityWiiSectors int

	// ZeroSparse additionally holes payload groups that are bitwise zero.
	ZeroSparse bool

	// Force skips superblock geometry validation on open.
	Force bool

	// Overwrite allows scrub/convert to replace an existing destination.
	Overwrite bool
}

// Default returns the reference engine's stock defaults: DefaultSplitSize
// for split backends, ALL_PARTITIONS-equivalent selection left
// to the caller, 1-Wii-sector scrub granularity, trim and zero-sparse
// disabled.
func Default() Options {
	return Options{
		SplitSize:                  DefaultSplitSize,
		ScrubGranularityWiiSectors: 1,
	}
}

// fileDefaults is the subset of Options a TOML dotfile may override.
type fileDefaults struct {
	SplitSize  int64 `toml:"split-size"`
	Trim       bool  `toml:"trim"`
	ZeroSparse bool  `toml:"zero-sparse"`
	Force      bool  `toml:"force"`
}

// Load resolves Options starting from Default(), then applying
// ~/.gowbfsrc.toml if present, then GOWBFS_-prefixed environment
// variables, in that order of increasing precedence. CLI flags (applied
// by the caller afterwards) always win over both.
func Load() (Options, error) {
	opts := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, ".gowbfsrc.toml")
		if data, err := os.ReadFile(path); err == nil {
			var fd fileDefaults
			if err := toml.Unmarshal(data, &fd); err != nil {
				return opts, err
			}
			if fd.SplitSize > 0 {
				opts.SplitSize = fd.SplitSize
			}
			opts.Trim = fd.Trim
			opts.ZeroSparse = fd.ZeroSparse
			opts.Force = fd.Force
		}
	}

	v := viper.New()
	v.SetEnvPrefix("GOWBFS")
	v.AutomaticEnv()
	if v.IsSet("split_size") {
		opts.SplitSize = v.GetInt64("split_size")
	}
	if v.IsSet("trim") {
		opts.Trim = v.GetBool("trim")
	}
	if v.IsSet("zero_sparse") {
		opts.ZeroSparse = v.GetBool("zero_sparse")
	}
	if v.IsSet("force") {
		opts.Force = v.GetBool("force")
	}

	return opts, nil
}
