package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesReferenceEngineDefaults(t *testing.T) {
	opts := Default()
	assert.Equal(t, DefaultSplitSize, opts.SplitSize)
	assert.Equal(t, 1, opts.ScrubGranularityWiiSectors)
	assert.False(t, opts.Trim)
	assert.False(t, opts.ZeroSparse)
}

func TestLoadWithNoDotfileOrEnvReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	opts, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), opts)
}

func TestLoadAppliesDotfileOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dotfile := "split-size = 1048576\ntrim = true\nzero-sparse = true\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, ".gowbfsrc.toml"), []byte(dotfile), 0644))

	opts, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 1048576, opts.SplitSize)
	assert.True(t, opts.Trim)
	assert.True(t, opts.ZeroSparse)
}

func TestLoadEnvOverridesDotfile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dotfile := "split-size = 1048576\ntrim = true\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, ".gowbfsrc.toml"), []byte(dotfile), 0644))

	t.Setenv("GOWBFS_SPLIT_SIZE", "2097152")
	t.Setenv("GOWBFS_TRIM", "false")

	opts, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 2097152, opts.SplitSize)
	assert.False(t, opts.Trim)
}
