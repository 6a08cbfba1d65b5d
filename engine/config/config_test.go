package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_name = "Demo"
width = 1920
height = 1080
frames_in_flight = 3
present_mode = "mailbox"
validation = true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Demo", cfg.AppName)
	assert.EqualValues(t, 1920, cfg.Width)
	assert.EqualValues(t, 1080, cfg.Height)
	assert.Equal(t, 3, cfg.FramesInFlight)
	assert.Equal(t, "mailbox", cfg.PresentMode)
	assert.True(t, cfg.Validation)

	// Untouched fields keep their defaults.
	assert.Equal(t, Default().MinBlockSize, cfg.MinBlockSize)
	assert.Equal(t, Default().ShaderDir, cfg.ShaderDir)
}

func TestLoadClampsOutOfRangeValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
frames_in_flight = 9
present_mode = "immediate"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.FramesInFlight, "overlap depth is clamped")
	assert.Equal(t, "fifo", cfg.PresentMode, "unknown present modes fall back to vsync")
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte("width = = 12"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
