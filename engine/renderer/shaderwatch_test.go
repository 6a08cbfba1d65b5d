package renderer_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prismatik/lumen/engine/renderer"
)

func TestShaderWatcherReportsSpvWrites(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 8)

	sw, err := renderer.WatchShaders(dir, func(path string) {
		changed <- path
	})
	require.NoError(t, err)
	defer sw.Close()

	spv := filepath.Join(dir, "basic.vert.spv")
	require.NoError(t, os.WriteFile(spv, []byte{0x03, 0x02, 0x23, 0x07}, 0o644))

	select {
	case got := <-changed:
		require.Equal(t, spv, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification for written shader")
	}
}

func TestShaderWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 8)

	sw, err := renderer.WatchShaders(dir, func(path string) {
		changed <- path
	})
	require.NoError(t, err)
	defer sw.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "basic.vert"), []byte("#version 450"), 0o644))

	select {
	case got := <-changed:
		t.Fatalf("unexpected notification for %s", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestShaderWatcherMissingDir(t *testing.T) {
	_, err := renderer.WatchShaders(filepath.Join(t.TempDir(), "absent"), func(string) {})
	require.Error(t, err)
}
