package cleanup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mirrorleech/mirror_relay/internal/cleanup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ownerSet map[string]bool

func (o ownerSet) Owns(name string) bool { return o[name] }

func makeStagingEntry(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "partial.bin"), []byte("x"), 0o644))

	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))

	return path
}

func TestSweepStagingDir(t *testing.T) {
	dir := t.TempDir()

	orphanOld := makeStagingEntry(t, dir, "deadbeef0001", 48*time.Hour)
	orphanFresh := makeStagingEntry(t, dir, "deadbeef0002", time.Hour)
	owned := makeStagingEntry(t, dir, "deadbeef0003", 48*time.Hour)

	owner := ownerSet{"deadbeef0003": true}

	require.NoError(t, cleanup.SweepStagingDir(context.Background(), owner, dir, 24*time.Hour))

	_, err := os.Stat(orphanOld)
	assert.True(t, os.IsNotExist(err), "old orphan should be swept")

	_, err = os.Stat(orphanFresh)
	assert.NoError(t, err, "fresh orphan stays until retention expires")

	_, err = os.Stat(owned)
	assert.NoError(t, err, "live task entries are never swept")
}

func TestSweepStagingDir_MissingDir(t *testing.T) {
	err := cleanup.SweepStagingDir(context.Background(), ownerSet{}, "/nonexistent/staging", time.Hour)
	assert.NoError(t, err)
}
