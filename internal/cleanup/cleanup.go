// Package cleanup sweeps orphaned staging entries. The orchestrator's own
// cleanup handles the normal paths; the sweep catches what a crash or kill
// left behind.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/mirrorleech/mirror_relay/internal/logctx"
)

// Owner reports whether a staging entry still belongs to a live task.
type Owner interface {
	Owns(name string) bool
}

// SweepStagingDir removes staging entries that no live task owns and that
// are older than keepFor.
func SweepStagingDir(ctx context.Context, owner Owner, stagingDir string, keepFor time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	for _, entry := range entries {
		if owner.Owns(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			logger.ErrorContext(ctx, "failed to stat staging entry", "entry", entry.Name(), "err", err)

			continue
		}

		if now.Sub(info.ModTime()) <= keepFor {
			continue
		}

		path := filepath.Join(stagingDir, entry.Name())

		if err := os.RemoveAll(path); err != nil {
			logger.ErrorContext(ctx, "failed to delete orphaned staging entry", "path", path, "err", err)

			continue
		}

		logger.InfoContext(ctx, "deleted orphaned staging entry", "path", path)
	}

	return nil
}
