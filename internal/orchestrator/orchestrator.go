// Package orchestrator drives a task through its lifecycle: acquire bytes
// from a source, relay the resulting files through the chat transport, and
// clean up on every exit path.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mirrorleech/mirror_relay/internal/chat"
	"github.com/mirrorleech/mirror_relay/internal/logctx"
	"github.com/mirrorleech/mirror_relay/internal/relay"
	"github.com/mirrorleech/mirror_relay/internal/render"
	"github.com/mirrorleech/mirror_relay/internal/source"
	"github.com/mirrorleech/mirror_relay/internal/task"
	"github.com/mirrorleech/mirror_relay/internal/telemetry"
	"github.com/mirrorleech/mirror_relay/internal/throttle"
)

// Orchestrator runs tasks. One instance serves the whole process.
type Orchestrator struct {
	registry     *task.Registry
	relay        *relay.Engine
	telemetry    *telemetry.Telemetry
	stagingDir   string
	pollInterval time.Duration
	editInterval time.Duration
}

func New(registry *task.Registry, relayEngine *relay.Engine, tel *telemetry.Telemetry, stagingDir string, pollInterval, editInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		registry:     registry,
		relay:        relayEngine,
		telemetry:    tel,
		stagingDir:   stagingDir,
		pollInterval: pollInterval,
		editInterval: editInterval,
	}
}

// Submit registers a new task and runs it in the background. The returned
// task is already visible in the registry.
func (o *Orchestrator) Submit(ctx context.Context, owner int64, kind task.SourceKind, src source.Source, channel chat.Channel) (*task.Task, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	t := o.registry.Create(owner, kind, cancel)

	logger := logctx.LoggerFromContext(ctx).With("task_id", t.ID, "kind", string(kind))
	runCtx = logctx.WithLogger(runCtx, logger)

	msg, err := channel.Reply(runCtx, fmt.Sprintf("Task ID: %s\nStarting %s task...", t.ID, kind))
	if err != nil {
		cancel()
		o.registry.Remove(t.ID)

		return nil, fmt.Errorf("failed to post status message: %w", err)
	}

	go o.run(runCtx, t, src, msg)

	return t, nil
}

// Cancel requests cooperative cancellation on behalf of a requester.
func (o *Orchestrator) Cancel(taskID string, requester int64) task.CancelOutcome {
	return o.registry.MarkCancelled(taskID, requester)
}

// run owns the task from start to terminal state. The deferred block is
// the cleanup guarantee: source closed, staging wiped, registry entry
// evicted, whatever path got us here.
func (o *Orchestrator) run(ctx context.Context, t *task.Task, src source.Source, msg chat.StatusMessage) {
	logger := logctx.LoggerFromContext(ctx)
	staging := filepath.Join(o.stagingDir, t.ID)

	o.telemetry.IncrementActiveTasks()

	defer func() {
		closeCtx := context.WithoutCancel(ctx)

		if err := src.Close(closeCtx); err != nil {
			logger.WarnContext(ctx, "failed to close source", "err", err)
		}

		if err := os.RemoveAll(staging); err != nil {
			logger.WarnContext(ctx, "failed to remove staging dir", "path", staging, "err", err)
		}

		o.registry.Remove(t.ID)
		o.telemetry.DecrementActiveTasks()
		o.telemetry.RecordTask(string(t.Kind), string(t.State()), time.Since(t.StartedAt))

		logger.InfoContext(ctx, "task finished", "state", string(t.State()))
	}()

	t.SetState(task.StateAcquiring)

	if err := src.Begin(ctx, staging); err != nil {
		o.finish(ctx, t, msg, task.StateFailed, failureText(t.ID, err))

		return
	}

	if err := o.awaitAcquisition(ctx, t, src, msg); err != nil {
		if errors.Is(err, task.ErrCancelled) || errors.Is(err, context.Canceled) {
			o.finish(ctx, t, msg, task.StateCancelled, fmt.Sprintf("Task ID: %s\n🚫 Cancelled.", t.ID))
		} else {
			o.finish(ctx, t, msg, task.StateFailed, failureText(t.ID, err))
		}

		return
	}

	files, err := src.Files(ctx)
	if err != nil {
		o.finish(ctx, t, msg, task.StateFailed, failureText(t.ID, err))

		return
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	t.SetFiles(paths)
	t.SetState(task.StateAcquisitionDone)

	if err := msg.Edit(ctx, fmt.Sprintf("Task ID: %s\nUploading %d file(s)...", t.ID, len(files))); err != nil {
		logger.WarnContext(ctx, "failed to edit status message", "err", err)
	}

	t.SetState(task.StateRelaying)

	outcomes := o.relay.RelayAll(ctx, t.ID, files, msg, t.StartedAt)

	state, text := summarize(t, outcomes)
	o.finish(ctx, t, msg, state, text)
}

// awaitAcquisition polls the source until done, surfacing failures and
// cancellation. Status edits are throttled; polls are not.
func (o *Orchestrator) awaitAcquisition(ctx context.Context, t *task.Task, src source.Source, msg chat.StatusMessage) error {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	thr := throttle.New(o.editInterval)

	for {
		select {
		case <-ctx.Done():
			// Give the source a chance to tear down before cleanup.
			if err := src.Cancel(context.WithoutCancel(ctx)); err != nil {
				logger.WarnContext(ctx, "failed to cancel source", "err", err)
			}

			return task.ErrCancelled

		case <-ticker.C:
			snap, err := src.Poll(ctx)
			if err != nil {
				return err
			}

			if src.Done() {
				return nil
			}

			if !thr.ShouldEmit(time.Now()) {
				continue
			}

			text := render.DownloadStatus(t.ID, render.Download{
				Name:         snap.Name,
				BytesDone:    snap.BytesDone,
				BytesTotal:   snap.BytesTotal,
				DownloadRate: snap.DownloadRate,
				UploadRate:   snap.UploadRate,
				HasPeers:     snap.Peers != nil,
				Seeders:      peerCount(snap.Peers, true),
				Leechers:     peerCount(snap.Peers, false),
				Elapsed:      time.Since(t.StartedAt),
			})

			if err := msg.Edit(ctx, text); err != nil {
				logger.WarnContext(ctx, "failed to edit status message", "err", err)
			}
		}
	}
}

func peerCount(p *source.PeerCounts, seeders bool) int64 {
	if p == nil {
		return 0
	}

	if seeders {
		return p.Seeders
	}

	return p.Leechers
}

// finish records the terminal state and posts the final status text. The
// edit uses a detached context so a cancelled task still reports itself.
func (o *Orchestrator) finish(ctx context.Context, t *task.Task, msg chat.StatusMessage, state task.State, text string) {
	logger := logctx.LoggerFromContext(ctx)

	t.SetState(state)

	if err := msg.Edit(context.WithoutCancel(ctx), text); err != nil {
		logger.WarnContext(ctx, "failed to post terminal status", "err", err)
	}
}

// summarize folds per-file outcomes into the terminal state and message.
// Partial success is still a completion; the text names the split.
func summarize(t *task.Task, outcomes []relay.Outcome) (task.State, string) {
	var ok, failed, cancelled int

	for _, out := range outcomes {
		switch {
		case out.Err == nil:
			ok++
		case errors.Is(out.Err, task.ErrCancelled):
			cancelled++
		default:
			failed++
		}
	}

	switch {
	case cancelled > 0 && ok == 0 && failed == 0:
		return task.StateCancelled, fmt.Sprintf("Task ID: %s\n🚫 Cancelled.", t.ID)
	case failed == 0 && cancelled == 0:
		return task.StateCompleted, fmt.Sprintf("Task ID: %s\n✅ All done! %d file(s) relayed in %s.",
			t.ID, ok, render.Elapsed(time.Since(t.StartedAt)))
	case ok > 0:
		return task.StateCompleted, fmt.Sprintf("Task ID: %s\n⚠️ Done with errors: %d relayed, %d failed.",
			t.ID, ok, failed+cancelled)
	default:
		return task.StateFailed, fmt.Sprintf("Task ID: %s\n❌ Failed: no file could be relayed.", t.ID)
	}
}

func failureText(taskID string, err error) string {
	return fmt.Sprintf("Task ID: %s\n❌ Failed: %v", taskID, err)
}
