// Package relay pushes acquired files back through the chat transport,
// driving throttled per-file progress on the task's status message.
package relay

import (
	"context"
	"os"
	"time"

	"github.com/mirrorleech/mirror_relay/internal/chat"
	"github.com/mirrorleech/mirror_relay/internal/logctx"
	"github.com/mirrorleech/mirror_relay/internal/media"
	"github.com/mirrorleech/mirror_relay/internal/render"
	"github.com/mirrorleech/mirror_relay/internal/source"
	"github.com/mirrorleech/mirror_relay/internal/task"
	"github.com/mirrorleech/mirror_relay/internal/telemetry"
	"github.com/mirrorleech/mirror_relay/internal/throttle"
	"golang.org/x/sync/errgroup"
)

// Prober extracts video metadata for richer uploads. Failures degrade to a
// plain document upload.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
	Thumbnail(ctx context.Context, path string, duration time.Duration) (string, error)
}

// Outcome is the per-file result of a relay run.
type Outcome struct {
	File string
	Err  error
}

// Engine relays files. One instance serves all tasks.
type Engine struct {
	prober       Prober
	telemetry    *telemetry.Telemetry
	editInterval time.Duration
}

func NewEngine(prober Prober, tel *telemetry.Telemetry, editInterval time.Duration) *Engine {
	return &Engine{
		prober:       prober,
		telemetry:    tel,
		editInterval: editInterval,
	}
}

// RelayAll uploads every file concurrently, with no cap of its own, and
// returns one outcome per file, in input order. A failed file never aborts
// its siblings. Files that were already in flight when the context got
// cancelled run to completion; files not yet started are marked cancelled.
func (e *Engine) RelayAll(ctx context.Context, taskID string, files []source.File, msg chat.StatusMessage, startedAt time.Time) []Outcome {
	outcomes := make([]Outcome, len(files))

	wg, _ := errgroup.WithContext(context.WithoutCancel(ctx))

	for i, f := range files {
		wg.Go(func() error {
			outcomes[i] = Outcome{File: f.Name, Err: e.relayOne(ctx, taskID, f, msg, startedAt)}

			return nil
		})
	}

	wg.Wait()

	return outcomes
}

func (e *Engine) relayOne(ctx context.Context, taskID string, f source.File, msg chat.StatusMessage, startedAt time.Time) error {
	logger := logctx.LoggerFromContext(ctx)

	if ctx.Err() != nil {
		return task.ErrCancelled
	}

	// The upload itself must survive a cancel that lands mid-flight.
	uploadCtx := context.WithoutCancel(ctx)

	start := time.Now()

	up := chat.Upload{
		Path:    f.Path,
		Caption: f.Name,
	}

	if media.IsVideo(f.Path) && e.prober != nil {
		if duration, err := e.prober.Duration(uploadCtx, f.Path); err == nil {
			up.Caption = f.Name + "\nDuration: " + render.Elapsed(duration)

			if thumb, err := e.prober.Thumbnail(uploadCtx, f.Path, duration); err == nil {
				up.ThumbPath = thumb
				defer os.Remove(thumb)
			}
		}
	}

	thr := throttle.New(e.editInterval)

	up.OnProgress = func(written, total int64) {
		if !thr.ShouldEmit(time.Now()) {
			return
		}

		text := render.UploadStatus(taskID, f.Name, written, total, time.Since(startedAt))
		if err := msg.Edit(uploadCtx, text); err != nil {
			logger.WarnContext(uploadCtx, "failed to edit status message", "err", err)
		}
	}

	err := msg.UploadFile(uploadCtx, up)

	// The local copy goes away regardless of the upload result.
	if rmErr := os.Remove(f.Path); rmErr != nil && !os.IsNotExist(rmErr) {
		logger.WarnContext(uploadCtx, "failed to remove relayed file", "path", f.Path, "err", rmErr)
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	if e.telemetry != nil {
		e.telemetry.RecordRelay(status, time.Since(start))
	}

	if err != nil {
		logger.ErrorContext(uploadCtx, "relay failed", "file", f.Name, "err", err)

		return &task.RelayError{File: f.Name, Err: err}
	}

	logger.InfoContext(uploadCtx, "file relayed", "file", f.Name)

	return nil
}
