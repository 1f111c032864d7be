// Package fetch implements the direct-URL acquisition source: a streaming
// HTTP download into the staging directory with cooperative cancellation.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mirrorleech/mirror_relay/internal/logctx"
	"github.com/mirrorleech/mirror_relay/internal/source"
	"github.com/mirrorleech/mirror_relay/internal/task"
)

const (
	chunkSize = 1024 * 1024
	dirPerm   = 0o755
)

// DirectSource streams one URL to one local file.
type DirectSource struct {
	url         string
	client      *http.Client
	defaultName string

	name      string
	path      string
	startedAt time.Time

	bytesDone  atomic.Int64
	bytesTotal atomic.Int64
	done       atomic.Bool

	mu      sync.Mutex
	failure error

	cancelOnce sync.Once
	cancelFn   context.CancelFunc
}

var _ source.Source = (*DirectSource)(nil)

func NewDirectSource(client *http.Client, url, defaultName string) *DirectSource {
	return &DirectSource{
		url:         url,
		client:      client,
		defaultName: defaultName,
	}
}

// Begin resolves the target filename, opens the streaming response and
// starts copying chunks to disk in the background.
func (s *DirectSource) Begin(ctx context.Context, stagingDir string) error {
	logger := logctx.LoggerFromContext(ctx)

	if err := os.MkdirAll(stagingDir, dirPerm); err != nil {
		return &task.AcquisitionError{Kind: task.SourceDirect, Reason: "failed to create staging dir", Err: err}
	}

	s.name = ResolveFilename(ctx, s.client, s.url, s.defaultName)
	s.path = filepath.Join(stagingDir, s.name)
	s.startedAt = time.Now()

	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()

		return &task.AcquisitionError{Kind: task.SourceDirect, Reason: "invalid request", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()

		return &task.AcquisitionError{Kind: task.SourceDirect, Reason: "request failed", Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		cancel()

		return &task.AcquisitionError{
			Kind:   task.SourceDirect,
			Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status),
		}
	}

	if resp.ContentLength > 0 {
		s.bytesTotal.Store(resp.ContentLength)
	}

	logger.Info("direct download started", "url", s.url, "file", s.name)

	go s.stream(fetchCtx, resp)

	return nil
}

// stream copies the response body to disk chunk by chunk, checking the
// context at every chunk boundary. Partial output is deleted on failure.
func (s *DirectSource) stream(ctx context.Context, resp *http.Response) {
	defer resp.Body.Close()

	out, err := os.Create(s.path)
	if err != nil {
		s.fail(fmt.Errorf("failed to create target file: %w", err))

		return
	}

	buf := make([]byte, chunkSize)

	for {
		if ctx.Err() != nil {
			out.Close()
			os.Remove(s.path)
			s.fail(task.ErrCancelled)

			return
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				os.Remove(s.path)
				s.fail(fmt.Errorf("failed to write chunk: %w", writeErr))

				return
			}

			s.bytesDone.Add(int64(n))
		}

		if readErr != nil {
			out.Close()

			if errors.Is(readErr, io.EOF) {
				s.done.Store(true)

				return
			}

			os.Remove(s.path)

			// A cancel lands as a read error on the in-flight body.
			if ctx.Err() != nil {
				s.fail(task.ErrCancelled)

				return
			}

			s.fail(fmt.Errorf("failed to read chunk: %w", readErr))

			return
		}
	}
}

func (s *DirectSource) fail(err error) {
	s.mu.Lock()
	if s.failure == nil {
		s.failure = err
	}
	s.mu.Unlock()
}

// Poll returns the current snapshot, or the recorded failure.
func (s *DirectSource) Poll(_ context.Context) (source.Snapshot, error) {
	s.mu.Lock()
	failure := s.failure
	s.mu.Unlock()

	if failure != nil {
		return source.Snapshot{}, failure
	}

	done := s.bytesDone.Load()

	return source.Snapshot{
		Name:         s.name,
		BytesDone:    done,
		BytesTotal:   s.bytesTotal.Load(),
		DownloadRate: downloadRate(done, time.Since(s.startedAt)),
	}, nil
}

func downloadRate(done int64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}

	return float64(done) / secs
}

func (s *DirectSource) Done() bool {
	return s.done.Load()
}

// Files returns the single downloaded file. Valid only once Done.
func (s *DirectSource) Files(_ context.Context) ([]source.File, error) {
	if !s.done.Load() {
		return nil, &task.AcquisitionError{Kind: task.SourceDirect, Reason: "download not finished"}
	}

	return []source.File{{Name: s.name, Path: s.path}}, nil
}

// Cancel aborts the in-flight stream; the partial file is removed by the
// streaming goroutine at its next chunk boundary.
func (s *DirectSource) Cancel(_ context.Context) error {
	s.cancelOnce.Do(func() {
		if s.cancelFn != nil {
			s.cancelFn()
		}
	})

	return nil
}

// Close releases nothing extra for direct fetches; the response lifecycle
// is owned by the streaming goroutine.
func (s *DirectSource) Close(ctx context.Context) error {
	return s.Cancel(ctx)
}
