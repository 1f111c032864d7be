package swarm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mirrorleech/mirror_relay/internal/logctx"
	"github.com/mirrorleech/mirror_relay/internal/source"
	"github.com/mirrorleech/mirror_relay/internal/task"
	"github.com/zeebo/bencode"
	"golang.org/x/sync/errgroup"
)

const (
	magnetPrefix   = "magnet:"
	maxTorrentSize = 10 * 1024 * 1024
	dirPerm        = 0o755
)

// torrentMeta is the slice of a .torrent file we care about.
type torrentMeta struct {
	Info struct {
		Name string `bencode:"name"`
	} `bencode:"info"`
}

// Source runs a swarm transfer in two phases. First the remote engine
// downloads the swarm content on its side and we poll its status. Once the
// engine reports completion, the files are materialized into the staging
// directory, and only then does Done report true.
type Source struct {
	engine      Engine
	httpClient  *http.Client
	link        string
	maxParallel int

	transferID int64
	stagingDir string
	name       string
	runCtx     context.Context

	mu           sync.Mutex
	failure      error
	localFiles   []source.File
	materialized bool

	materializing   atomic.Bool
	localDone       atomic.Int64
	localTotal      atomic.Int64
	materializeFrom time.Time

	lastRemote Status

	cancelOnce sync.Once
	cancelFn   context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

var _ source.Source = (*Source)(nil)

// NewSource accepts a magnet link or a URL to a .torrent file.
func NewSource(engine Engine, httpClient *http.Client, link string, maxParallel int) *Source {
	if maxParallel < 1 {
		maxParallel = 1
	}

	return &Source{
		engine:      engine,
		httpClient:  httpClient,
		link:        link,
		maxParallel: maxParallel,
	}
}

// Begin registers the transfer with the engine.
func (s *Source) Begin(ctx context.Context, stagingDir string) error {
	logger := logctx.LoggerFromContext(ctx)

	if err := os.MkdirAll(stagingDir, dirPerm); err != nil {
		return &task.AcquisitionError{Kind: task.SourceSwarm, Reason: "failed to create staging dir", Err: err}
	}

	s.stagingDir = stagingDir

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel

	var (
		transferID int64
		err        error
	)

	if strings.HasPrefix(s.link, magnetPrefix) {
		transferID, err = s.engine.AddTransferURL(runCtx, s.link)
	} else {
		transferID, err = s.addFromTorrentURL(runCtx)
	}

	if err != nil {
		cancel()

		return &task.AcquisitionError{Kind: task.SourceSwarm, Reason: "failed to register transfer", Err: err}
	}

	s.transferID = transferID
	s.runCtx = runCtx

	logger.InfoContext(ctx, "swarm transfer registered", "transfer_id", transferID)

	return nil
}

// addFromTorrentURL fetches the .torrent file and uploads its bytes to the
// engine. The metainfo name is kept for display until the engine reports
// its own.
func (s *Source) addFromTorrentURL(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.link, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid torrent url: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch torrent file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, fmt.Errorf("failed to fetch torrent file: HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentSize+1))
	if err != nil {
		return 0, fmt.Errorf("failed to read torrent file: %w", err)
	}

	if len(raw) > maxTorrentSize {
		return 0, fmt.Errorf("torrent file exceeds %d bytes", maxTorrentSize)
	}

	var meta torrentMeta
	if err := bencode.DecodeBytes(raw, &meta); err != nil {
		return 0, fmt.Errorf("not a valid torrent file: %w", err)
	}

	s.name = meta.Info.Name

	filename := torrentFilename(s.link)

	return s.engine.AddTransferBytes(ctx, raw, filename)
}

func torrentFilename(link string) string {
	base := filepath.Base(strings.SplitN(link, "?", 2)[0])
	if strings.EqualFold(filepath.Ext(base), ".torrent") {
		return base
	}

	return "upload.torrent"
}

// Poll reports remote progress while the engine downloads, then local
// progress while the files are materialized.
func (s *Source) Poll(ctx context.Context) (source.Snapshot, error) {
	s.mu.Lock()
	failure := s.failure
	s.mu.Unlock()

	if failure != nil {
		return source.Snapshot{}, failure
	}

	if s.materializing.Load() {
		return s.materializeSnapshot(), nil
	}

	status, err := s.engine.Status(ctx, s.transferID)
	if err != nil {
		return source.Snapshot{}, &task.AcquisitionError{Kind: task.SourceSwarm, Reason: "failed to poll transfer", Err: err}
	}

	if status.Name != "" {
		s.name = status.Name
	}

	s.lastRemote = status

	if status.Complete && s.materializing.CompareAndSwap(false, true) {
		s.materializeFrom = time.Now()

		go s.materialize(s.runCtx)
	}

	return source.Snapshot{
		Name:         s.name,
		BytesDone:    status.BytesDone,
		BytesTotal:   status.BytesTotal,
		DownloadRate: status.DownloadRate,
		UploadRate:   status.UploadRate,
		Peers: &source.PeerCounts{
			Seeders:  status.Seeders,
			Leechers: status.Leechers,
		},
	}, nil
}

func (s *Source) materializeSnapshot() source.Snapshot {
	done := s.localDone.Load()

	rate := 0.0
	if secs := time.Since(s.materializeFrom).Seconds(); secs > 0 {
		rate = float64(done) / secs
	}

	return source.Snapshot{
		Name:         s.name,
		BytesDone:    done,
		BytesTotal:   s.localTotal.Load(),
		DownloadRate: rate,
		Peers: &source.PeerCounts{
			Seeders:  s.lastRemote.Seeders,
			Leechers: s.lastRemote.Leechers,
		},
	}
}

// materialize pulls every remote file down into the staging directory. A
// single failed file is skipped; the acquisition fails only when nothing
// could be fetched.
func (s *Source) materialize(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	remoteFiles, err := s.engine.Files(ctx, s.transferID)
	if err != nil {
		s.fail(&task.AcquisitionError{Kind: task.SourceSwarm, Reason: "failed to list transfer files", Err: err})

		return
	}

	if len(remoteFiles) == 0 {
		s.fail(&task.AcquisitionError{Kind: task.SourceSwarm, Reason: "transfer produced no files"})

		return
	}

	var total int64
	for _, rf := range remoteFiles {
		total += rf.Size
	}
	s.localTotal.Store(total)

	fetched := make([]source.File, len(remoteFiles))

	wg, ctx := errgroup.WithContext(ctx)
	wg.SetLimit(s.maxParallel)

	for i, rf := range remoteFiles {
		wg.Go(func() error {
			target, err := s.fetchOne(ctx, rf)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				logger.ErrorContext(ctx, "failed to materialize file, skipping", "path", rf.Path, "err", err)

				return nil
			}

			fetched[i] = source.File{Name: rf.Path, Path: target}

			return nil
		})
	}

	if err := wg.Wait(); err != nil {
		s.fail(task.ErrCancelled)

		return
	}

	var files []source.File

	for _, f := range fetched {
		if f.Path != "" {
			files = append(files, f)
		}
	}

	if len(files) == 0 {
		s.fail(&task.AcquisitionError{Kind: task.SourceSwarm, Reason: "no file could be materialized"})

		return
	}

	s.mu.Lock()
	s.localFiles = files
	s.materialized = true
	s.mu.Unlock()
}

func (s *Source) fetchOne(ctx context.Context, rf RemoteFile) (string, error) {
	target, err := s.stagedPath(rf.Path)
	if err != nil {
		return "", err
	}

	body, err := s.engine.GrabFile(ctx, rf)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return "", fmt.Errorf("failed to create target dir: %w", err)
	}

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create target file: %w", err)
	}

	counted := &countingReader{r: body, n: &s.localDone}

	if _, err := io.Copy(out, counted); err != nil {
		out.Close()
		os.Remove(target)

		return "", fmt.Errorf("failed to copy file: %w", err)
	}

	return target, out.Close()
}

// stagedPath maps a remote path under the staging dir. Remote names are
// untrusted; anything that would land outside the staging dir is rejected,
// or the deferred cleanup could never reach it.
func (s *Source) stagedPath(remote string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(remote))

	if rel == "." || rel == ".." ||
		filepath.IsAbs(rel) ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("remote path %q escapes the staging dir", remote)
	}

	return filepath.Join(s.stagingDir, rel), nil
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n.Add(int64(n))
	}

	return n, err
}

func (s *Source) fail(err error) {
	s.mu.Lock()
	if s.failure == nil {
		s.failure = err
	}
	s.mu.Unlock()
}

// Done reports true only once every materialized byte is on local disk.
func (s *Source) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.materialized
}

// Files lists the locally materialized files. Valid only once Done.
func (s *Source) Files(_ context.Context) ([]source.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.materialized {
		return nil, &task.AcquisitionError{Kind: task.SourceSwarm, Reason: "transfer not materialized"}
	}

	return append([]source.File(nil), s.localFiles...), nil
}

// Cancel aborts the acquisition. The remote transfer itself is torn down
// by Close.
func (s *Source) Cancel(_ context.Context) error {
	s.cancelOnce.Do(func() {
		s.fail(task.ErrCancelled)

		if s.cancelFn != nil {
			s.cancelFn()
		}
	})

	return nil
}

// Close removes the remote transfer and its data exactly once. Safe on
// every exit path, including before Begin succeeded.
func (s *Source) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.cancelFn != nil {
			s.cancelFn()
		}

		if s.transferID != 0 {
			s.closeErr = s.engine.RemoveTransfer(ctx, s.transferID)
		}
	})

	return s.closeErr
}
