// Package source defines the uniform acquisition contract the orchestrator
// drives, regardless of whether bytes arrive over a direct HTTP fetch or a
// swarm transfer.
package source

import "context"

// PeerCounts is present only for swarm transfers.
type PeerCounts struct {
	Seeders  int64
	Leechers int64
}

// Snapshot is a point-in-time view of an acquisition in flight.
type Snapshot struct {
	Name         string
	BytesDone    int64
	BytesTotal   int64
	DownloadRate float64 // bytes/s
	UploadRate   float64 // bytes/s
	Peers        *PeerCounts
}

// File is one output of a completed acquisition.
type File struct {
	Name string // display name, relative within the transfer
	Path string // absolute path on local disk
}

// Source produces a byte stream to local storage and reports progress.
//
// Begin starts the transfer into the staging directory. Poll returns the
// current snapshot, or the transfer's failure once one occurred. Done
// reports whether all bytes for all constituent files have landed on disk.
// Files is valid only once Done reports true. Cancel is a best-effort
// abort; Close releases any engine-level resource and must be safe to call
// more than once and on every exit path.
type Source interface {
	Begin(ctx context.Context, stagingDir string) error
	Poll(ctx context.Context) (Snapshot, error)
	Done() bool
	Files(ctx context.Context) ([]File, error)
	Cancel(ctx context.Context) error
	Close(ctx context.Context) error
}
