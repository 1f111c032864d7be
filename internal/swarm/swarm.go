// Package swarm implements the swarm-transfer acquisition source. The
// transfer itself runs on a remote engine; once the engine reports the
// transfer complete, the files are materialized onto local disk.
package swarm

import (
	"context"
	"io"
)

// Status is the engine's view of a transfer in flight.
type Status struct {
	Name         string
	BytesDone    int64
	BytesTotal   int64
	DownloadRate float64 // bytes/s
	UploadRate   float64 // bytes/s
	Seeders      int64
	Leechers     int64
	Complete     bool
}

// RemoteFile is one file of a completed transfer, still on the engine.
type RemoteFile struct {
	ID   int64
	Path string // relative within the transfer
	Size int64
}

// Engine is the remote transfer backend.
type Engine interface {
	AddTransferURL(ctx context.Context, link string) (int64, error)
	AddTransferBytes(ctx context.Context, torrent []byte, filename string) (int64, error)
	Status(ctx context.Context, transferID int64) (Status, error)
	Files(ctx context.Context, transferID int64) ([]RemoteFile, error)
	GrabFile(ctx context.Context, file RemoteFile) (io.ReadCloser, error)
	RemoveTransfer(ctx context.Context, transferID int64) error
}
