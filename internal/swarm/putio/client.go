// Package putio adapts the Put.io API to the swarm engine contract.
package putio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/mirrorleech/mirror_relay/internal/logctx"
	"github.com/mirrorleech/mirror_relay/internal/swarm"
	"github.com/putdotio/go-putio"
	"golang.org/x/oauth2"
)

const maxTorrentSize = 10 * 1024 * 1024 // Put.io rejects larger uploads anyway

type Client struct {
	putioClient *putio.Client
	httpClient  *http.Client
}

var _ swarm.Engine = (*Client)(nil)

func NewClient(token string, httpClient *http.Client) *Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	oauthClient := oauth2.NewClient(context.Background(), tokenSource)

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		putioClient: putio.NewClient(oauthClient),
		httpClient:  httpClient,
	}
}

// Authenticate verifies the token against the account endpoint.
func (c *Client) Authenticate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	user, err := c.putioClient.Account.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get account info: %w", err)
	}

	logger.InfoContext(ctx, "authenticated with Put.io", "user", user.Username)

	return nil
}

// AddTransferURL registers a magnet or torrent link with Put.io.
func (c *Client) AddTransferURL(ctx context.Context, link string) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	t, err := c.putioClient.Transfers.Add(ctx, link, 0, "")
	if err != nil {
		return 0, fmt.Errorf("failed to add transfer: %w", err)
	}

	logger.InfoContext(ctx, "transfer added to Put.io", "transfer_id", t.ID)

	return t.ID, nil
}

// AddTransferBytes uploads .torrent file content; Put.io detects the
// extension and creates the transfer itself.
func (c *Client) AddTransferBytes(ctx context.Context, torrent []byte, filename string) (int64, error) {
	logger := logctx.LoggerFromContext(ctx).With("filename", filename)

	if len(torrent) > maxTorrentSize {
		return 0, fmt.Errorf("torrent file %s exceeds %d bytes", filename, maxTorrentSize)
	}

	if !strings.EqualFold(filepath.Ext(filename), ".torrent") {
		return 0, fmt.Errorf("file %s must have a .torrent extension", filename)
	}

	upload, err := c.putioClient.Files.Upload(ctx, bytes.NewReader(torrent), filename, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to upload torrent: %w", err)
	}

	if upload.Transfer == nil {
		return 0, fmt.Errorf("no transfer created for %s, not a valid torrent", filename)
	}

	logger.InfoContext(ctx, "transfer created from torrent upload", "transfer_id", upload.Transfer.ID)

	return upload.Transfer.ID, nil
}

// Status reports the remote progress of a transfer.
func (c *Client) Status(ctx context.Context, transferID int64) (swarm.Status, error) {
	t, err := c.putioClient.Transfers.Get(ctx, transferID)
	if err != nil {
		return swarm.Status{}, fmt.Errorf("failed to get transfer: %w", err)
	}

	return swarm.Status{
		Name:         t.Name,
		BytesDone:    t.Downloaded,
		BytesTotal:   int64(t.Size),
		DownloadRate: float64(t.DownloadSpeed),
		UploadRate:   float64(t.UploadSpeed),
		Seeders:      int64(t.PeersSendingToUs),
		Leechers:     int64(t.PeersGettingFromUs),
		Complete:     isComplete(t.Status),
	}, nil
}

func isComplete(status string) bool {
	switch strings.ToUpper(status) {
	case "COMPLETED", "SEEDING":
		return true
	default:
		return false
	}
}

// Files resolves the file tree of a completed transfer.
func (c *Client) Files(ctx context.Context, transferID int64) ([]swarm.RemoteFile, error) {
	t, err := c.putioClient.Transfers.Get(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}

	if t.FileID == 0 {
		return nil, fmt.Errorf("transfer %d has no files yet", transferID)
	}

	return c.getFilesRecursively(ctx, t.FileID, "")
}

func (c *Client) getFilesRecursively(ctx context.Context, parentID int64, basePath string) ([]swarm.RemoteFile, error) {
	logger := logctx.LoggerFromContext(ctx).With("parent_id", parentID)

	file, err := c.putioClient.Files.Get(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	if !file.IsDir() {
		return []swarm.RemoteFile{{
			ID:   file.ID,
			Path: filepath.Join(basePath, file.Name),
			Size: file.Size,
		}}, nil
	}

	children, _, err := c.putioClient.Files.List(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var result []swarm.RemoteFile

	for _, f := range children {
		if f.IsDir() {
			nested, err := c.getFilesRecursively(ctx, f.ID, filepath.Join(basePath, file.Name))
			if err != nil {
				logger.ErrorContext(ctx, "failed to get nested files", "err", err)

				continue
			}

			result = append(result, nested...)

			continue
		}

		result = append(result, swarm.RemoteFile{
			ID:   f.ID,
			Path: filepath.Join(basePath, file.Name, f.Name),
			Size: f.Size,
		})
	}

	return result, nil
}

// GrabFile opens a streaming download of one remote file.
func (c *Client) GrabFile(ctx context.Context, file swarm.RemoteFile) (io.ReadCloser, error) {
	url, err := c.putioClient.Files.URL(ctx, file.ID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get file download url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build file request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()

		return nil, fmt.Errorf("failed to get file: HTTP %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// RemoveTransfer cancels the transfer and deletes its remote file data.
func (c *Client) RemoveTransfer(ctx context.Context, transferID int64) error {
	logger := logctx.LoggerFromContext(ctx)

	t, err := c.putioClient.Transfers.Get(ctx, transferID)
	if err != nil {
		return fmt.Errorf("failed to get transfer: %w", err)
	}

	if err := c.putioClient.Transfers.Cancel(ctx, transferID); err != nil {
		return fmt.Errorf("failed to remove transfer: %w", err)
	}

	if t.FileID != 0 {
		if err := c.putioClient.Files.Delete(ctx, t.FileID); err != nil {
			return fmt.Errorf("failed to delete remote file data: %w", err)
		}

		logger.InfoContext(ctx, "remote file data deleted", "file_id", t.FileID)
	}

	return nil
}
