package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mirrorleech/mirror_relay/internal/fetch"
	"github.com/mirrorleech/mirror_relay/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatal("condition not met in time")
}

func TestDirectSource_DownloadsToStaging(t *testing.T) {
	payload := []byte("hello, staging dir")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="greeting.txt"`)
		w.Write(payload)
	}))
	defer ts.Close()

	dir := t.TempDir()
	src := fetch.NewDirectSource(ts.Client(), ts.URL+"/d", "file.bin")

	require.NoError(t, src.Begin(context.Background(), dir))
	waitFor(t, src.Done)

	files, err := src.Files(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "greeting.txt", files[0].Name)
	assert.Equal(t, filepath.Join(dir, "greeting.txt"), files[0].Path)

	got, err := os.ReadFile(files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	snap, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), snap.BytesDone)
	assert.Nil(t, snap.Peers, "direct sources have no peer counts")
}

func TestDirectSource_HTTPErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The filename HEAD probe may hit this too; every verb fails.
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	src := fetch.NewDirectSource(ts.Client(), ts.URL+"/denied.bin", "file.bin")

	err := src.Begin(context.Background(), t.TempDir())
	require.Error(t, err)

	var acqErr *task.AcquisitionError
	assert.True(t, errors.As(err, &acqErr))
	assert.Contains(t, acqErr.Reason, "403")
}

func TestDirectSource_CancelRemovesPartialFile(t *testing.T) {
	release := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}

		w.Header().Set("Content-Length", "1048576")
		w.Write(make([]byte, 4096))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer ts.Close()
	defer close(release)

	dir := t.TempDir()
	src := fetch.NewDirectSource(ts.Client(), ts.URL+"/slow.bin", "file.bin")

	require.NoError(t, src.Begin(context.Background(), dir))

	waitFor(t, func() bool {
		snap, err := src.Poll(context.Background())
		return err == nil && snap.BytesDone > 0
	})

	require.NoError(t, src.Cancel(context.Background()))

	waitFor(t, func() bool {
		_, err := src.Poll(context.Background())
		return err != nil
	})

	_, err := src.Poll(context.Background())
	assert.ErrorIs(t, err, task.ErrCancelled)
	assert.False(t, src.Done())

	// The partial file must be gone.
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}
