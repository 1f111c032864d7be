package render_test

import (
	"strings"
	"testing"
	"time"

	"github.com/mirrorleech/mirror_relay/internal/render"
	"github.com/stretchr/testify/assert"
)

func TestProgressBar_SegmentCounts(t *testing.T) {
	for p := 0; p <= 100; p++ {
		bar := render.ProgressBar(p)

		filled := strings.Count(bar, "▣")
		empty := strings.Count(bar, "▢")

		assert.Equal(t, p/5, filled, "percentage %d", p)
		assert.Equal(t, 20, filled+empty, "percentage %d", p)
	}
}

func TestProgressBar_OutOfRange(t *testing.T) {
	assert.Equal(t, render.ProgressBar(0), render.ProgressBar(-10))
	assert.Equal(t, render.ProgressBar(100), render.ProgressBar(250))
}

func TestElapsed(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{"zero", 0, "0s"},
		{"seconds only", 59 * time.Second, "59s"},
		{"minute and second", 61 * time.Second, "1m 1s"},
		{"hour minute second", 3661 * time.Second, "1h 1m 1s"},
		{"hour with zero minutes", 3601 * time.Second, "1h 0m 1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render.Elapsed(tt.in))
		})
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, render.Percentage(50, 0))
	assert.Equal(t, 0, render.Percentage(0, 100))
	assert.Equal(t, 50, render.Percentage(50, 100))
	assert.Equal(t, 33, render.Percentage(1, 3))
	assert.Equal(t, 100, render.Percentage(100, 100))
}

func TestRate_ZeroElapsed(t *testing.T) {
	assert.Zero(t, render.Rate(1024, 0))
	assert.InDelta(t, 512, render.Rate(1024, 2*time.Second), 0.001)
}

func TestSize(t *testing.T) {
	assert.Equal(t, "1.00 MB", render.Size(1024*1024))
	assert.Equal(t, "0.50 MB", render.Size(512*1024))
}

func TestDownloadStatus_PeersOnlyForSwarm(t *testing.T) {
	swarm := render.DownloadStatus("abc123", render.Download{
		Name:       "ubuntu.iso",
		BytesDone:  50,
		BytesTotal: 100,
		HasPeers:   true,
		Seeders:    12,
		Leechers:   3,
		Elapsed:    time.Minute,
	})
	assert.Contains(t, swarm, "Task ID: abc123")
	assert.Contains(t, swarm, "Seeders: 12 | Leechers: 3")
	assert.Contains(t, swarm, "Done: 50%")

	direct := render.DownloadStatus("abc123", render.Download{
		Name:       "report.pdf",
		BytesDone:  25,
		BytesTotal: 100,
		Elapsed:    time.Second,
	})
	assert.NotContains(t, direct, "Seeders")
	assert.Contains(t, direct, "Done: 25%")
}

func TestUploadStatus(t *testing.T) {
	got := render.UploadStatus("abc123", "movie.mkv", 30, 100, 3*time.Second)

	assert.Contains(t, got, "Task ID: abc123")
	assert.Contains(t, got, "movie.mkv")
	assert.Contains(t, got, "Done: 30%")
	assert.Contains(t, got, "Elapsed: 3s")
}
