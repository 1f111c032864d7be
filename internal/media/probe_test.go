package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsVideo(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"movie.mp4", true},
		{"show/ep1.MKV", true},
		{"clip.webm", true},
		{"old.avi", true},
		{"track.mp3", false},
		{"doc.pdf", false},
		{"noext", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsVideo(tt.path))
		})
	}
}

func TestFrameOffset(t *testing.T) {
	// Short clips take the midpoint.
	assert.Equal(t, 5*time.Second, frameOffset(10*time.Second))
	assert.Equal(t, 10*time.Second, frameOffset(20*time.Second))

	// Long clips stay 10s away from both ends.
	for range 50 {
		offset := frameOffset(2 * time.Minute)
		assert.GreaterOrEqual(t, offset, 10*time.Second)
		assert.LessOrEqual(t, offset, 110*time.Second)
	}
}
