// Package media shells out to ffprobe and ffmpeg for video metadata and
// thumbnail generation. Everything here is best-effort; callers degrade to
// plain uploads when the tools are missing or fail.
package media

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".webm": {},
}

// IsVideo reports whether the path carries a known video extension.
func IsVideo(path string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]

	return ok
}

// FFProber probes files with the ffmpeg toolchain.
type FFProber struct {
	FFprobePath string
	FFmpegPath  string
}

func NewFFProber() *FFProber {
	return &FFProber{
		FFprobePath: "ffprobe",
		FFmpegPath:  "ffmpeg",
	}
}

// Duration reads the container duration of a media file.
func (p *FFProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, p.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable ffprobe duration: %w", err)
	}

	return time.Duration(secs * float64(time.Second)), nil
}

// Thumbnail extracts a single 320px-wide frame as a jpg in the temp dir.
// The caller owns the returned file.
func (p *FFProber) Thumbnail(ctx context.Context, path string, duration time.Duration) (string, error) {
	target := filepath.Join(os.TempDir(), "thumb_"+randomHex(4)+".jpg")

	offset := frameOffset(duration)

	cmd := exec.CommandContext(ctx, p.FFmpegPath,
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 2, 64),
		"-i", path,
		"-vframes", "1",
		"-vf", "scale=320:-1",
		"-y",
		target,
	)

	if err := cmd.Run(); err != nil {
		os.Remove(target)

		return "", fmt.Errorf("ffmpeg failed: %w", err)
	}

	if _, err := os.Stat(target); err != nil {
		return "", fmt.Errorf("ffmpeg produced no thumbnail: %w", err)
	}

	return target, nil
}

// frameOffset picks a spot away from the very start for anything longer
// than 20 seconds, so the frame is not a black intro.
func frameOffset(duration time.Duration) time.Duration {
	secs := int64(duration.Seconds())
	if secs <= 20 {
		return duration / 2
	}

	span := secs - 20 // keep 10s off both ends

	n, err := rand.Int(rand.Reader, big.NewInt(span+1))
	if err != nil {
		return 10 * time.Second
	}

	return time.Duration(10+n.Int64()) * time.Second
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"[:n*2]
	}

	return hex.EncodeToString(buf)
}
