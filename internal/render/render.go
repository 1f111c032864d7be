// Package render holds the pure formatting helpers that turn progress
// numbers into the status message text. Nothing in here keeps state.
package render

import (
	"fmt"
	"strings"
	"time"
)

const (
	barSegments    = 20
	segmentPercent = 100 / barSegments

	filledGlyph = "▣"
	emptyGlyph  = "▢"
)

// ProgressBar renders a fixed 20-segment bar, one filled segment per 5%.
func ProgressBar(percentage int) string {
	if percentage < 0 {
		percentage = 0
	}

	if percentage > 100 {
		percentage = 100
	}

	filled := percentage / segmentPercent

	return strings.Repeat(filledGlyph, filled) + strings.Repeat(emptyGlyph, barSegments-filled)
}

// Percentage returns floor(100*done/total), or 0 when the total is unknown.
func Percentage(done, total int64) int {
	if total <= 0 {
		return 0
	}

	return int(done * 100 / total)
}

// Rate returns bytes per second, guarding the division at t=0.
func Rate(done int64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}

	return float64(done) / secs
}

// Size renders a byte count as megabytes with two decimals.
func Size(bytes float64) string {
	return fmt.Sprintf("%.2f MB", bytes/(1024*1024))
}

// Elapsed renders a duration as "1h 1m 1s", omitting leading zero-valued
// units. Seconds are always present.
func Elapsed(d time.Duration) string {
	secs := int64(d.Seconds())
	mins, secs := secs/60, secs%60
	hrs, mins := mins/60, mins%60

	switch {
	case hrs > 0:
		return fmt.Sprintf("%dh %dm %ds", hrs, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// Download is the input to a download status render. Seeders/Leechers are
// shown only when HasPeers is set (swarm transfers).
type Download struct {
	Name         string
	BytesDone    int64
	BytesTotal   int64
	DownloadRate float64
	UploadRate   float64
	HasPeers     bool
	Seeders      int64
	Leechers     int64
	Elapsed      time.Duration
}

// DownloadStatus renders the one status message body for an in-flight
// acquisition.
func DownloadStatus(taskID string, d Download) string {
	pct := Percentage(d.BytesDone, d.BytesTotal)

	var b strings.Builder
	fmt.Fprintf(&b, "Task ID: %s\n🔹 <b>%s</b>\n%s\n\n", taskID, d.Name, ProgressBar(pct))
	fmt.Fprintf(&b, "🔗 Size: %s / %s\n", Size(float64(d.BytesDone)), Size(float64(d.BytesTotal)))
	fmt.Fprintf(&b, "⏳ Done: %d%%\n", pct)

	if d.HasPeers {
		fmt.Fprintf(&b, "🚀 Speed: ↓ %s/s | ↑ %s/s\n", Size(d.DownloadRate), Size(d.UploadRate))
		fmt.Fprintf(&b, "👥 Seeders: %d | Leechers: %d\n", d.Seeders, d.Leechers)
	} else {
		fmt.Fprintf(&b, "🚀 Speed: %s/s\n", Size(d.DownloadRate))
	}

	fmt.Fprintf(&b, "⏰ Elapsed: %s", Elapsed(d.Elapsed))

	return b.String()
}

// UploadStatus renders the status message body for one file being relayed.
func UploadStatus(taskID, fileName string, done, total int64, elapsed time.Duration) string {
	pct := Percentage(done, total)
	rate := Rate(done, elapsed)

	var b strings.Builder
	fmt.Fprintf(&b, "Task ID: %s\n🔹 <b>%s</b>\n%s\n\n", taskID, fileName, ProgressBar(pct))
	fmt.Fprintf(&b, "🔗 Size: %s / %s\n", Size(float64(done)), Size(float64(total)))
	fmt.Fprintf(&b, "⏳ Done: %d%%\n", pct)
	fmt.Fprintf(&b, "🚀 Speed: %s/s\n", Size(rate))
	fmt.Fprintf(&b, "⏰ Elapsed: %s", Elapsed(elapsed))

	return b.String()
}
