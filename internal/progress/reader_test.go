package progress_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/mirrorleech/mirror_relay/internal/progress"
	"github.com/stretchr/testify/assert"
)

func TestReader_ReportsAtInterval(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1000)

	var reports []int64
	pr := progress.NewReader(bytes.NewReader(data), 1000, 256, func(written, total int64) {
		assert.EqualValues(t, 1000, total)
		reports = append(reports, written)
	})

	n, err := io.Copy(io.Discard, pr)
	assert.NoError(t, err)
	assert.EqualValues(t, 1000, n)

	assert.NotEmpty(t, reports)
	assert.EqualValues(t, 1000, reports[len(reports)-1], "final report must reach the total")
}
