package transcode

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeStderr_PrefersDimensionLine(t *testing.T) {
	stderr := "frame=1\nsome other line\nwidth not divisible by 2\ntrailer line"
	got := summarizeStderr(stderr)
	assert.Equal(t, "width not divisible by 2", got)
}

func TestSummarizeStderr_FallsBackToTail(t *testing.T) {
	stderr := strings.Repeat("x", 600)
	got := summarizeStderr(stderr)
	assert.Len(t, got, 500)
	assert.Equal(t, stderr[100:], got)
}

func TestEstimateBitrateKbps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(path, make([]byte, 125000), 0o644))

	kbps := estimateBitrateKbps(path, 1000)
	assert.Equal(t, 1000, kbps)
}

func TestEstimateBitrateKbps_ZeroDurationReturnsZero(t *testing.T) {
	assert.Equal(t, 0, estimateBitrateKbps("/nonexistent", 0))
}

func TestEstimateBitrateKbps_MissingFileReturnsZero(t *testing.T) {
	assert.Equal(t, 0, estimateBitrateKbps("/nonexistent/path.mp4", 1000))
}
