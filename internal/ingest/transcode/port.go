// Package transcode implements the Transcode Scanner and Worker (§4.8)
// against a swappable Transcoder port (§9): probe(path) and
// transcode(source, dest, params), letting the default in-process ffmpeg
// implementation be replaced by an out-of-process plugin
// (internal/transcodeplugin) without the Worker's algorithm changing.
package transcode

import (
	"context"

	"github.com/mantonx/mediavault/internal/ingest/types"
)

// Params configures one Transcode call; defaults mirror §4.8 step 5.
type Params struct {
	MaxWidth  int
	MaxHeight int
	CRF       int
	Preset    string
	AudioKbps int
}

// DefaultParams returns the std1080p preset's fixed parameters.
func DefaultParams() Params {
	return Params{MaxWidth: 1920, MaxHeight: 1080, CRF: 20, Preset: "veryfast", AudioKbps: 128}
}

// Transcoder is the port the Transcode Worker depends on. The default
// implementation (FFmpegTranscoder) runs ffmpeg/ffprobe as subprocesses;
// internal/transcodeplugin adapts the same interface to a go-plugin
// net/rpc client so a provider can run out of process.
type Transcoder interface {
	Probe(ctx context.Context, path string) (types.MediaProbe, error)
	Transcode(ctx context.Context, source, dest string, params Params) (types.TranscodeOutcome, error)
}
