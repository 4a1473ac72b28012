// Package types holds the value types passed between ingestion components:
// the Media Analyzer's result, the File Importer's result, and the small
// enums that don't warrant their own package.
package types

import "time"

// MediaFileAnalysis is the immutable result of analyzing one filesystem
// path (§4.1). Exactly one of the photo/video-shaped fields is meaningful,
// selected by IsVideo.
type MediaFileAnalysis struct {
	SourcePath          string
	Basename            string
	FileHash            string // hex SHA-256
	FileSize            int64
	MimeType            string
	IsVideo             bool
	Width               int
	Height              int
	Orientation         int
	DurationMs          int64
	ShotAt              *time.Time
	ExifData            map[string]interface{}
	VideoMetadata       map[string]interface{}
	DestinationFilename string
	RelativePath        string // archive-relative, YYYY/MM/DD/<base>.<ext>
	CameraMake          string
	CameraModel         string
}

// ImportStatus is the File Importer's result.status enum (§4.5).
type ImportStatus string

const (
	ImportStatusMissing            ImportStatus = "missing"
	ImportStatusUnsupported        ImportStatus = "unsupported"
	ImportStatusSkipped            ImportStatus = "skipped"
	ImportStatusDuplicate          ImportStatus = "duplicate"
	ImportStatusDuplicateRefreshed ImportStatus = "duplicate_refreshed"
	ImportStatusFailed             ImportStatus = "failed"
	ImportStatusSuccess            ImportStatus = "success"
)

// DuplicateRegenerationMode is the File Importer's duplicate_regeneration
// input, controlling whether a video duplicate's thumbnail is force
// regenerated after a metadata refresh.
type DuplicateRegenerationMode string

const (
	DuplicateRegenerate DuplicateRegenerationMode = "regenerate"
	DuplicateSkip       DuplicateRegenerationMode = "skip"
)

// ImportResult is the File Importer's single-file use case result (§4.5).
type ImportResult struct {
	Success            bool
	Status             ImportStatus
	Reason             string
	MediaID            *uint64
	MediaGoogleID      *string
	MetadataRefreshed  bool
	ImportedFilename   string
	ImportedPath       string
	RelativePath       string
	PostProcess        *PostProcessResult
	Warnings           []string
}

// PostProcessResult is the outcome of playback preparation (§4.7.1),
// carried inside ImportResult.PostProcess and the Queue Processor's
// per-file detail.
type PostProcessResult struct {
	OK         bool
	Note       string
	Error      string
	Thumbnails *ThumbnailResult
	Retry      *RetryDecision
}

// ThumbnailResult is the Thumbnail Worker's contract result (§4.7.2).
type ThumbnailResult struct {
	OK            bool
	Generated     []int
	Skipped       []int
	Notes         string
	Paths         map[int]string
	RetryBlockers map[string]interface{}
}

// RetryDecision is the Retry Scheduler's scheduling decision (§4.7.3).
type RetryDecision struct {
	Scheduled      bool
	Reason         string
	Countdown      time.Duration
	ExternalTaskID string
	Attempts       int
	MaxAttempts    int
	Blockers       map[string]interface{}
}

// TranscodeOutcome is the Transcoder port's successful result (§9).
type TranscodeOutcome struct {
	OutputPath string
	PosterPath string
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	BitrateKbps int
	DurationMs int64
}

// MediaProbe is what Transcoder.Probe returns: ffprobe-shaped stream info.
type MediaProbe struct {
	HasVideoStream bool
	HasAudioStream bool
	Width          int
	Height         int
	VideoCodec     string
	AudioCodec     string
	DurationMs     int64
	IsMP4          bool
}

// WorkerResult is the Transcode Worker's per-invocation result (§4.8).
type WorkerResult struct {
	OK         bool
	Note       string
	Error      string
	OutputPath string
	PosterPath string
	Width      int
	Height     int
	DurationMs int64
}

// SelectionFileDetail is one entry in a session's aggregate result list,
// appended by the Queue Processor (§4.6).
type SelectionFileDetail struct {
	File      string                 `json:"file"`
	Status    string                 `json:"status"`
	Reason    string                 `json:"reason,omitempty"`
	MediaID   *uint64                `json:"media_id,omitempty"`
	Thumbnail map[string]interface{} `json:"thumbnail,omitempty"`
}
