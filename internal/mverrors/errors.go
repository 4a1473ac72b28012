// Package mverrors defines the small set of typed error kinds the ingestion
// core needs beyond plain wrapped stdlib errors (§7): a skip-not-fail
// Precondition signal, a Duplicate signal, and the two error kinds whose
// recoverability another component needs to inspect (AnalysisError,
// PlaybackError). Everything else is wrapped with fmt.Errorf("...: %w", err)
// at the boundary where it happens, matching the teacher's repository layer.
package mverrors

import "strings"

// ErrNotFound is returned by repository lookups that find no row.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return e.Resource + " not found: " + e.ID
}

// Precondition signals that an operation was skipped because a precondition
// didn't hold (e.g. a selection already terminal, a file no longer present).
// It is not a failure: callers treat it as a normal, logged no-op.
type Precondition struct {
	Reason string
}

func (e *Precondition) Error() string { return "precondition not met: " + e.Reason }

// Duplicate signals the File Importer found an existing non-deleted Media
// row with the same (hash_sha256, bytes) pair.
type Duplicate struct {
	ExistingMediaID uint64
}

func (e *Duplicate) Error() string { return "duplicate content" }

// AnalysisError wraps a failure from the Media Analyzer (decode, probe,
// hash, or EXIF extraction).
type AnalysisError struct {
	Path  string
	Cause error
}

func (e *AnalysisError) Error() string {
	return "analysis failed for " + e.Path + ": " + e.Cause.Error()
}

func (e *AnalysisError) Unwrap() error { return e.Cause }

// PlaybackError wraps a failure preparing or transcoding a MediaPlayback
// row. Note is a short machine-readable tag (e.g. "ffmpeg_missing",
// "ffmpeg_timeout") that IsRecoverable inspects.
type PlaybackError struct {
	Note  string
	Cause error
}

func (e *PlaybackError) Error() string {
	if e.Cause != nil {
		return "playback error (" + e.Note + "): " + e.Cause.Error()
	}
	return "playback error: " + e.Note
}

func (e *PlaybackError) Unwrap() error { return e.Cause }

// recoverableNotes are exact-match notes that do not count against the
// Retry Scheduler's exhaustion budget.
var recoverableNotes = map[string]bool{
	"ffmpeg_missing":   true,
	"playback_skipped": true,
}

// IsRecoverable reports whether a playback note should be treated as a
// transient condition rather than a genuine failure: an exact match against
// the known recoverable set, or any note prefixed "ffmpeg_" (covering the
// family of ffmpeg invocation problems that are worth retrying rather than
// exhausting the attempt budget on).
func IsRecoverable(note string) bool {
	if recoverableNotes[note] {
		return true
	}
	return strings.HasPrefix(note, "ffmpeg_")
}

// RetryExhausted signals the Retry Scheduler hit MaxAttempts without the
// underlying operation succeeding.
type RetryExhausted struct {
	TaskName string
	Attempts int
}

func (e *RetryExhausted) Error() string {
	return e.TaskName + ": retry attempts exhausted"
}

// TranscodeError wraps a failure from the Transcoder port (ffmpeg/ffprobe
// invocation, or a provider plugin call).
type TranscodeError struct {
	Stage string
	Cause error
}

func (e *TranscodeError) Error() string {
	return "transcode failed at " + e.Stage + ": " + e.Cause.Error()
}

func (e *TranscodeError) Unwrap() error { return e.Cause }
