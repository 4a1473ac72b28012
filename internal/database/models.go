package database

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Media is the catalog entry for one imported file. Soft-deleted rows are
// never physically removed by the core; IsDeleted is the tombstone flag
// the Duplicate Checker and every reader filter on.
type Media struct {
	ID                uint64     `gorm:"primaryKey" json:"id"`
	GoogleMediaID      string     `gorm:"uniqueIndex:idx_media_google_media_id_not_deleted;not null" json:"google_media_id"`
	AccountID         *string    `gorm:"index" json:"account_id,omitempty"`
	LocalRelPath      string     `gorm:"not null" json:"local_rel_path"`
	Filename          string     `gorm:"not null" json:"filename"`
	HashSHA256        string     `gorm:"index:idx_media_hash_bytes;not null" json:"hash_sha256"`
	Bytes             int64      `gorm:"index:idx_media_hash_bytes;not null" json:"bytes"`
	MimeType          string     `json:"mime_type"`
	Width             int        `json:"width"`
	Height            int        `json:"height"`
	DurationMs        *int64     `json:"duration_ms,omitempty"`
	ShotAt            *time.Time `json:"shot_at,omitempty"`
	ImportedAt        time.Time  `gorm:"not null" json:"imported_at"`
	Orientation       *int       `json:"orientation,omitempty"`
	IsVideo           bool       `gorm:"not null;index" json:"is_video"`
	IsDeleted         bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	HasPlayback       bool       `gorm:"not null;default:false" json:"has_playback"`
	ThumbnailRelPath  *string    `json:"thumbnail_rel_path,omitempty"`
	CameraMake        *string    `json:"camera_make,omitempty"`
	CameraModel       *string    `json:"camera_model,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// MediaKindType tags which of PhotoMetadata/VideoMetadata a MediaItem
// carries. It is stored in MediaItem.Type; in memory
// MediaItem.PhotoMetadata/VideoMetadata hold at most one populated
// pointer, matching the variant the Type column names.
type MediaKindType string

const (
	MediaKindPhoto       MediaKindType = "PHOTO"
	MediaKindVideo       MediaKindType = "VIDEO"
	MediaKindUnspecified MediaKindType = "TYPE_UNSPECIFIED"
)

func (k MediaKindType) Value() (driver.Value, error) { return string(k), nil }

func (k *MediaKindType) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*k = MediaKindUnspecified
	case string:
		*k = MediaKindType(v)
	case []byte:
		*k = MediaKindType(v)
	default:
		return fmt.Errorf("cannot scan %T into MediaKindType", value)
	}
	return nil
}

// MediaItem is the content-descriptor sibling of a Media, paired 1:1 via
// GoogleMediaID. Exactly one of PhotoMetadata/VideoMetadata is populated,
// selected by Type.
type MediaItem struct {
	ID            string        `gorm:"type:varchar(64);primaryKey" json:"id"`
	GoogleMediaID string        `gorm:"uniqueIndex;not null" json:"google_media_id"`
	Type          MediaKindType `gorm:"type:text;not null" json:"type"`
	MimeType      string        `json:"mime_type"`
	Filename      string        `json:"filename"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	PhotoMetadata *PhotoMetadata `gorm:"foreignKey:MediaItemID;constraint:OnDelete:CASCADE" json:"photo_metadata,omitempty"`
	VideoMetadata *VideoMetadata `gorm:"foreignKey:MediaItemID;constraint:OnDelete:CASCADE" json:"video_metadata,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// PhotoMetadata is owned by MediaItem and cascade-deleted with it.
type PhotoMetadata struct {
	MediaItemID  string  `gorm:"type:varchar(64);primaryKey" json:"media_item_id"`
	CameraMake   *string `json:"camera_make,omitempty"`
	CameraModel  *string `json:"camera_model,omitempty"`
	FocalLength  *float64 `json:"focal_length,omitempty"`
	ApertureFNumber *float64 `json:"aperture_f_number,omitempty"`
	ISOEquivalent *int   `json:"iso_equivalent,omitempty"`
	ExposureTime *string `json:"exposure_time,omitempty"`
}

// VideoMetadata is owned by MediaItem and cascade-deleted with it.
type VideoMetadata struct {
	MediaItemID string   `gorm:"type:varchar(64);primaryKey" json:"media_item_id"`
	CameraMake  *string  `json:"camera_make,omitempty"`
	CameraModel *string  `json:"camera_model,omitempty"`
	Fps         *float64 `json:"fps,omitempty"`
	ProcessingStatus string `json:"processing_status"`
}

// Exif is an optional 1:1 with Media, holding raw and parsed EXIF.
type Exif struct {
	MediaID          uint64         `gorm:"primaryKey" json:"media_id"`
	Raw              datatypes.JSON `gorm:"type:text" json:"raw,omitempty"`
	DateTimeOriginal *time.Time     `json:"date_time_original,omitempty"`
	OffsetTimeOriginal *string      `json:"offset_time_original,omitempty"`
	Orientation      *int           `json:"orientation,omitempty"`
	CameraMake       *string        `json:"camera_make,omitempty"`
	CameraModel      *string        `json:"camera_model,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// PlaybackPreset names a transcoding profile. std1080p is the only one
// this core's Transcode Scanner/Worker drive end to end.
type PlaybackPreset string

const (
	PlaybackPresetOriginal PlaybackPreset = "original"
	PlaybackPresetPreview  PlaybackPreset = "preview"
	PlaybackPresetMobile   PlaybackPreset = "mobile"
	PlaybackPresetStd1080p PlaybackPreset = "std1080p"
)

// PlaybackStatus is MediaPlayback's state-machine column.
type PlaybackStatus string

const (
	PlaybackStatusPending    PlaybackStatus = "pending"
	PlaybackStatusProcessing PlaybackStatus = "processing"
	PlaybackStatusDone       PlaybackStatus = "done"
	PlaybackStatusError      PlaybackStatus = "error"
)

// MediaPlayback is a derivative rendition of a video Media. At most one row
// per (media_id, preset) is considered active for scheduling; Status = done
// implies RelPath names a file that exists under the playback store.
type MediaPlayback struct {
	ID            uint64         `gorm:"primaryKey" json:"id"`
	MediaID       uint64         `gorm:"not null;uniqueIndex:idx_playback_media_preset" json:"media_id"`
	Preset        PlaybackPreset `gorm:"type:text;not null;uniqueIndex:idx_playback_media_preset" json:"preset"`
	RelPath       *string        `json:"rel_path,omitempty"`
	PosterRelPath *string        `json:"poster_rel_path,omitempty"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	VideoCodec    string         `json:"video_codec"`
	AudioCodec    string         `json:"audio_codec"`
	BitrateKbps   int            `json:"bitrate_kbps"`
	DurationMs    int64          `json:"duration_ms"`
	Status        PlaybackStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	ErrorMsg      *string        `json:"error_msg,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// PickerSessionStatus is the user-visible ingestion job's state machine.
type PickerSessionStatus string

const (
	SessionStatusPending    PickerSessionStatus = "pending"
	SessionStatusExpanding  PickerSessionStatus = "expanding"
	SessionStatusProcessing PickerSessionStatus = "processing"
	SessionStatusImporting  PickerSessionStatus = "importing"
	SessionStatusImported   PickerSessionStatus = "imported"
	SessionStatusError      PickerSessionStatus = "error"
	SessionStatusCanceled   PickerSessionStatus = "canceled"
	SessionStatusExpired    PickerSessionStatus = "expired"
	SessionStatusFailed     PickerSessionStatus = "failed"
	SessionStatusReady      PickerSessionStatus = "ready"
)

// TerminalSessionStatuses are the statuses P7 forbids transitioning away
// from within a single Use Case execution.
var TerminalSessionStatuses = map[PickerSessionStatus]bool{
	SessionStatusImported: true,
	SessionStatusError:    true,
	SessionStatusCanceled: true,
	SessionStatusExpired:  true,
	SessionStatusFailed:   true,
}

// PickerSession is the user-visible ingestion job. Stats is a free-form
// JSON blob; internal/ingest/session and internal/ingest/localimport write
// known keys into it, and unknown keys round-trip untouched so UI-only
// extensions survive a write.
type PickerSession struct {
	ID              uint64              `gorm:"primaryKey" json:"id"`
	SessionID       string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"session_id"`
	Status          PickerSessionStatus `gorm:"type:text;not null;default:'pending'" json:"status"`
	AccountID       *string             `json:"account_id,omitempty"`
	SelectedCount   int                 `json:"selected_count"`
	LastProgressAt  *time.Time          `json:"last_progress_at,omitempty"`
	LastPolledAt    *time.Time          `json:"last_polled_at,omitempty"`
	StatsJSON       datatypes.JSON      `gorm:"type:text" json:"stats"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// PickerSelectionStatus is one PickerSelection's per-file lifecycle.
type PickerSelectionStatus string

const (
	SelectionStatusPending   PickerSelectionStatus = "pending"
	SelectionStatusEnqueued  PickerSelectionStatus = "enqueued"
	SelectionStatusRunning   PickerSelectionStatus = "running"
	SelectionStatusImported  PickerSelectionStatus = "imported"
	SelectionStatusDup       PickerSelectionStatus = "dup"
	SelectionStatusFailed    PickerSelectionStatus = "failed"
	SelectionStatusSkipped   PickerSelectionStatus = "skipped"
	SelectionStatusExpired   PickerSelectionStatus = "expired"
	SelectionStatusCanceled  PickerSelectionStatus = "canceled"
)

// TerminalSelectionStatuses backs the "a selection is terminal iff..."
// invariant from §3.
var TerminalSelectionStatuses = map[PickerSelectionStatus]bool{
	SelectionStatusImported: true,
	SelectionStatusDup:      true,
	SelectionStatusFailed:   true,
	SelectionStatusSkipped:  true,
	SelectionStatusExpired:  true,
	SelectionStatusCanceled: true,
}

// PickerSelection is one file/item within a Session.
type PickerSelection struct {
	ID                uint64                `gorm:"primaryKey" json:"id"`
	SessionID         uint64                `gorm:"not null;index;uniqueIndex:idx_selection_session_google_media" json:"session_id"`
	GoogleMediaID     *string               `gorm:"uniqueIndex:idx_selection_session_google_media" json:"google_media_id,omitempty"`
	LocalFilePath     *string               `json:"local_file_path,omitempty"`
	LocalFilename     *string               `json:"local_filename,omitempty"`
	Status            PickerSelectionStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	Attempts          int                   `gorm:"not null;default:0" json:"attempts"`
	EnqueuedAt        *time.Time            `json:"enqueued_at,omitempty"`
	StartedAt         *time.Time            `json:"started_at,omitempty"`
	FinishedAt        *time.Time            `json:"finished_at,omitempty"`
	Error             *string               `json:"error,omitempty"`
	MediaID           *uint64               `gorm:"index" json:"media_id,omitempty"`
	LockedBy          *string               `json:"locked_by,omitempty"`
	LockHeartbeatAt   *time.Time            `json:"lock_heartbeat_at,omitempty"`
	BaseURL           *string               `json:"base_url,omitempty"`
	BaseURLValidUntil *time.Time            `json:"base_url_valid_until,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// TaskRecordStatus is the generic background-job status column, shared by
// the Retry Scheduler and any other component tracking an out-of-band
// invocation.
type TaskRecordStatus string

const (
	TaskStatusScheduled TaskRecordStatus = "scheduled"
	TaskStatusQueued    TaskRecordStatus = "queued"
	TaskStatusRunning   TaskRecordStatus = "running"
	TaskStatusSuccess   TaskRecordStatus = "success"
	TaskStatusFailed    TaskRecordStatus = "failed"
	TaskStatusCanceled  TaskRecordStatus = "canceled"
)

// TaskRecord is the generic task-tracking row used by the Retry Scheduler
// and any other background job that needs to persist an invocation. It has
// no ownership relation to other entities; it is indexed by
// (task_name, object_type, object_id).
type TaskRecord struct {
	ID             uint64           `gorm:"primaryKey" json:"id"`
	TaskName       string           `gorm:"not null;index:idx_task_name_status" json:"task_name"`
	ObjectType     *string          `gorm:"index:idx_task_object" json:"object_type,omitempty"`
	ObjectID       *string          `gorm:"index:idx_task_object" json:"object_id,omitempty"`
	ExternalTaskID *string          `gorm:"uniqueIndex" json:"external_task_id,omitempty"`
	Status         TaskRecordStatus `gorm:"type:text;not null;default:'queued';index:idx_task_name_status" json:"status"`
	ScheduledFor   *time.Time       `json:"scheduled_for,omitempty"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	PayloadJSON    datatypes.JSON   `gorm:"type:text" json:"payload"`
	ResultJSON     datatypes.JSON   `gorm:"type:text" json:"result"`
	ErrorMessage   *string          `json:"error_message,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
