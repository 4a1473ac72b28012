package localimport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mantonx/mediavault/internal/clock"
	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/queue"
	"github.com/mantonx/mediavault/internal/ingest/repository"
	"github.com/mantonx/mediavault/internal/ingest/session"
	"github.com/mantonx/mediavault/internal/ingest/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubImporter struct {
	fail map[string]bool
}

func (s *stubImporter) Import(ctx context.Context, filePath string, sessionID *string, duplicateMode types.DuplicateRegenerationMode) types.ImportResult {
	if s.fail[filePath] {
		return types.ImportResult{Status: types.ImportStatusFailed, Reason: "boom"}
	}
	id := uint64(1)
	return types.ImportResult{Status: types.ImportStatusSuccess, Success: true, MediaID: &id}
}

func newUseCaseFixture(t *testing.T, imp queue.Importer) (*UseCase, string, string) {
	t.Helper()
	db := setupTestDB(t)
	sessions := repository.NewSessionRepository(db)
	selections := repository.NewSelectionRepository(db)
	media := repository.NewMediaRepository(db)
	taskrecords := repository.NewTaskRecordRepository(db)
	sessionSvc := session.NewService(sessions, clock.Real, nil)
	q := queue.New(selections, nil)

	// stubImporter reports media id 1 for every success; this is that Media
	// row, with its thumbnail already generated.
	thumb := "2026/01/01/a_256.jpg"
	require.NoError(t, media.Create(context.Background(), &database.Media{
		GoogleMediaID: "g1", LocalRelPath: "2026/01/01/a.jpg", Filename: "a.jpg", HashSHA256: "h1", Bytes: 1,
		ImportedAt: time.Now().UTC(), ThumbnailRelPath: &thumb,
	}))

	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	destDir := filepath.Join(dir, "dest")
	require.NoError(t, os.MkdirAll(importDir, 0o755))
	require.NoError(t, os.MkdirAll(destDir, 0o755))

	uc := New(sessions, selections, media, taskrecords, sessionSvc, q, imp, nil, filepath.Join(dir, "tmp"), 0, nil)
	return uc, importDir, destDir
}

func writePlainFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("fake-image-bytes"), 0o644))
}

func TestUseCase_Run_ImportsAllScannedFiles(t *testing.T) {
	uc, importDir, destDir := newUseCaseFixture(t, &stubImporter{})
	writePlainFile(t, filepath.Join(importDir, "a.jpg"))
	writePlainFile(t, filepath.Join(importDir, "b.jpg"))

	sess, err := uc.Run(context.Background(), Request{ImportDir: importDir, DestinationDir: destDir, DuplicateMode: types.DuplicateSkip}, nil)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, database.SessionStatusImported, sess.Status)
}

func TestUseCase_Run_MissingImportDirMarksError(t *testing.T) {
	uc, importDir, destDir := newUseCaseFixture(t, &stubImporter{})
	sess, err := uc.Run(context.Background(), Request{ImportDir: filepath.Join(importDir, "nope"), DestinationDir: destDir, DuplicateMode: types.DuplicateSkip}, nil)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, database.SessionStatusError, sess.Status)
}

func TestUseCase_Run_NoFilesFoundMarksError(t *testing.T) {
	uc, importDir, destDir := newUseCaseFixture(t, &stubImporter{})
	sess, err := uc.Run(context.Background(), Request{ImportDir: importDir, DestinationDir: destDir, DuplicateMode: types.DuplicateSkip}, nil)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, database.SessionStatusError, sess.Status)
}

func TestUseCase_Run_SomeFailuresMarksErrorStatus(t *testing.T) {
	uc, importDir, destDir := newUseCaseFixture(t, &stubImporter{fail: map[string]bool{filepath.Join(importDir, "bad.jpg"): true}})
	writePlainFile(t, filepath.Join(importDir, "bad.jpg"))
	writePlainFile(t, filepath.Join(importDir, "good.jpg"))

	sess, err := uc.Run(context.Background(), Request{ImportDir: importDir, DestinationDir: destDir, DuplicateMode: types.DuplicateSkip}, nil)
	require.NoError(t, err)
	assert.Equal(t, database.SessionStatusError, sess.Status)
}

func TestUseCase_Run_ResumesExistingSession(t *testing.T) {
	uc, importDir, destDir := newUseCaseFixture(t, &stubImporter{})
	writePlainFile(t, filepath.Join(importDir, "a.jpg"))

	sessionID := "local-existing"
	sessions := repository.NewSessionRepository(uc.media.DB())
	require.NoError(t, sessions.Create(context.Background(), &database.PickerSession{SessionID: sessionID, Status: database.SessionStatusExpanding}))

	sess, err := uc.Run(context.Background(), Request{SessionID: &sessionID, ImportDir: importDir, DestinationDir: destDir, DuplicateMode: types.DuplicateSkip}, nil)
	require.NoError(t, err)
	assert.Equal(t, sessionID, sess.SessionID)
}
