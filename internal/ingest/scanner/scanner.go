// Package scanner implements the Directory Scanner (§4.4): a recursive
// walk of the import directory that expands .zip archives into per-archive
// temp directories and emits every supported file's absolute path.
package scanner

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mantonx/mediavault/internal/archive"
	"github.com/mantonx/mediavault/internal/logger"
	"github.com/shirou/gopsutil/v4/disk"
)

// Scanner is the Directory Scanner collaborator.
type Scanner struct {
	tempRoot  string
	tempDirs  []string
	log       logger.Logger
	minFreeMB uint64
}

// New returns a Scanner that extracts archives under tempRoot. minFreeMB,
// when non-zero, is the minimum free space required on tempRoot's
// filesystem before a ZIP is expanded.
func New(tempRoot string, minFreeMB uint64, log logger.Logger) *Scanner {
	return &Scanner{tempRoot: tempRoot, log: logger.OrNop(log), minFreeMB: minFreeMB}
}

// Scan walks importDir and returns every supported file's absolute path,
// expanding any .zip archives it encounters along the way. Unsupported
// extensions are skipped silently; corrupt archives are logged and skipped
// without aborting the scan. Call Cleanup when done to remove any
// per-archive temp directories created during this run.
func (s *Scanner) Scan(importDir string) ([]string, error) {
	var found []string

	err := filepath.WalkDir(importDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			s.log.Warn("local_import.scan.walk_error", logger.F("path", path), logger.F("error", walkErr.Error()))
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		switch {
		case ext == archive.ArchiveExtension:
			extracted, zerr := s.expandZip(path)
			if zerr != nil {
				s.log.Warn("local_import.scan.archive_corrupt", logger.F("path", path), logger.F("error", zerr.Error()))
				return nil
			}
			found = append(found, extracted...)
		case archive.IsSupported(ext):
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanner: walk %s: %w", importDir, err)
	}

	if len(found) == 0 {
		s.log.Event("local_import.scan.empty", logger.F("import_dir", importDir))
	} else {
		s.log.Event("local_import.scan.complete", logger.F("import_dir", importDir), logger.F("count", len(found)))
	}
	return found, nil
}

// expandZip extracts path into a freshly created per-archive temp
// directory and recursively scans the result, returning supported file
// paths (archives nested within archives are expanded too).
func (s *Scanner) expandZip(path string) ([]string, error) {
	if s.minFreeMB > 0 {
		if usage, err := disk.Usage(s.tempRoot); err == nil {
			freeMB := usage.Free / (1024 * 1024)
			if freeMB < s.minFreeMB {
				return nil, fmt.Errorf("insufficient free space on temp root: %d MB free, need %d MB", freeMB, s.minFreeMB)
			}
		}
	}

	dir, err := os.MkdirTemp(s.tempRoot, "mediavault-zip-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	s.tempDirs = append(s.tempDirs, dir)

	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(dir, filepath.Clean(f.Name))
		if !strings.HasPrefix(destPath, filepath.Clean(dir)+string(os.PathSeparator)) {
			return nil, fmt.Errorf("zip entry escapes extraction dir: %s", f.Name)
		}
		if err := extractZipEntry(f, destPath); err != nil {
			return nil, fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}

	return s.Scan(dir)
}

func extractZipEntry(f *zip.File, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// Cleanup removes every temp directory created by expandZip during this
// Scanner's lifetime. Safe to call multiple times.
func (s *Scanner) Cleanup() {
	for _, dir := range s.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn("local_import.file.cleanup_failed", logger.F("dir", dir), logger.F("error", err.Error()))
		} else {
			s.log.Event("local_import.file.cleanup", logger.F("dir", dir))
		}
	}
	s.tempDirs = nil
}
