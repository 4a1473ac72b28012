// Package dedup implements the Duplicate Checker (§4.2) and the Metadata
// Refresher (§4.3).
package dedup

import (
	"context"
	"fmt"

	"github.com/mantonx/mediavault/internal/database"
	"github.com/mantonx/mediavault/internal/ingest/repository"
)

// Checker implements find_duplicate.
type Checker struct {
	media *repository.MediaRepository
}

func NewChecker(media *repository.MediaRepository) *Checker {
	return &Checker{media: media}
}

// FindDuplicate returns the non-deleted Media matching (fileHash, fileSize),
// or nil. Deleted media are ignored so a re-import after deletion creates a
// fresh row, per §4.2.
func (c *Checker) FindDuplicate(ctx context.Context, fileHash string, fileSize int64) (*database.Media, error) {
	m, err := c.media.FindByHash(ctx, fileHash, fileSize)
	if err != nil {
		return nil, fmt.Errorf("dedup: find duplicate: %w", err)
	}
	return m, nil
}
