// Package store persists brands, mentions and alert settings in
// Postgres. Collections (keywords, subreddits, watermarks) live in
// JSONB columns; serialization stays inside this package and business
// logic only ever sees typed slices and maps.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
)

// BrandStore reads brand configuration and writes scan state.
type BrandStore interface {
	GetBrand(ctx context.Context, id int64) (*models.Brand, error)
	ListBrandsForUser(ctx context.Context, userEmail string) ([]models.Brand, error)
	ListAllBrands(ctx context.Context) ([]models.Brand, error)

	// UpdateBrandScanState persists the watermark map and
	// last_analyzed in a single statement. It is the only write path
	// for either field; the batch scanner is its only caller.
	UpdateBrandScanState(ctx context.Context, brandID int64, watermarks map[string]int64, lastAnalyzed time.Time) error
}

// MentionStore is the dedup-by-URL upsert store for discovered
// matches.
type MentionStore interface {
	FindMentionByURL(ctx context.Context, brandID int64, url string) (*models.Mention, error)

	// CreateMention inserts the mention unless one already exists for
	// (brand, url). It reports whether a row was actually created, so
	// concurrent duplicate invocations stay at-most-once.
	CreateMention(ctx context.Context, m *models.Mention) (bool, error)

	// UpdateMentionStats refreshes the volatile fields only.
	UpdateMentionStats(ctx context.Context, id int64, score, numComments int) error

	ListMentionsByBrand(ctx context.Context, brandID int64) ([]models.Mention, error)
	ListRecentMentionsForBrands(ctx context.Context, brandIDs []int64, since time.Time) ([]models.Mention, error)
}

// AlertSettingStore reads notification configuration.
type AlertSettingStore interface {
	// ListActiveAlertSettings returns active settings with at least
	// one delivery channel enabled.
	ListActiveAlertSettings(ctx context.Context) ([]models.AlertSetting, error)

	// ListDigestRecipients returns active settings with email alerts
	// enabled for the given frequency ("daily" or "weekly").
	ListDigestRecipients(ctx context.Context, frequency string) ([]models.AlertSetting, error)
}

// PersistenceError wraps a failed database operation. Mention write
// failures surface as PersistenceError so the scanner can log, count
// and continue with the next post.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
