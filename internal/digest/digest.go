// Package digest runs the scheduled digest batch job: re-scan stale
// brands, then email each opted-in user a summary of the mentions
// found in the last period. The whole job holds a run-level lock so
// overlapping trigger paths (cron plus manual trigger) never execute
// concurrently.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sneakyguy/reddit-mentions-bot/internal/config"
	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
	"github.com/sneakyguy/reddit-mentions-bot/internal/scanner"
	"github.com/sneakyguy/reddit-mentions-bot/internal/store"
)

// ErrAlreadyRunning is returned when a digest run is requested while
// another one holds the run lock.
var ErrAlreadyRunning = errors.New("digest job already running")

// stalenessWindow is how old a brand's last analysis may be before the
// digest job re-scans it.
const stalenessWindow = 12 * time.Hour

// BrandScanner is the slice of the batch scanner the digest job uses.
type BrandScanner interface {
	ScanWithFilter(ctx context.Context, brandID int64, filter scanner.SubredditFilter) (*scanner.Result, error)
}

// Summary reports what one digest run did.
type Summary struct {
	Recipients    int `json:"recipients"`
	EmailsSent    int `json:"emails_sent"`
	BrandsScanned int `json:"brands_scanned"`
	Errors        int `json:"errors"`
}

// Service is the digest batch job.
type Service struct {
	brands    store.BrandStore
	mentions  store.MentionStore
	settings  store.AlertSettingStore
	scanner   BrandScanner
	mailer    Mailer
	lock      *RunLock
	frequency string
	window    time.Duration
	sendDelay time.Duration
}

// NewService wires the digest job. A nil scanner disables the
// staleness re-scan (digests are built from stored mentions only); a
// nil Redis client limits the run lock to this process.
func NewService(cfg *config.Config, brands store.BrandStore, mentions store.MentionStore, settings store.AlertSettingStore, sc BrandScanner, mailer Mailer, rdb *redis.Client) *Service {
	window := 24 * time.Hour
	if cfg.DigestSchedule == "weekly" {
		window = 7 * 24 * time.Hour
	}
	return &Service{
		brands:    brands,
		mentions:  mentions,
		settings:  settings,
		scanner:   sc,
		mailer:    mailer,
		lock:      NewRunLock(rdb),
		frequency: cfg.DigestSchedule,
		window:    window,
		sendDelay: cfg.EmailSendDelay,
	}
}

// Run executes one digest run. It returns ErrAlreadyRunning when
// another run is in progress. Per-user and per-brand failures are
// counted and logged but do not abort the run.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	ok, err := s.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire digest run lock: %w", err)
	}
	if !ok {
		logrus.Info("Digest job already running, skipping this run")
		return nil, ErrAlreadyRunning
	}
	defer s.lock.Release(ctx)

	start := time.Now()
	logrus.Infof("Starting %s digest job", s.frequency)

	state := NewRunState()
	summary := &Summary{}

	recipients, err := s.settings.ListDigestRecipients(ctx, s.frequency)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		logrus.Info("No users opted in for digests, nothing to do")
		return summary, nil
	}
	logrus.Infof("Found %d digest recipients", len(recipients))

	for _, setting := range recipients {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if !state.ClaimEmail(setting.UserEmail) {
			logrus.Infof("Skipping %s, already received a digest in this run", setting.UserEmail)
			continue
		}
		summary.Recipients++
		s.processRecipient(ctx, setting, state, summary)
	}

	logrus.Infof("Digest job finished in %v: %d emails sent, %d brands scanned, %d errors",
		time.Since(start), summary.EmailsSent, summary.BrandsScanned, summary.Errors)
	return summary, nil
}

func (s *Service) processRecipient(ctx context.Context, setting models.AlertSetting, state *RunState, summary *Summary) {
	email := setting.UserEmail
	logrus.Infof("Processing digest for %s", email)

	brands, err := s.brands.ListBrandsForUser(ctx, email)
	if err != nil {
		logrus.Errorf("Failed to load brands for %s: %v", email, err)
		summary.Errors++
		return
	}

	days := int(s.window / (24 * time.Hour))
	if len(brands) == 0 {
		logrus.Infof("User %s has no brands, sending an empty digest", email)
		s.sendDigest(ctx, email, days, nil, nil, summary)
		return
	}

	// Re-scan brands whose data has gone stale so the digest reflects
	// activity that happened since the last batch run.
	if s.scanner != nil {
		for _, brand := range brands {
			if time.Since(brand.LastAnalyzed) < stalenessWindow {
				logrus.Infof("Brand %d (%q) analyzed recently, skipping re-scan", brand.ID, brand.Name)
				continue
			}
			if !state.ClaimBrand(brand.ID) {
				logrus.Infof("Brand %d already analyzed in this run, skipping", brand.ID)
				continue
			}
			if _, err := s.scanner.ScanWithFilter(ctx, brand.ID, state); err != nil {
				logrus.Errorf("Re-scan of brand %d failed: %v", brand.ID, err)
				summary.Errors++
				continue
			}
			summary.BrandsScanned++
		}
	}

	brandIDs := make([]int64, 0, len(brands))
	for _, b := range brands {
		brandIDs = append(brandIDs, b.ID)
	}
	since := time.Now().Add(-s.window)
	recent, err := s.mentions.ListRecentMentionsForBrands(ctx, brandIDs, since)
	if err != nil {
		logrus.Errorf("Failed to load recent mentions for %s: %v", email, err)
		summary.Errors++
		return
	}

	byBrand := make(map[int64][]models.Mention)
	for _, m := range recent {
		byBrand[m.BrandID] = append(byBrand[m.BrandID], m)
	}

	s.sendDigest(ctx, email, days, brands, byBrand, summary)
}

func (s *Service) sendDigest(ctx context.Context, email string, days int, brands []models.Brand, byBrand map[int64][]models.Mention, summary *Summary) {
	html, err := renderDigest(email, days, brands, byBrand)
	if err != nil {
		logrus.Errorf("Failed to render digest for %s: %v", email, err)
		summary.Errors++
		return
	}

	subject := fmt.Sprintf("Your Reddit Mentions Digest - %s", time.Now().UTC().Format("2006-01-02"))
	if err := s.mailer.Send(email, subject, html); err != nil {
		logrus.Errorf("Failed to send digest to %s: %v", email, err)
		summary.Errors++
		return
	}
	logrus.Infof("Digest email sent to %s", email)
	summary.EmailsSent++

	// Pacing between sends keeps us under the mail provider's rate
	// limit.
	select {
	case <-time.After(s.sendDelay):
	case <-ctx.Done():
	}
}
