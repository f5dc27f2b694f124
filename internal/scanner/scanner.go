// Package scanner implements the incremental batch scan of a brand's
// subreddits. A subreddit with no stored watermark gets a wide
// cold-start scan over a fixed lookback window; one with a watermark
// gets a narrow catch-up scan of new posts that stops at the
// watermark.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sneakyguy/reddit-mentions-bot/internal/matcher"
	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
	"github.com/sneakyguy/reddit-mentions-bot/internal/reddit"
	"github.com/sneakyguy/reddit-mentions-bot/internal/retry"
	"github.com/sneakyguy/reddit-mentions-bot/internal/scoring"
	"github.com/sneakyguy/reddit-mentions-bot/internal/store"
)

// RedditLister is the slice of the Reddit client the scanner needs.
type RedditLister interface {
	Authenticate(ctx context.Context) error
	ListTop(ctx context.Context, subreddit string, limit int, window string) ([]models.Post, error)
	ListNew(ctx context.Context, subreddit string, limit int) ([]models.Post, error)
}

// SubredditFilter lets a batch job claim (brand, subreddit) pairs so
// overlapping trigger paths within one run do not scan the same
// subreddit twice. Claim reports whether the caller should proceed.
type SubredditFilter interface {
	Claim(brandID int64, subreddit string) bool
}

// Options tune the scan shape.
type Options struct {
	ColdStartLimit  int
	ColdStartWindow string // Reddit "t" parameter for top listings
	CatchUpLimit    int
	Retry           retry.Policy
}

// DefaultOptions mirror the production configuration defaults.
func DefaultOptions() Options {
	return Options{
		ColdStartLimit:  200,
		ColdStartWindow: "month",
		CatchUpLimit:    100,
		Retry:           retry.Scanner(),
	}
}

// Result is what one brand scan produced. Mentions holds every
// mention currently stored for the brand, not only this run's deltas,
// so callers can proceed with partial data after subreddit-level
// failures.
type Result struct {
	Mentions     []models.Mention
	NewCount     int
	UpdatedCount int
	FailedWrites int
	Skipped      map[string]error
}

// Metrics aggregates scan outcomes for the admin endpoint.
type Metrics struct {
	LastRun         time.Time `json:"last_run"`
	LastRunDuration string    `json:"last_run_duration"`
	BrandsScanned   int       `json:"brands_scanned"`
	TotalNew        int       `json:"total_new"`
	TotalUpdated    int       `json:"total_updated"`
	ErrorCount      int       `json:"error_count"`
}

// Scanner orchestrates the keyword matcher, the Reddit client, the
// scorer and the stores for one brand at a time. Concurrent scans of
// different brands run in parallel; scans of the same brand are
// serialized internally so overlapping trigger paths cannot interleave
// the brand's read-modify-write of its watermark state.
type Scanner struct {
	brands   store.BrandStore
	mentions store.MentionStore
	reddit   RedditLister
	scorer   scoring.Scorer
	opts     Options

	mu         sync.Mutex
	metrics    Metrics
	brandLocks map[int64]*sync.Mutex
}

// New creates a Scanner.
func New(brands store.BrandStore, mentions store.MentionStore, rc RedditLister, scorer scoring.Scorer, opts Options) *Scanner {
	if opts.ColdStartLimit <= 0 {
		opts.ColdStartLimit = 200
	}
	if opts.CatchUpLimit <= 0 {
		opts.CatchUpLimit = 100
	}
	if opts.ColdStartWindow == "" {
		opts.ColdStartWindow = "month"
	}
	return &Scanner{
		brands:     brands,
		mentions:   mentions,
		reddit:     rc,
		scorer:     scorer,
		opts:       opts,
		brandLocks: make(map[int64]*sync.Mutex),
	}
}

// lockBrand blocks until no other scan of brandID is in flight and
// returns the unlock function.
func (s *Scanner) lockBrand(brandID int64) func() {
	s.mu.Lock()
	l, ok := s.brandLocks[brandID]
	if !ok {
		l = &sync.Mutex{}
		s.brandLocks[brandID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Scan runs a full scan for brandID.
func (s *Scanner) Scan(ctx context.Context, brandID int64) (*Result, error) {
	return s.ScanWithFilter(ctx, brandID, nil)
}

// ScanWithFilter runs a full scan for brandID, skipping subreddits the
// filter refuses to claim. A nil filter scans everything.
//
// Authentication failure and persistence-layer unavailability abort
// the scan; everything subreddit- or post-scoped is contained, logged
// and reflected in the Result.
func (s *Scanner) ScanWithFilter(ctx context.Context, brandID int64, filter SubredditFilter) (*Result, error) {
	defer s.lockBrand(brandID)()

	start := time.Now()

	brand, err := s.brands.GetBrand(ctx, brandID)
	if err != nil {
		return nil, err
	}
	if brand == nil {
		return nil, fmt.Errorf("brand %d not found", brandID)
	}

	result := &Result{Skipped: make(map[string]error)}
	subreddits := brand.CleanSubreddits()

	if len(brand.Keywords) == 0 || len(subreddits) == 0 {
		logrus.Infof("Brand %d has no keywords or subreddits, skipping analysis", brand.ID)
		// Record the attempt anyway so the brand is not re-checked
		// constantly while its configuration is empty.
		if err := s.brands.UpdateBrandScanState(ctx, brand.ID, brand.SubredditWatermarks, start); err != nil {
			return nil, err
		}
		result.Mentions, err = s.mentions.ListMentionsByBrand(ctx, brand.ID)
		return result, err
	}

	if err := s.reddit.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("reddit authentication failed: %w", err)
	}

	sess := newSession()

	// Work on a copy of the watermark map, dropping entries for
	// subreddits no longer configured so the keys stay a subset of the
	// brand's current subreddit set.
	current := make(map[string]struct{}, len(subreddits))
	for _, sub := range subreddits {
		current[sub] = struct{}{}
	}
	watermarks := make(map[string]int64, len(subreddits))
	for sub, ts := range brand.SubredditWatermarks {
		if _, ok := current[sub]; ok && ts > 0 {
			watermarks[sub] = ts
		}
	}

	for _, sub := range subreddits {
		if filter != nil && !filter.Claim(brand.ID, sub) {
			logrus.Infof("Subreddit r/%s already scanned for brand %d in this run, skipping", sub, brand.ID)
			continue
		}

		maxTS, err := s.scanSubreddit(ctx, brand, sub, watermarks[sub], sess, result)
		if err != nil {
			if reddit.IsAuth(err) {
				return nil, fmt.Errorf("scan of brand %d aborted: %w", brand.ID, err)
			}
			logrus.Errorf("Skipping r/%s for brand %d: %v", sub, brand.ID, err)
			result.Skipped[sub] = err
			continue
		}
		if maxTS > 0 {
			watermarks[sub] = maxTS
		}
	}

	if err := s.brands.UpdateBrandScanState(ctx, brand.ID, watermarks, start); err != nil {
		return nil, err
	}

	result.Mentions, err = s.mentions.ListMentionsByBrand(ctx, brand.ID)
	if err != nil {
		return nil, err
	}

	s.recordMetrics(result, time.Since(start))
	logrus.Infof("Scan finished for brand %d: new=%d updated=%d skipped=%d (%v)",
		brand.ID, result.NewCount, result.UpdatedCount, len(result.Skipped), time.Since(start))
	return result, nil
}

// scanSubreddit fetches and processes one subreddit's page. It returns
// the maximum post timestamp observed (the new watermark candidate);
// zero means the watermark should not move.
func (s *Scanner) scanSubreddit(ctx context.Context, brand *models.Brand, sub string, watermark int64, sess *session, result *Result) (int64, error) {
	var posts []models.Post

	err := s.opts.Retry.Do(ctx, reddit.Retryable, func() error {
		var err error
		if watermark == 0 {
			logrus.Infof("Cold-start scan of r/%s for brand %d (top of last %s)", sub, brand.ID, s.opts.ColdStartWindow)
			posts, err = s.reddit.ListTop(ctx, sub, s.opts.ColdStartLimit, s.opts.ColdStartWindow)
		} else {
			logrus.Infof("Catch-up scan of r/%s for brand %d (watermark %d)", sub, brand.ID, watermark)
			posts, err = s.reddit.ListNew(ctx, sub, s.opts.CatchUpLimit)
		}
		return err
	})
	if err != nil {
		return 0, err
	}

	// The watermark advances to the newest post actually observed,
	// never to wall-clock time, so a truncated page or delayed scan
	// cannot silently skip posts.
	maxTS := watermark

	for _, post := range posts {
		// New listings are strictly newest-first: once a post is at or
		// below the watermark everything after it was already seen.
		if watermark > 0 && post.CreatedUTC <= watermark {
			break
		}

		if post.URL == "" || !sess.Claim(post.URL, post.Title) {
			continue
		}
		if post.CreatedUTC > maxTS {
			maxTS = post.CreatedUTC
		}

		s.processPost(ctx, brand, sub, post, result)
	}

	return maxTS, nil
}

// processPost matches one post and persists the outcome. Failures are
// counted, never fatal.
func (s *Scanner) processPost(ctx context.Context, brand *models.Brand, sub string, post models.Post, result *Result) {
	matched := matcher.Match(matcher.Normalize(post.Title, post.Selftext), brand.Keywords)
	if len(matched) == 0 {
		return
	}

	existing, err := s.mentions.FindMentionByURL(ctx, brand.ID, post.URL)
	if err != nil {
		logrus.Errorf("Lookup failed for brand %d post %s in r/%s: %v", brand.ID, post.ID, sub, err)
		result.FailedWrites++
		return
	}

	if existing != nil {
		if existing.Score == post.Score && existing.NumComments == post.NumComments {
			return
		}
		if err := s.mentions.UpdateMentionStats(ctx, existing.ID, post.Score, post.NumComments); err != nil {
			logrus.Errorf("Update failed for brand %d mention %d in r/%s: %v", brand.ID, existing.ID, sub, err)
			result.FailedWrites++
			return
		}
		logrus.Infof("Updated mention %q for brand %d (score %d)", post.Title, brand.ID, post.Score)
		result.UpdatedCount++
		return
	}

	eval, err := s.scorer.Score(ctx, post.Title, post.Selftext, brand.Name, brand.Description)
	if err != nil {
		logrus.Warnf("Scoring failed for brand %d post %s, using default: %v", brand.ID, post.ID, err)
		eval = scoring.Default()
	}

	mention := &models.Mention{
		BrandID:         brand.ID,
		Title:           post.Title,
		Content:         post.Selftext,
		URL:             post.URL,
		Subreddit:       sub,
		MatchedKeywords: matched,
		Score:           post.Score,
		NumComments:     post.NumComments,
		RelevanceScore:  eval.Score,
		Intent:          eval.Intent,
		Explanation:     eval.Explanation,
		CreatedAt:       post.CreatedAt(),
	}

	created, err := s.mentions.CreateMention(ctx, mention)
	if err != nil {
		logrus.Errorf("Insert failed for brand %d post %s in r/%s: %v", brand.ID, post.ID, sub, err)
		result.FailedWrites++
		return
	}
	if created {
		logrus.Infof("Found new mention %q for brand %d (score %d)", post.Title, brand.ID, post.Score)
		result.NewCount++
	}
}

func (s *Scanner) recordMetrics(result *Result, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.LastRun = time.Now()
	s.metrics.LastRunDuration = took.String()
	s.metrics.BrandsScanned++
	s.metrics.TotalNew += result.NewCount
	s.metrics.TotalUpdated += result.UpdatedCount
	s.metrics.ErrorCount += len(result.Skipped) + result.FailedWrites
}

// GetMetrics returns current metrics as JSON.
func (s *Scanner) GetMetrics() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
