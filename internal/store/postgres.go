package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
)

//go:embed schema.sql
var schema string

// Postgres implements BrandStore, MentionStore and AlertSettingStore
// over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ BrandStore        = (*Postgres)(nil)
	_ MentionStore      = (*Postgres)(nil)
	_ AlertSettingStore = (*Postgres)(nil)
)

// NewPostgres connects to databaseURL and verifies connectivity.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	logrus.Debug("Database schema ensured")
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

const brandColumns = `id, user_email, name, description, keywords, subreddits,
	subreddit_watermarks, last_analyzed, created_at, updated_at`

func scanBrand(row pgx.Row) (*models.Brand, error) {
	var b models.Brand
	var keywords, subreddits, watermarks []byte
	var lastAnalyzed *time.Time

	err := row.Scan(&b.ID, &b.UserEmail, &b.Name, &b.Description,
		&keywords, &subreddits, &watermarks, &lastAnalyzed, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(keywords, &b.Keywords); err != nil {
		return nil, fmt.Errorf("decoding keywords for brand %d: %w", b.ID, err)
	}
	if err := json.Unmarshal(subreddits, &b.Subreddits); err != nil {
		return nil, fmt.Errorf("decoding subreddits for brand %d: %w", b.ID, err)
	}
	if err := json.Unmarshal(watermarks, &b.SubredditWatermarks); err != nil {
		return nil, fmt.Errorf("decoding watermarks for brand %d: %w", b.ID, err)
	}
	if b.SubredditWatermarks == nil {
		b.SubredditWatermarks = map[string]int64{}
	}
	if lastAnalyzed != nil {
		b.LastAnalyzed = *lastAnalyzed
	}
	return &b, nil
}

// GetBrand fetches one brand by id. Returns nil when the brand does
// not exist.
func (p *Postgres) GetBrand(ctx context.Context, id int64) (*models.Brand, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+brandColumns+` FROM brands WHERE id = $1`, id)

	b, err := scanBrand(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get brand", Err: err}
	}
	return b, nil
}

// ListBrandsForUser returns every brand owned by userEmail.
func (p *Postgres) ListBrandsForUser(ctx context.Context, userEmail string) ([]models.Brand, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+brandColumns+` FROM brands WHERE user_email = $1 ORDER BY id`, userEmail)
	if err != nil {
		return nil, &PersistenceError{Op: "list brands for user", Err: err}
	}
	defer rows.Close()
	return collectBrands(rows)
}

// ListAllBrands returns every configured brand.
func (p *Postgres) ListAllBrands(ctx context.Context) ([]models.Brand, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+brandColumns+` FROM brands ORDER BY id`)
	if err != nil {
		return nil, &PersistenceError{Op: "list all brands", Err: err}
	}
	defer rows.Close()
	return collectBrands(rows)
}

func collectBrands(rows pgx.Rows) ([]models.Brand, error) {
	var brands []models.Brand
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "scan brand", Err: err}
		}
		brands = append(brands, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate brands", Err: err}
	}
	return brands, nil
}

// UpdateBrandScanState writes the watermark map and last_analyzed in
// one statement.
func (p *Postgres) UpdateBrandScanState(ctx context.Context, brandID int64, watermarks map[string]int64, lastAnalyzed time.Time) error {
	if watermarks == nil {
		watermarks = map[string]int64{}
	}
	encoded, err := json.Marshal(watermarks)
	if err != nil {
		return &PersistenceError{Op: "encode watermarks", Err: err}
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE brands
		 SET subreddit_watermarks = $2, last_analyzed = $3, updated_at = now()
		 WHERE id = $1`,
		brandID, encoded, lastAnalyzed)
	if err != nil {
		return &PersistenceError{Op: "update brand scan state", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &PersistenceError{Op: "update brand scan state", Err: fmt.Errorf("brand %d not found", brandID)}
	}
	return nil
}

const mentionColumns = `id, brand_id, title, content, url, subreddit, matched_keywords,
	score, num_comments, relevance_score, intent, explanation, suggested_comment, created_at`

func scanMention(row pgx.Row) (*models.Mention, error) {
	var m models.Mention
	var matched []byte

	err := row.Scan(&m.ID, &m.BrandID, &m.Title, &m.Content, &m.URL, &m.Subreddit,
		&matched, &m.Score, &m.NumComments, &m.RelevanceScore, &m.Intent,
		&m.Explanation, &m.SuggestedComment, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(matched, &m.MatchedKeywords); err != nil {
		return nil, fmt.Errorf("decoding matched keywords for mention %d: %w", m.ID, err)
	}
	return &m, nil
}

// FindMentionByURL looks up a brand's mention by its canonical URL.
// Returns nil when no such mention exists.
func (p *Postgres) FindMentionByURL(ctx context.Context, brandID int64, url string) (*models.Mention, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+mentionColumns+` FROM mentions WHERE brand_id = $1 AND url = $2`,
		brandID, url)

	m, err := scanMention(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find mention by url", Err: err}
	}
	return m, nil
}

// CreateMention inserts m unless (brand_id, url) already exists. The
// unique constraint plus ON CONFLICT DO NOTHING keeps creation
// at-most-once under concurrent duplicate invocation.
func (p *Postgres) CreateMention(ctx context.Context, m *models.Mention) (bool, error) {
	matched, err := json.Marshal(m.MatchedKeywords)
	if err != nil {
		return false, &PersistenceError{Op: "encode matched keywords", Err: err}
	}

	row := p.pool.QueryRow(ctx,
		`INSERT INTO mentions (brand_id, title, content, url, subreddit, matched_keywords,
		        score, num_comments, relevance_score, intent, explanation, suggested_comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (brand_id, url) DO NOTHING
		 RETURNING id`,
		m.BrandID, m.Title, m.Content, m.URL, m.Subreddit, matched,
		m.Score, m.NumComments, m.RelevanceScore, m.Intent, m.Explanation,
		m.SuggestedComment, m.CreatedAt)

	err = row.Scan(&m.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &PersistenceError{Op: "create mention", Err: err}
	}
	return true, nil
}

// UpdateMentionStats refreshes score and num_comments; every other
// field is immutable after creation.
func (p *Postgres) UpdateMentionStats(ctx context.Context, id int64, score, numComments int) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE mentions SET score = $2, num_comments = $3 WHERE id = $1`,
		id, score, numComments)
	if err != nil {
		return &PersistenceError{Op: "update mention stats", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &PersistenceError{Op: "update mention stats", Err: fmt.Errorf("mention %d not found", id)}
	}
	return nil
}

// ListMentionsByBrand returns every stored mention for the brand,
// newest first.
func (p *Postgres) ListMentionsByBrand(ctx context.Context, brandID int64) ([]models.Mention, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+mentionColumns+` FROM mentions WHERE brand_id = $1 ORDER BY created_at DESC`,
		brandID)
	if err != nil {
		return nil, &PersistenceError{Op: "list mentions by brand", Err: err}
	}
	defer rows.Close()
	return collectMentions(rows)
}

// ListRecentMentionsForBrands returns mentions for the given brands
// created at or after since, newest first.
func (p *Postgres) ListRecentMentionsForBrands(ctx context.Context, brandIDs []int64, since time.Time) ([]models.Mention, error) {
	if len(brandIDs) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+mentionColumns+` FROM mentions
		 WHERE brand_id = ANY($1) AND created_at >= $2
		 ORDER BY created_at DESC`,
		brandIDs, since)
	if err != nil {
		return nil, &PersistenceError{Op: "list recent mentions", Err: err}
	}
	defer rows.Close()
	return collectMentions(rows)
}

func collectMentions(rows pgx.Rows) ([]models.Mention, error) {
	var mentions []models.Mention
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "scan mention", Err: err}
		}
		mentions = append(mentions, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate mentions", Err: err}
	}
	return mentions, nil
}

// ListActiveAlertSettings returns active settings with at least one
// delivery channel enabled.
func (p *Postgres) ListActiveAlertSettings(ctx context.Context) ([]models.AlertSetting, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT user_email, telegram_chat_id, enable_telegram_alerts, enable_email_alerts,
		        alert_threshold_score, alert_frequency, is_active, updated_at
		 FROM alert_settings
		 WHERE is_active AND (enable_telegram_alerts OR enable_email_alerts)`)
	if err != nil {
		return nil, &PersistenceError{Op: "list active alert settings", Err: err}
	}
	defer rows.Close()
	return collectAlertSettings(rows)
}

// ListDigestRecipients returns active settings with email alerts
// enabled for the given frequency.
func (p *Postgres) ListDigestRecipients(ctx context.Context, frequency string) ([]models.AlertSetting, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT user_email, telegram_chat_id, enable_telegram_alerts, enable_email_alerts,
		        alert_threshold_score, alert_frequency, is_active, updated_at
		 FROM alert_settings
		 WHERE is_active AND enable_email_alerts AND alert_frequency = $1`,
		frequency)
	if err != nil {
		return nil, &PersistenceError{Op: "list digest recipients", Err: err}
	}
	defer rows.Close()
	return collectAlertSettings(rows)
}

func collectAlertSettings(rows pgx.Rows) ([]models.AlertSetting, error) {
	var settings []models.AlertSetting
	for rows.Next() {
		var s models.AlertSetting
		if err := rows.Scan(&s.UserEmail, &s.TelegramChatID, &s.EnableTelegramAlerts,
			&s.EnableEmailAlerts, &s.ThresholdScore, &s.Frequency, &s.IsActive, &s.UpdatedAt); err != nil {
			return nil, &PersistenceError{Op: "scan alert setting", Err: err}
		}
		settings = append(settings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate alert settings", Err: err}
	}
	return settings, nil
}
