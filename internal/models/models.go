package models

import (
	"strings"
	"time"
)

// Brand is one tenant's monitoring configuration: the keywords to look
// for and the subreddits to look in.
type Brand struct {
	ID          int64     `json:"id"`
	UserEmail   string    `json:"user_email"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Keywords    []string  `json:"keywords"`
	Subreddits  []string  `json:"subreddits"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// SubredditWatermarks maps a cleaned subreddit name to the Unix
	// timestamp of the newest post already covered by a batch scan.
	// A missing or zero entry means the subreddit was never scanned.
	SubredditWatermarks map[string]int64 `json:"subreddit_watermarks"`
	LastAnalyzed        time.Time        `json:"last_analyzed"`
}

// CleanSubreddits returns the brand's subreddits lower-cased with any
// "r/" prefix stripped, skipping blanks.
func (b *Brand) CleanSubreddits() []string {
	var out []string
	for _, s := range b.Subreddits {
		s = strings.TrimSpace(strings.ToLower(s))
		s = strings.TrimPrefix(s, "r/")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Mention is a Reddit post that matched one of a brand's keywords.
// There is at most one Mention per (brand, URL). Score and NumComments
// are refreshed when the post is observed again; everything else is
// written once at discovery time.
type Mention struct {
	ID               int64     `json:"id"`
	BrandID          int64     `json:"brand_id"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	URL              string    `json:"url"`
	Subreddit        string    `json:"subreddit"`
	MatchedKeywords  []string  `json:"matched_keywords"`
	Score            int       `json:"score"`
	NumComments      int       `json:"num_comments"`
	RelevanceScore   int       `json:"relevance_score"`
	Intent           string    `json:"intent"`
	Explanation      string    `json:"explanation"`
	SuggestedComment string    `json:"suggested_comment"`
	CreatedAt        time.Time `json:"created_at"`
}

// AlertSetting is a user's notification configuration. It is read-only
// input to the stream monitor and the alert dispatcher.
type AlertSetting struct {
	UserEmail            string    `json:"user_email"`
	TelegramChatID       string    `json:"telegram_chat_id"`
	EnableTelegramAlerts bool      `json:"enable_telegram_alerts"`
	EnableEmailAlerts    bool      `json:"enable_email_alerts"`
	ThresholdScore       int       `json:"alert_threshold_score"`
	Frequency            string    `json:"alert_frequency"` // "daily" or "weekly"
	IsActive             bool      `json:"is_active"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Post is a Reddit submission as returned by the listing and streaming
// endpoints.
type Post struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Selftext    string `json:"selftext"`
	Author      string `json:"author"`
	Subreddit   string `json:"subreddit"`
	Permalink   string `json:"permalink"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	NumComments int    `json:"num_comments"`
	CreatedUTC  int64  `json:"created_utc"`
}

// CreatedAt returns the post's creation time in UTC.
func (p Post) CreatedAt() time.Time {
	return time.Unix(p.CreatedUTC, 0).UTC()
}

// BrandCheck is one brand's slice of the stream monitoring
// configuration for a single subreddit.
type BrandCheck struct {
	BrandID   int64
	BrandName string
	Keywords  []string
	Setting   AlertSetting
}

// MonitoringConfig maps a cleaned subreddit name to the brand checks
// interested in it. It is built once at monitor startup and treated as
// immutable afterwards.
type MonitoringConfig map[string][]BrandCheck

// Intent labels assigned by the relevance scorer.
const (
	IntentPurchase              = "purchase_intent"
	IntentSolutionSeeking       = "solution_seeking"
	IntentRecommendationRequest = "recommendation_request"
	IntentComparison            = "comparison"
	IntentComplaint             = "complaint"
	IntentFeatureRequest        = "feature_request"
	IntentProductFeedback       = "product_feedback"
	IntentGeneralInterest       = "general_interest"
	IntentUnawareProspect       = "unaware_prospect"
	IntentOther                 = "other"
)

// ValidIntent reports whether label is one of the known intent labels.
func ValidIntent(label string) bool {
	switch label {
	case IntentPurchase, IntentSolutionSeeking, IntentRecommendationRequest,
		IntentComparison, IntentComplaint, IntentFeatureRequest,
		IntentProductFeedback, IntentGeneralInterest, IntentUnawareProspect,
		IntentOther:
		return true
	}
	return false
}
