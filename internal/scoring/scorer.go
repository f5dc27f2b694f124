// Package scoring calls the external relevance-scoring collaborator.
// Scoring failures never abort a scan; callers fall back to Default.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
)

// Evaluation is the collaborator's verdict on one post.
type Evaluation struct {
	Score       int    `json:"relevance_score"`
	Explanation string `json:"explanation"`
	Intent      string `json:"intent"`
}

// DefaultScore is used when scoring is unavailable or fails.
const DefaultScore = 20

// Default is the degraded evaluation applied when scoring fails.
func Default() Evaluation {
	return Evaluation{Score: DefaultScore, Intent: models.IntentOther}
}

// Scorer rates how relevant a post is to a brand.
type Scorer interface {
	Score(ctx context.Context, title, content, brandName, brandDescription string) (Evaluation, error)
}

// HTTPScorer posts scoring requests to a configured endpoint.
type HTTPScorer struct {
	endpoint string
	client   *resty.Client
}

var _ Scorer = (*HTTPScorer)(nil)

type scoreRequest struct {
	PostTitle        string `json:"post_title"`
	PostContent      string `json:"post_content"`
	BrandName        string `json:"brand_name"`
	BrandDescription string `json:"brand_description"`
}

// NewHTTPScorer creates a scorer against endpoint.
func NewHTTPScorer(endpoint string) *HTTPScorer {
	return &HTTPScorer{
		endpoint: endpoint,
		client:   resty.New().SetTimeout(30 * time.Second),
	}
}

// Score asks the collaborator to rate one post for one brand. The
// returned score is clamped to [20,100] and unknown intent labels
// collapse to "other".
func (s *HTTPScorer) Score(ctx context.Context, title, content, brandName, brandDescription string) (Evaluation, error) {
	var eval Evaluation
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(scoreRequest{
			PostTitle:        title,
			PostContent:      content,
			BrandName:        brandName,
			BrandDescription: brandDescription,
		}).
		SetResult(&eval).
		Post(s.endpoint)

	if err != nil {
		return Default(), fmt.Errorf("scoring request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return Default(), fmt.Errorf("scoring endpoint returned status %d", resp.StatusCode())
	}

	return sanitize(eval), nil
}

func sanitize(eval Evaluation) Evaluation {
	if eval.Score < 20 {
		eval.Score = 20
	}
	if eval.Score > 100 {
		eval.Score = 100
	}
	if !models.ValidIntent(eval.Intent) {
		eval.Intent = models.IntentOther
	}
	return eval
}

// Disabled is a Scorer that always reports the default evaluation.
// Used when no scoring endpoint is configured.
type Disabled struct{}

var _ Scorer = Disabled{}

func (Disabled) Score(context.Context, string, string, string, string) (Evaluation, error) {
	return Default(), nil
}
