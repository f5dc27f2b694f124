// Package reddit provides authenticated, rate-limited access to the
// Reddit listing and streaming endpoints.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
)

const (
	defaultAuthURL = "https://www.reddit.com/api/v1/access_token"
	defaultAPIURL  = "https://oauth.reddit.com"
)

// Client talks to the Reddit API using the application-level
// client-credentials grant. It is safe for concurrent use; a single
// shared HTTP transport and rate limiter back every caller.
type Client struct {
	clientID     string
	clientSecret string
	userAgent    string

	client  *resty.Client
	limiter *rate.Limiter

	authURL string
	apiURL  string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	// PollInterval is the delay between listing fetches while
	// streaming a subreddit.
	PollInterval time.Duration
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data wirePost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type wirePost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	Created     float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

// NewClient creates a Reddit client. requestDelay is the minimum time
// between upstream requests; it should be larger in production than in
// development.
func NewClient(clientID, clientSecret, userAgent string, requestDelay time.Duration) *Client {
	if requestDelay <= 0 {
		requestDelay = time.Second
	}
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		client:       resty.New().SetTimeout(30 * time.Second),
		limiter:      rate.NewLimiter(rate.Every(requestDelay), 1),
		authURL:      defaultAuthURL,
		apiURL:       defaultAPIURL,
		PollInterval: 15 * time.Second,
	}
}

// Enabled reports whether credentials are configured.
func (c *Client) Enabled() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// Authenticate exchanges the client id/secret for a bearer token. A
// still-valid cached token is reused. Callers must not fetch listings
// without a token.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", c.userAgent).
		SetBasicAuth(c.clientID, c.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post(c.authURL)

	if err != nil {
		return &TransientError{Err: fmt.Errorf("token request: %w", err)}
	}

	if resp.StatusCode() != 200 {
		return &AuthError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}

	var auth authResponse
	if err := json.Unmarshal(resp.Body(), &auth); err != nil {
		return &AuthError{StatusCode: resp.StatusCode(), Message: fmt.Sprintf("decoding token response: %v", err)}
	}
	if auth.AccessToken == "" {
		return &AuthError{StatusCode: resp.StatusCode(), Message: "empty access token"}
	}

	c.accessToken = auth.AccessToken
	// Refresh a minute early so in-flight requests never race expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(auth.ExpiresIn)*time.Second - time.Minute)
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.authenticateLocked(ctx); err != nil {
		return "", err
	}
	return c.accessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// ListTop returns up to limit of the most relevant posts of the given
// time window ("hour", "day", "week", "month", "year", "all").
func (c *Client) ListTop(ctx context.Context, subreddit string, limit int, window string) ([]models.Post, error) {
	path := fmt.Sprintf("%s/r/%s/top.json?limit=%d&t=%s", c.apiURL, subreddit, limit, window)
	return c.listing(ctx, subreddit, path)
}

// ListNew returns up to limit posts ordered newest first.
func (c *Client) ListNew(ctx context.Context, subreddit string, limit int) ([]models.Post, error) {
	path := fmt.Sprintf("%s/r/%s/new.json?limit=%d", c.apiURL, subreddit, limit)
	return c.listing(ctx, subreddit, path)
}

func (c *Client) listing(ctx context.Context, subreddit, url string) ([]models.Post, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransientError{Subreddit: subreddit, Err: err}
	}

	resp, err := c.do(ctx, subreddit, url)
	if err != nil {
		return nil, err
	}

	var listing listingResponse
	if err := json.Unmarshal(resp.Body(), &listing); err != nil {
		return nil, &TransientError{Subreddit: subreddit, Err: fmt.Errorf("decoding listing: %w", err)}
	}

	posts := make([]models.Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data.toPost())
	}
	return posts, nil
}

// do performs one authenticated GET. A 401 invalidates the cached
// token and the request is retried once with a fresh one.
func (c *Client) do(ctx context.Context, subreddit, url string) (*resty.Response, error) {
	reauthed := false
	for {
		token, err := c.token(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+token).
			SetHeader("User-Agent", c.userAgent).
			Get(url)

		if err != nil {
			return nil, &TransientError{Subreddit: subreddit, Err: err}
		}

		if resp.StatusCode() == 200 {
			return resp, nil
		}

		if resp.StatusCode() == 401 && !reauthed {
			logrus.Debugf("Token rejected for r/%s, re-authenticating", subreddit)
			c.invalidateToken()
			reauthed = true
			continue
		}

		return nil, classifyStatus(subreddit, resp.StatusCode(), string(resp.Body()))
	}
}

// toPost converts the wire shape into the domain Post, building a
// canonical absolute URL from the permalink.
func (p wirePost) toPost() models.Post {
	return models.Post{
		ID:          p.ID,
		Title:       p.Title,
		Selftext:    p.Selftext,
		Author:      p.Author,
		Subreddit:   p.Subreddit,
		Permalink:   p.Permalink,
		URL:         CanonicalURL(p.Permalink),
		Score:       p.Score,
		NumComments: p.NumComments,
		CreatedUTC:  int64(p.Created),
	}
}

// CanonicalURL turns a Reddit permalink, in whatever form the API
// returned it, into a single absolute form usable as a dedup key.
func CanonicalURL(permalink string) string {
	permalink = strings.TrimSpace(permalink)
	switch {
	case permalink == "":
		return ""
	case strings.HasPrefix(permalink, "http://"), strings.HasPrefix(permalink, "https://"):
		return permalink
	case strings.HasPrefix(permalink, "//"):
		return "https:" + permalink
	case strings.HasPrefix(permalink, "/"):
		return "https://reddit.com" + permalink
	default:
		return "https://reddit.com/" + permalink
	}
}
