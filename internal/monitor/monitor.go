// Package monitor runs the realtime stream side of the bot: one
// long-lived consumer per subreddit that is referenced by at least one
// brand whose owner has an active alert channel. Matched posts trigger
// Telegram alerts immediately; persisting mentions is left to the
// batch scanner so a single writer owns the watermark state.
package monitor

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sneakyguy/reddit-mentions-bot/internal/alerts"
	"github.com/sneakyguy/reddit-mentions-bot/internal/matcher"
	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
	"github.com/sneakyguy/reddit-mentions-bot/internal/reddit"
	"github.com/sneakyguy/reddit-mentions-bot/internal/retry"
	"github.com/sneakyguy/reddit-mentions-bot/internal/store"
)

// Streamer is the slice of the Reddit client the monitor consumes.
type Streamer interface {
	StreamSubmissions(ctx context.Context, subreddit string) (<-chan models.Post, <-chan struct{}, <-chan error)
}

// TaskState describes where one subreddit's stream task is in its
// lifecycle.
type TaskState string

const (
	StateStarting  TaskState = "starting"
	StateStreaming TaskState = "streaming"
	StateRetrying  TaskState = "retrying"
	StateStopped   TaskState = "stopped"
)

// Service coordinates the per-subreddit stream tasks.
type Service struct {
	settings   store.AlertSettingStore
	brands     store.BrandStore
	reddit     Streamer
	dispatcher alerts.Dispatcher
	policy     retry.Policy

	mu     sync.RWMutex
	states map[string]TaskState
}

// NewService creates a stream monitor. All tasks share the given
// Streamer, so they reuse one HTTP client and token.
func NewService(settings store.AlertSettingStore, brands store.BrandStore, rc Streamer, dispatcher alerts.Dispatcher) *Service {
	return &Service{
		settings:   settings,
		brands:     brands,
		reddit:     rc,
		dispatcher: dispatcher,
		policy:     retry.Stream(),
		states:     make(map[string]TaskState),
	}
}

// BuildConfig computes the monitoring configuration: every subreddit
// referenced by a brand whose owner has an active alert setting with a
// delivery channel enabled, mapped to the brand checks interested in
// it. Brands without keywords or subreddits are skipped. The result is
// immutable once handed to Run.
func (s *Service) BuildConfig(ctx context.Context) (models.MonitoringConfig, error) {
	logrus.Info("Fetching monitoring configuration")

	settings, err := s.settings.ListActiveAlertSettings(ctx)
	if err != nil {
		return nil, err
	}

	config := make(models.MonitoringConfig)
	for _, setting := range settings {
		brands, err := s.brands.ListBrandsForUser(ctx, setting.UserEmail)
		if err != nil {
			return nil, err
		}
		for _, brand := range brands {
			subreddits := brand.CleanSubreddits()
			if len(brand.Keywords) == 0 || len(subreddits) == 0 {
				continue
			}
			for _, sub := range subreddits {
				config[sub] = append(config[sub], models.BrandCheck{
					BrandID:   brand.ID,
					BrandName: brand.Name,
					Keywords:  brand.Keywords,
					Setting:   setting,
				})
			}
		}
	}

	logrus.Infof("Configuration loaded for %d subreddits", len(config))
	return config, nil
}

// Run starts one stream task per configured subreddit and blocks until
// every task has stopped. Cancelling ctx is the shutdown signal; Run
// waits for all tasks to finish before returning.
func (s *Service) Run(ctx context.Context, config models.MonitoringConfig) {
	if len(config) == 0 {
		logrus.Warn("No monitoring configuration found, monitor will idle")
		<-ctx.Done()
		return
	}

	var wg sync.WaitGroup
	for sub, checks := range config {
		wg.Add(1)
		go func(sub string, checks []models.BrandCheck) {
			defer wg.Done()
			s.streamSubreddit(ctx, sub, checks)
		}(sub, checks)
	}

	logrus.Infof("Monitoring %d subreddits", len(config))
	wg.Wait()
	logrus.Info("All subreddit streams stopped")
}

// streamSubreddit drives one subreddit's task through its lifecycle:
// Starting -> Streaming, Retrying on transient stream errors, Stopped
// on a permanent error or shutdown. When retries are exhausted the
// task goes back to Starting rather than giving up.
func (s *Service) streamSubreddit(ctx context.Context, sub string, checks []models.BrandCheck) {
	defer s.setState(sub, StateStopped)

	for {
		s.setState(sub, StateStarting)

		err := s.policy.Do(ctx, reddit.Retryable, func() error {
			err := s.consume(ctx, sub, checks)
			if err != nil && reddit.Retryable(err) {
				s.setState(sub, StateRetrying)
				logrus.Warnf("Stream error for r/%s, retrying: %v", sub, err)
			}
			return err
		})
		if err == nil {
			logrus.Infof("Stream stopped for r/%s", sub)
			return
		}
		if reddit.Permanent(err) {
			logrus.Errorf("Stopping stream for r/%s: %v", sub, err)
			return
		}
		if ctx.Err() != nil {
			return
		}

		logrus.Warnf("Stream for r/%s exhausted retries, restarting: %v", sub, err)
	}
}

// consume reads the stream until it ends, matching every post against
// every brand check for the subreddit. Returns nil when the stream
// ended because of shutdown.
func (s *Service) consume(ctx context.Context, sub string, checks []models.BrandCheck) error {
	posts, ready, errs := s.reddit.StreamSubmissions(ctx, sub)

	// The stream signals readiness only after its opening fetch
	// succeeded, so a subreddit that turns out to be dead never
	// reports Streaming.
	streaming := func() {
		s.setState(sub, StateStreaming)
		logrus.Infof("Streaming r/%s for %d brand checks", sub, len(checks))
		ready = nil
	}

	for {
		select {
		case <-ready:
			streaming()
		case post, ok := <-posts:
			if !ok {
				return <-errs
			}
			if ready != nil {
				// A post only arrives once the stream has opened.
				streaming()
			}
			s.handlePost(ctx, sub, post, checks)
		}
	}
}

// handlePost checks one incoming post against every brand watching the
// subreddit. Each check alerts independently; a delivery failure is
// logged and the post is not re-delivered.
func (s *Service) handlePost(ctx context.Context, sub string, post models.Post, checks []models.BrandCheck) {
	text := matcher.Normalize(post.Title, post.Selftext)

	for _, check := range checks {
		matched := matcher.Match(text, check.Keywords)
		if len(matched) == 0 {
			continue
		}

		logrus.Infof("Keyword match in r/%s for brand %d (%s): %s", sub, check.BrandID, check.BrandName, post.ID)

		if !check.Setting.EnableTelegramAlerts {
			continue
		}
		if check.Setting.TelegramChatID == "" {
			logrus.Warnf("User %s has no Telegram chat ID configured for alerts", check.Setting.UserEmail)
			continue
		}

		message := alerts.FormatMentionAlert(check.BrandName, sub, matched, post)
		if !s.dispatcher.Send(ctx, check.Setting.TelegramChatID, message) {
			logrus.Errorf("Alert delivery failed for brand %d, post %s", check.BrandID, post.ID)
		}
	}
}

func (s *Service) setState(sub string, state TaskState) {
	s.mu.Lock()
	s.states[sub] = state
	s.mu.Unlock()
}

// State returns the current lifecycle state of one subreddit's task.
func (s *Service) State(sub string) TaskState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[sub]
}

// States returns a snapshot of every task's state.
func (s *Service) States() map[string]TaskState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]TaskState, len(s.states))
	for sub, state := range s.states {
		out[sub] = state
	}
	return out
}
