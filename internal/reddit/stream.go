package reddit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
)

// streamSeenLimit bounds the remembered post IDs per stream so a
// long-lived stream does not grow without bound.
const streamSeenLimit = 1000

// streamPageSize is how many new posts are pulled per poll. Matches
// the listing endpoint's maximum.
const streamPageSize = 100

// StreamSubmissions produces an unbounded lazy sequence of newly
// created posts for a subreddit, skipping posts that existed before
// the stream opened. Posts arrive on the returned channel in creation
// order (oldest first within a poll).
//
// The ready channel is closed once the opening snapshot fetch has
// succeeded and the stream is live; it never closes when the stream
// dies before that. The posts channel is closed when the stream ends.
// The error channel then yields exactly one value: nil after a context
// cancellation, otherwise the classified error that broke the stream.
// Callers decide whether to reopen based on Retryable/Permanent.
func (c *Client) StreamSubmissions(ctx context.Context, subreddit string) (<-chan models.Post, <-chan struct{}, <-chan error) {
	posts := make(chan models.Post)
	ready := make(chan struct{})
	errs := make(chan error, 1)

	go func() {
		defer close(posts)
		errs <- c.streamLoop(ctx, subreddit, posts, ready)
	}()

	return posts, ready, errs
}

func (c *Client) streamLoop(ctx context.Context, subreddit string, out chan<- models.Post, ready chan<- struct{}) error {
	seen := newSeenSet(streamSeenLimit)

	// Prime the seen set so pre-existing posts are never emitted.
	existing, err := c.ListNew(ctx, subreddit, streamPageSize)
	if err != nil {
		return err
	}
	for _, p := range existing {
		seen.Add(p.ID)
	}
	close(ready)
	logrus.Debugf("Stream for r/%s opened, skipping %d existing posts", subreddit, len(existing))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.PollInterval):
		}

		page, err := c.ListNew(ctx, subreddit, streamPageSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		// The page is newest-first; emit unseen posts oldest-first so
		// consumers observe creation order.
		for i := len(page) - 1; i >= 0; i-- {
			p := page[i]
			if seen.Contains(p.ID) {
				continue
			}
			seen.Add(p.ID)

			select {
			case out <- p:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// seenSet is a fixed-capacity set with FIFO eviction.
type seenSet struct {
	limit int
	ids   map[string]struct{}
	order []string
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{limit: limit, ids: make(map[string]struct{}, limit)}
}

func (s *seenSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *seenSet) Add(id string) {
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.limit {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
}
