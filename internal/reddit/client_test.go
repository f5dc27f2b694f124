package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("id", "secret", "test-agent/1.0", time.Millisecond)
	c.authURL = srv.URL + "/api/v1/access_token"
	c.apiURL = srv.URL
	c.PollInterval = 5 * time.Millisecond
	return c, srv
}

func writeToken(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
}

func writeListing(w http.ResponseWriter, posts ...models.Post) {
	type child struct {
		Data map[string]interface{} `json:"data"`
	}
	children := make([]child, 0, len(posts))
	for _, p := range posts {
		children = append(children, child{Data: map[string]interface{}{
			"id":           p.ID,
			"title":        p.Title,
			"selftext":     p.Selftext,
			"author":       p.Author,
			"subreddit":    p.Subreddit,
			"permalink":    p.Permalink,
			"created_utc":  float64(p.CreatedUTC),
			"score":        p.Score,
			"num_comments": p.NumComments,
		}})
	}
	body := map[string]interface{}{
		"data": map[string]interface{}{"children": children},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func TestClient_Authenticate(t *testing.T) {
	var gotUser, gotPass string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		writeToken(w)
	}))

	require.NoError(t, client.Authenticate(context.Background()))
	assert.Equal(t, "id", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestClient_AuthenticateFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := client.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuth(err))
}

func TestClient_ListNew(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			writeToken(w)
		case "/r/brewing/new.json":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
			writeListing(w,
				models.Post{ID: "b", Title: "Newest", Permalink: "/r/brewing/comments/b/newest/", CreatedUTC: 200},
				models.Post{ID: "a", Title: "Older", Permalink: "/r/brewing/comments/a/older/", CreatedUTC: 100},
			)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	posts, err := client.ListNew(context.Background(), "brewing", 100)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "Newest", posts[0].Title)
	assert.Equal(t, "https://reddit.com/r/brewing/comments/b/newest/", posts[0].URL)
	assert.Equal(t, int64(200), posts[0].CreatedUTC)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "403 is forbidden and permanent",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				assert.True(t, Permanent(err))
				assert.False(t, Retryable(err))
			},
		},
		{
			name:   "404 is not found and permanent",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				assert.True(t, Permanent(err))
				assert.False(t, Retryable(err))
			},
		},
		{
			name:   "429 is retryable",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				assert.True(t, Retryable(err))
				assert.False(t, Permanent(err))
			},
		},
		{
			name:   "502 is transient and retryable",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				assert.True(t, Retryable(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/v1/access_token" {
					writeToken(w)
					return
				}
				w.WriteHeader(tt.status)
			}))

			_, err := client.ListNew(context.Background(), "somewhere", 10)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_ReauthenticatesOn401(t *testing.T) {
	tokens := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			tokens++
			writeToken(w)
			return
		}
		// First listing call gets a 401, the retry succeeds.
		if tokens < 2 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeListing(w, models.Post{ID: "a", Title: "Hello", Permalink: "/r/x/comments/a/", CreatedUTC: 1})
	}))

	posts, err := client.ListNew(context.Background(), "x", 10)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, 2, tokens)
}

func TestClient_StreamSkipsExistingPosts(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			writeToken(w)
			return
		}
		calls++
		if calls == 1 {
			// Stream-open snapshot: these must never be emitted.
			writeListing(w,
				models.Post{ID: "old2", Title: "Old 2", Permalink: "/r/x/comments/old2/", CreatedUTC: 20},
				models.Post{ID: "old1", Title: "Old 1", Permalink: "/r/x/comments/old1/", CreatedUTC: 10},
			)
			return
		}
		writeListing(w,
			models.Post{ID: "new2", Title: "New 2", Permalink: "/r/x/comments/new2/", CreatedUTC: 40},
			models.Post{ID: "new1", Title: "New 1", Permalink: "/r/x/comments/new1/", CreatedUTC: 30},
			models.Post{ID: "old2", Title: "Old 2", Permalink: "/r/x/comments/old2/", CreatedUTC: 20},
		)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	posts, ready, errs := client.StreamSubmissions(ctx, "x")

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("stream never became ready")
	}

	first := <-posts
	second := <-posts
	// Oldest-first within a poll, pre-existing posts skipped.
	assert.Equal(t, "new1", first.ID)
	assert.Equal(t, "new2", second.ID)

	cancel()
	for range posts {
	}
	assert.NoError(t, <-errs)
}

func TestClient_StreamSurfacesPermanentError(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			writeToken(w)
			return
		}
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))

	posts, ready, errs := client.StreamSubmissions(context.Background(), "doesnotexist")
	for range posts {
	}
	err := <-errs
	require.Error(t, err)
	assert.True(t, Permanent(err))

	// The snapshot fetch failed, so the stream never became ready.
	select {
	case <-ready:
		t.Fatal("stream reported ready despite failing to open")
	default:
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/r/x/comments/a/", "https://reddit.com/r/x/comments/a/"},
		{"https://reddit.com/r/x/comments/a/", "https://reddit.com/r/x/comments/a/"},
		{"//reddit.com/r/x/comments/a/", "https://reddit.com/r/x/comments/a/"},
		{"r/x/comments/a/", "https://reddit.com/r/x/comments/a/"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalURL(tt.in))
	}
}
