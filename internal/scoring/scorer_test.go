package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
)

func TestHTTPScorer_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Need a coffee maker", req.PostTitle)
		assert.Equal(t, "BrewCo", req.BrandName)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Evaluation{
			Score:       85,
			Explanation: "Direct need-solution fit.",
			Intent:      models.IntentPurchase,
		})
	}))
	defer srv.Close()

	eval, err := NewHTTPScorer(srv.URL).Score(context.Background(),
		"Need a coffee maker", "any recs?", "BrewCo", "makes coffee machines")
	require.NoError(t, err)
	assert.Equal(t, 85, eval.Score)
	assert.Equal(t, models.IntentPurchase, eval.Intent)
}

func TestHTTPScorer_ScoreFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	eval, err := NewHTTPScorer(srv.URL).Score(context.Background(), "t", "c", "b", "d")
	assert.Error(t, err)
	assert.Equal(t, Default(), eval)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   Evaluation
		want Evaluation
	}{
		{
			name: "Score below range is clamped",
			in:   Evaluation{Score: 5, Intent: models.IntentComplaint},
			want: Evaluation{Score: 20, Intent: models.IntentComplaint},
		},
		{
			name: "Score above range is clamped",
			in:   Evaluation{Score: 150, Intent: models.IntentOther},
			want: Evaluation{Score: 100, Intent: models.IntentOther},
		},
		{
			name: "Unknown intent collapses to other",
			in:   Evaluation{Score: 60, Intent: "buying_stuff"},
			want: Evaluation{Score: 60, Intent: models.IntentOther},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitize(tt.in))
		})
	}
}

func TestDisabledScorer(t *testing.T) {
	eval, err := Disabled{}.Score(context.Background(), "t", "c", "b", "d")
	require.NoError(t, err)
	assert.Equal(t, Default(), eval)
}
