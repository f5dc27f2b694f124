package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sneakyguy/reddit-mentions-bot/internal/digest"
)

type fakeDigestRunner struct {
	ctxs chan context.Context
}

func (f *fakeDigestRunner) Run(ctx context.Context) (*digest.Summary, error) {
	f.ctxs <- ctx
	return &digest.Summary{}, nil
}

func TestTriggerHandler_RunIsTiedToProcessContext(t *testing.T) {
	processCtx, cancel := context.WithCancel(context.Background())
	runner := &fakeDigestRunner{ctxs: make(chan context.Context, 1)}

	rec := httptest.NewRecorder()
	triggerHandler(processCtx, runner)(rec, httptest.NewRequest("POST", "/trigger", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var runCtx context.Context
	select {
	case runCtx = <-runner.ctxs:
	case <-time.After(time.Second):
		t.Fatal("digest run never started")
	}

	// The run outlives the request, but shutdown cuts it off.
	require.NoError(t, runCtx.Err())
	cancel()
	assert.Error(t, runCtx.Err())
}
