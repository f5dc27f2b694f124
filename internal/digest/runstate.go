package digest

import (
	"fmt"
	"sync"
)

// RunState tracks work already done within a single digest run so
// overlapping trigger paths never repeat it: brands analyzed,
// (brand, subreddit) pairs scanned and recipients emailed. One
// RunState is created per run and discarded at the end; there is no
// cross-run state.
type RunState struct {
	mu       sync.Mutex
	brands   map[int64]struct{}
	scanKeys map[string]struct{}
	emails   map[string]struct{}
}

func NewRunState() *RunState {
	return &RunState{
		brands:   make(map[int64]struct{}),
		scanKeys: make(map[string]struct{}),
		emails:   make(map[string]struct{}),
	}
}

// ClaimBrand reports whether the brand still needs analysis in this
// run, marking it analyzed.
func (r *RunState) ClaimBrand(brandID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.brands[brandID]; ok {
		return false
	}
	r.brands[brandID] = struct{}{}
	return true
}

// Claim reports whether the (brand, subreddit) pair still needs a scan
// in this run, marking it scanned. It satisfies the scanner's
// SubredditFilter.
func (r *RunState) Claim(brandID int64, subreddit string) bool {
	key := fmt.Sprintf("%d:%s", brandID, subreddit)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scanKeys[key]; ok {
		return false
	}
	r.scanKeys[key] = struct{}{}
	return true
}

// ClaimEmail reports whether the recipient still needs a digest in
// this run, marking it sent.
func (r *RunState) ClaimEmail(email string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.emails[email]; ok {
		return false
	}
	r.emails[email] = struct{}{}
	return true
}
