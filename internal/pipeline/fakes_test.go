package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FranksOps/reelrank/internal/hiker"
	"github.com/FranksOps/reelrank/internal/model"
)

// fakeAPI serves canned data keyed by query or account id and tracks how
// many accounts are in flight at once.
type fakeAPI struct {
	search     map[string][]model.AccountCandidate
	searchErr  map[string]error
	profiles   map[string]model.Account
	profileErr map[string]error
	reels      map[string][]hiker.RawReel
	reelErr    map[string]error
	delay      time.Duration

	mu           sync.Mutex
	profileCalls map[string]int
	reelCalls    map[string]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		search:       map[string][]model.AccountCandidate{},
		searchErr:    map[string]error{},
		profiles:     map[string]model.Account{},
		profileErr:   map[string]error{},
		reels:        map[string][]hiker.RawReel{},
		reelErr:      map[string]error{},
		profileCalls: map[string]int{},
		reelCalls:    map[string]int{},
	}
}

// addAccount registers an account with n reels whose views are id-derived.
func (f *fakeAPI) addAccount(id string, followers int64, n int) {
	f.profiles[id] = model.Account{
		ID:            id,
		Username:      "user" + id,
		FullName:      "Test User" + id,
		FollowerCount: followers,
	}
	rs := make([]hiker.RawReel, 0, n)
	for i := range n {
		rs = append(rs, hiker.RawReel{
			"pk":         fmt.Sprintf("%s-%d", id, i),
			"code":       fmt.Sprintf("C%s%d", id, i),
			"play_count": (i * 37) % 11,
			"taken_at":   1700000000 + i,
		})
	}
	f.reels[id] = rs
}

func (f *fakeAPI) SearchAccounts(_ context.Context, query string, limit int) ([]model.AccountCandidate, error) {
	out := append([]model.AccountCandidate(nil), f.search[query]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, f.searchErr[query]
}

func (f *fakeAPI) GetProfile(ctx context.Context, id string) (model.Account, error) {
	n := f.inFlight.Add(1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	f.profileCalls[id]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.Account{}, ctx.Err()
		}
	}
	if err := f.profileErr[id]; err != nil {
		return model.Account{}, err
	}
	return f.profiles[id], nil
}

func (f *fakeAPI) ListReels(_ context.Context, id string, limit int) ([]hiker.RawReel, error) {
	f.mu.Lock()
	f.reelCalls[id]++
	f.mu.Unlock()

	if err := f.reelErr[id]; err != nil {
		return nil, err
	}
	rs := f.reels[id]
	if limit < len(rs) {
		rs = rs[:limit]
	}
	return rs, nil
}

func (f *fakeAPI) calls(m map[string]int, id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return m[id]
}

type memSink struct {
	mu   sync.Mutex
	recs []model.ErrorRecord
}

func (s *memSink) Record(rec model.ErrorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
}

func (s *memSink) records() []model.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ErrorRecord(nil), s.recs...)
}
