package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"telemed-admin/internal/analytics"
	"telemed-admin/internal/repo"
)

type stubStats struct {
	users       int
	usersToday  int
	sessions    int
	pending     int
	kyc         int
	msgsToday   int
	recent      []repo.Message
	events      []time.Time
	computeGate chan struct{}
	computes    int
	mu          sync.Mutex
}

func (s *stubStats) CountUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	s.computes++
	s.mu.Unlock()
	if s.computeGate != nil {
		<-s.computeGate
	}
	return s.users, nil
}
func (s *stubStats) CountUsersSince(ctx context.Context, since time.Time) (int, error) {
	return s.usersToday, nil
}
func (s *stubStats) CountActiveSessions(ctx context.Context) (int, error) { return s.sessions, nil }
func (s *stubStats) CountEscalationsByStatus(ctx context.Context, status string) (int, error) {
	return s.pending, nil
}
func (s *stubStats) CountCompletedKYC(ctx context.Context) (int, error) { return s.kyc, nil }
func (s *stubStats) CountMessagesSince(ctx context.Context, since time.Time) (int, error) {
	return s.msgsToday, nil
}
func (s *stubStats) ListRecentMessages(ctx context.Context, limit int) ([]repo.Message, error) {
	return s.recent, nil
}
func (s *stubStats) ListEventTimes(ctx context.Context, entity string, from, to time.Time) ([]time.Time, error) {
	return s.events, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[key] = raw
	c.sets++
	c.mu.Unlock()
	return nil
}

func newTestService(store StatsStore, cache StatCache, cfg Config) *Service {
	return New(store, cache, cfg, slog.Default(), nil)
}

func TestOverviewAggregatesCounts(t *testing.T) {
	now := time.Date(2026, 3, 18, 15, 30, 0, 0, time.UTC)
	store := &stubStats{
		users: 120, usersToday: 4, sessions: 9, pending: 3, kyc: 80, msgsToday: 42,
		recent: []repo.Message{
			{Direction: repo.DirectionOutbound, CreatedAt: now},
			{Direction: repo.DirectionInbound, CreatedAt: now.Add(-10 * time.Second)},
		},
	}
	svc := newTestService(store, nil, Config{PollInterval: time.Minute})
	svc.now = func() time.Time { return now }

	overview, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.TotalUsers != 120 || overview.ActiveSessions != 9 {
		t.Fatalf("unexpected counts: %+v", overview)
	}
	if overview.PendingEscalations != 3 || overview.CompletedKYC != 80 {
		t.Fatalf("unexpected counts: %+v", overview)
	}
	if overview.AvgResponseSeconds != 10 {
		t.Fatalf("avg response = %v, want 10", overview.AvgResponseSeconds)
	}
}

func TestOverviewServedFromCache(t *testing.T) {
	store := &stubStats{users: 7}
	cache := newMemCache()
	svc := newTestService(store, cache, Config{PollInterval: time.Minute})

	if _, err := svc.Overview(context.Background()); err != nil {
		t.Fatalf("first overview: %v", err)
	}
	if _, err := svc.Overview(context.Background()); err != nil {
		t.Fatalf("second overview: %v", err)
	}

	store.mu.Lock()
	computes := store.computes
	store.mu.Unlock()
	if computes != 1 {
		t.Fatalf("computes = %d, want 1 (second call should hit cache)", computes)
	}
}

func TestRefreshNeverOverlaps(t *testing.T) {
	gate := make(chan struct{})
	store := &stubStats{computeGate: gate}
	cache := newMemCache()
	svc := newTestService(store, cache, Config{PollInterval: time.Minute})

	done := make(chan bool)
	go func() { done <- svc.Refresh(context.Background()) }()

	// Wait for the first refresh to enter compute.
	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		started := store.computes > 0
		store.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first refresh never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if svc.Refresh(context.Background()) {
		t.Fatal("second refresh ran while first was in flight")
	}

	close(gate)
	if !<-done {
		t.Fatal("first refresh reported skipped")
	}

	store.mu.Lock()
	computes := store.computes
	store.mu.Unlock()
	if computes != 1 {
		t.Fatalf("computes = %d, want 1", computes)
	}
	if cache.sets != 1 {
		t.Fatalf("cache writes = %d, want 1", cache.sets)
	}
}

func TestSeriesInflationGated(t *testing.T) {
	now := time.Date(2026, 3, 18, 15, 30, 0, 0, time.UTC)
	store := &stubStats{events: []time.Time{now.Add(-time.Hour)}}

	svc := newTestService(store, nil, Config{PollInterval: time.Minute})
	svc.now = func() time.Time { return now }
	plain, err := svc.Series(context.Background(), "users", analytics.TimeframeDay)
	if err != nil {
		t.Fatalf("series: %v", err)
	}

	demo := newTestService(store, nil, Config{PollInterval: time.Minute, DemoStats: true})
	demo.now = func() time.Time { return now }
	inflated, err := demo.Series(context.Background(), "users", analytics.TimeframeDay)
	if err != nil {
		t.Fatalf("series: %v", err)
	}

	plainSum, inflatedSum := 0, 0
	for i := range plain {
		plainSum += plain[i].Count
		inflatedSum += inflated[i].Count
	}
	if plainSum != 1 {
		t.Fatalf("plain sum = %d, want 1", plainSum)
	}
	if inflatedSum <= plainSum {
		t.Fatalf("inflated sum = %d, want > %d", inflatedSum, plainSum)
	}
}
