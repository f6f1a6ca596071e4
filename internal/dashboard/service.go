// Package dashboard assembles the admin overview statistics and keeps them
// fresh with a periodic, non-overlapping refresh loop.
package dashboard

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"telemed-admin/internal/analytics"
	"telemed-admin/internal/metrics"
	"telemed-admin/internal/repo"
)

const overviewCacheKey = "stats:overview"

// StatsStore is the slice of the store the dashboard needs.
type StatsStore interface {
	CountUsers(ctx context.Context) (int, error)
	CountUsersSince(ctx context.Context, since time.Time) (int, error)
	CountActiveSessions(ctx context.Context) (int, error)
	CountEscalationsByStatus(ctx context.Context, status string) (int, error)
	CountCompletedKYC(ctx context.Context) (int, error)
	CountMessagesSince(ctx context.Context, since time.Time) (int, error)
	ListRecentMessages(ctx context.Context, limit int) ([]repo.Message, error)
	ListEventTimes(ctx context.Context, entity string, from, to time.Time) ([]time.Time, error)
}

// StatCache abstracts the redis JSON cache.
type StatCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Overview is the aggregate dashboard snapshot.
type Overview struct {
	TotalUsers         int       `json:"total_users"`
	NewUsersToday      int       `json:"new_users_today"`
	ActiveSessions     int       `json:"active_sessions"`
	PendingEscalations int       `json:"pending_escalations"`
	CompletedKYC       int       `json:"completed_kyc"`
	MessagesToday      int       `json:"messages_today"`
	AvgResponseSeconds float64   `json:"avg_response_seconds"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// Config holds dashboard settings.
type Config struct {
	PollInterval time.Duration
	DemoStats    bool
}

// Service computes and caches dashboard statistics.
type Service struct {
	store   StatsStore
	cache   StatCache
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time

	inFlight   atomic.Bool
	generation atomic.Int64
}

// New creates a dashboard service. cache may be nil, disabling caching.
func New(store StatsStore, cache StatCache, cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	return &Service{
		store:   store,
		cache:   cache,
		logger:  logger.With("component", "dashboard"),
		metrics: metricRegistry,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Overview returns the cached snapshot when fresh, computing on miss.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	if s.cache != nil {
		var cached Overview
		ok, err := s.cache.GetJSON(ctx, overviewCacheKey, &cached)
		if err != nil {
			s.logger.Warn("overview cache read failed", "error", err)
		} else if ok {
			return &cached, nil
		}
	}

	overview, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	s.storeCache(ctx, overview)
	return overview, nil
}

// Series returns a chart series for one entity and timeframe.
func (s *Service) Series(ctx context.Context, entity string, tf analytics.Timeframe) ([]analytics.Bucket, error) {
	now := s.now()
	from, err := analytics.WindowStart(tf, now)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListEventTimes(ctx, entity, from, now)
	if err != nil {
		return nil, err
	}
	series, err := analytics.BucketSeries(events, tf, now)
	if err != nil {
		return nil, err
	}
	if s.cfg.DemoStats {
		series = analytics.InflateSeries(series, 5)
	}
	return series, nil
}

// Run refreshes the overview on the poll interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh recomputes the overview once. A refresh that would overlap a
// running one is skipped, and a result that lost a generation race is
// discarded rather than cached. Reports whether a refresh ran.
func (s *Service) Refresh(ctx context.Context) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.PollRuns.WithLabelValues("skipped").Inc()
		}
		return false
	}
	defer s.inFlight.Store(false)

	gen := s.generation.Add(1)
	overview, err := s.compute(ctx)
	if err != nil {
		s.logger.Warn("overview refresh failed", "error", err)
		if s.metrics != nil {
			s.metrics.PollRuns.WithLabelValues("error").Inc()
		}
		return true
	}
	if s.generation.Load() != gen {
		if s.metrics != nil {
			s.metrics.PollRuns.WithLabelValues("stale").Inc()
		}
		return true
	}

	s.storeCache(ctx, overview)
	if s.metrics != nil {
		s.metrics.PollRuns.WithLabelValues("ok").Inc()
	}
	return true
}

func (s *Service) compute(ctx context.Context) (*Overview, error) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	totalUsers, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	newUsers, err := s.store.CountUsersSince(ctx, midnight)
	if err != nil {
		return nil, err
	}
	activeSessions, err := s.store.CountActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.CountEscalationsByStatus(ctx, repo.EscalationPending)
	if err != nil {
		return nil, err
	}
	completedKYC, err := s.store.CountCompletedKYC(ctx)
	if err != nil {
		return nil, err
	}
	messagesToday, err := s.store.CountMessagesSince(ctx, midnight)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.ListRecentMessages(ctx, 100)
	if err != nil {
		return nil, err
	}

	samples := make([]analytics.ReplySample, 0, len(recent))
	for _, m := range recent {
		samples = append(samples, analytics.ReplySample{Direction: m.Direction, CreatedAt: m.CreatedAt})
	}

	return &Overview{
		TotalUsers:         totalUsers,
		NewUsersToday:      newUsers,
		ActiveSessions:     activeSessions,
		PendingEscalations: pending,
		CompletedKYC:       completedKYC,
		MessagesToday:      messagesToday,
		AvgResponseSeconds: analytics.AverageResponseSeconds(samples),
		GeneratedAt:        now,
	}, nil
}

func (s *Service) storeCache(ctx context.Context, overview *Overview) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, overviewCacheKey, overview, s.cfg.PollInterval); err != nil {
		s.logger.Warn("overview cache write failed", "error", err)
	}
}
