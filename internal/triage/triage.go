// Package triage orders escalations for healthcare-professional review and
// keeps the console usable when the store is unreachable.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"telemed-admin/internal/metrics"
	"telemed-admin/internal/repo"
)

// ErrInvalidTransition marks a rejected escalation lifecycle move.
var ErrInvalidTransition = errors.New("invalid escalation transition")

// EscalationStore is the slice of the store the triage service needs.
type EscalationStore interface {
	ListEscalations(ctx context.Context) ([]repo.Escalation, error)
	GetEscalation(ctx context.Context, id string) (*repo.Escalation, error)
	UpdateEscalationStatus(ctx context.Context, id, status string, resolvedBy *string, resolvedAt *time.Time) error
}

// Service lists and updates escalations. When the live store fails it serves
// a fixed mock dataset, mutated in memory only, so reviewers still see a
// working queue.
type Service struct {
	store   EscalationStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	usingMock bool
	mock      []repo.Escalation
}

// New creates a triage service.
func New(store EscalationStore, logger *slog.Logger, metricRegistry *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		logger:  logger.With("component", "triage"),
		metrics: metricRegistry,
		now:     time.Now,
	}
}

// ListResult carries the ordered queue plus the degraded-mode flag.
type ListResult struct {
	Escalations []repo.Escalation `json:"escalations"`
	UsingMock   bool              `json:"using_mock"`
}

// List returns escalations in triage order. A failed live fetch switches the
// service into mock mode instead of surfacing an error.
func (s *Service) List(ctx context.Context) ListResult {
	escalations, err := s.store.ListEscalations(ctx)
	if err != nil {
		s.logger.Warn("live escalation fetch failed, serving mock data", "error", err)
		if s.metrics != nil {
			s.metrics.Errors.WithLabelValues("triage").Inc()
		}
		return ListResult{Escalations: s.mockQueue(), UsingMock: true}
	}

	s.mu.Lock()
	s.usingMock = false
	s.mu.Unlock()

	Sort(escalations)
	return ListResult{Escalations: escalations}
}

// UpdateStatus applies a status transition. In mock mode only the in-memory
// dataset changes; against live data the store is written and re-read.
func (s *Service) UpdateStatus(ctx context.Context, id, status, resolvedBy string) (*repo.Escalation, error) {
	s.mu.Lock()
	mock := s.usingMock
	s.mu.Unlock()

	if mock {
		return s.updateMock(id, status, resolvedBy)
	}

	current, err := s.store.GetEscalation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(current.Status, status); err != nil {
		return nil, err
	}

	var by *string
	var at *time.Time
	if status == repo.EscalationResolved {
		t := s.now()
		by, at = &resolvedBy, &t
	}
	if err := s.store.UpdateEscalationStatus(ctx, id, status, by, at); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.EscalationUpdates.WithLabelValues(status, "live").Inc()
	}
	return s.store.GetEscalation(ctx, id)
}

// ValidateTransition enforces the escalation lifecycle: pending may move to
// in_progress or straight to resolved, in_progress only to resolved, and
// resolved is terminal.
func ValidateTransition(from, to string) error {
	switch {
	case from == repo.EscalationPending && (to == repo.EscalationInProgress || to == repo.EscalationResolved):
		return nil
	case from == repo.EscalationInProgress && to == repo.EscalationResolved:
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Sort orders escalations by status priority (pending first, resolved last),
// then newest first within a status.
func Sort(escalations []repo.Escalation) {
	sort.SliceStable(escalations, func(i, j int) bool {
		pi, pj := statusPriority(escalations[i].Status), statusPriority(escalations[j].Status)
		if pi != pj {
			return pi > pj
		}
		return escalations[i].CreatedAt.After(escalations[j].CreatedAt)
	})
}

func statusPriority(status string) int {
	switch status {
	case repo.EscalationPending:
		return 3
	case repo.EscalationInProgress:
		return 2
	case repo.EscalationResolved:
		return 1
	}
	return 0
}

func (s *Service) mockQueue() []repo.Escalation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usingMock {
		s.usingMock = true
		s.mock = mockEscalations(s.now())
	}
	out := make([]repo.Escalation, len(s.mock))
	copy(out, s.mock)
	Sort(out)
	return out
}

func (s *Service) updateMock(id, status, resolvedBy string) (*repo.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.mock {
		if s.mock[i].ID != id {
			continue
		}
		if err := ValidateTransition(s.mock[i].Status, status); err != nil {
			return nil, err
		}
		s.mock[i].Status = status
		if status == repo.EscalationResolved {
			t := s.now()
			s.mock[i].ResolvedAt = &t
			s.mock[i].ResolvedBy = &resolvedBy
		}
		if s.metrics != nil {
			s.metrics.EscalationUpdates.WithLabelValues(status, "mock").Inc()
		}
		updated := s.mock[i]
		return &updated, nil
	}
	return nil, fmt.Errorf("update mock escalation: %w", repo.ErrNotFound)
}
