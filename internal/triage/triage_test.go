package triage

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"telemed-admin/internal/repo"
)

type stubStore struct {
	escalations []repo.Escalation
	listErr     error
	updates     int
}

func (s *stubStore) ListEscalations(ctx context.Context) ([]repo.Escalation, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]repo.Escalation, len(s.escalations))
	copy(out, s.escalations)
	return out, nil
}

func (s *stubStore) GetEscalation(ctx context.Context, id string) (*repo.Escalation, error) {
	for i := range s.escalations {
		if s.escalations[i].ID == id {
			e := s.escalations[i]
			return &e, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *stubStore) UpdateEscalationStatus(ctx context.Context, id, status string, resolvedBy *string, resolvedAt *time.Time) error {
	s.updates++
	for i := range s.escalations {
		if s.escalations[i].ID == id {
			s.escalations[i].Status = status
			if resolvedBy != nil {
				s.escalations[i].ResolvedBy = resolvedBy
			}
			if resolvedAt != nil {
				s.escalations[i].ResolvedAt = resolvedAt
			}
			return nil
		}
	}
	return repo.ErrNotFound
}

func newTestService(store EscalationStore) *Service {
	return New(store, slog.Default(), nil)
}

func TestListStatusPriorityDominatesTimestamps(t *testing.T) {
	base := time.Date(2026, time.March, 18, 9, 0, 0, 0, time.UTC)
	store := &stubStore{escalations: []repo.Escalation{
		{ID: "r", Status: repo.EscalationResolved, CreatedAt: base.Add(3 * time.Hour)},  // newest
		{ID: "p", Status: repo.EscalationPending, CreatedAt: base},                      // oldest
		{ID: "i", Status: repo.EscalationInProgress, CreatedAt: base.Add(1 * time.Hour)},
	}}

	res := newTestService(store).List(context.Background())
	if res.UsingMock {
		t.Fatal("unexpected mock mode")
	}
	got := []string{res.Escalations[0].ID, res.Escalations[1].ID, res.Escalations[2].ID}
	want := []string{"p", "i", "r"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestListTieBreakNewestFirst(t *testing.T) {
	base := time.Date(2026, time.March, 18, 9, 0, 0, 0, time.UTC)
	store := &stubStore{escalations: []repo.Escalation{
		{ID: "old", Status: repo.EscalationPending, CreatedAt: base},
		{ID: "new", Status: repo.EscalationPending, CreatedAt: base.Add(time.Hour)},
	}}

	res := newTestService(store).List(context.Background())
	if res.Escalations[0].ID != "new" {
		t.Fatalf("first = %s, want new (newest pending first)", res.Escalations[0].ID)
	}
}

func TestFallbackToMockOnFetchFailure(t *testing.T) {
	store := &stubStore{listErr: errors.New("connection refused")}
	svc := newTestService(store)

	res := svc.List(context.Background())
	if !res.UsingMock {
		t.Fatal("expected mock mode after failed fetch")
	}
	if len(res.Escalations) == 0 {
		t.Fatal("expected non-empty mock dataset")
	}

	// Updates in mock mode must not touch the store.
	target := res.Escalations[0]
	if target.Status != repo.EscalationPending {
		t.Fatalf("expected a pending escalation first, got %s", target.Status)
	}
	updated, err := svc.UpdateStatus(context.Background(), target.ID, repo.EscalationResolved, "dr.test")
	if err != nil {
		t.Fatalf("update mock escalation: %v", err)
	}
	if store.updates != 0 {
		t.Fatalf("store updates = %d, want 0 in mock mode", store.updates)
	}
	if updated.ResolvedBy == nil || *updated.ResolvedBy != "dr.test" {
		t.Fatal("resolved_by not set on resolve")
	}
	if updated.ResolvedAt == nil {
		t.Fatal("resolved_at not set on resolve")
	}

	// Mutation persists across mock listings.
	res = svc.List(context.Background())
	if !res.UsingMock {
		t.Fatal("expected mock mode to persist while store is down")
	}
	for _, e := range res.Escalations {
		if e.ID == target.ID && e.Status != repo.EscalationResolved {
			t.Fatalf("mock escalation %s status = %s, want resolved", e.ID, e.Status)
		}
	}
}

func TestResolvedIsTerminal(t *testing.T) {
	resolvedBy := "dr.done"
	now := time.Now()
	store := &stubStore{escalations: []repo.Escalation{
		{ID: "e1", Status: repo.EscalationResolved, CreatedAt: now, ResolvedAt: &now, ResolvedBy: &resolvedBy},
	}}
	svc := newTestService(store)
	svc.List(context.Background())

	if _, err := svc.UpdateStatus(context.Background(), "e1", repo.EscalationInProgress, "dr.x"); err == nil {
		t.Fatal("expected error: resolved is terminal")
	}
}

func TestLiveUpdateSetsResolutionFields(t *testing.T) {
	fixed := time.Date(2026, time.March, 18, 12, 0, 0, 0, time.UTC)
	store := &stubStore{escalations: []repo.Escalation{
		{ID: "e1", Status: repo.EscalationPending, CreatedAt: fixed.Add(-time.Hour)},
	}}
	svc := newTestService(store)
	svc.now = func() time.Time { return fixed }
	svc.List(context.Background())

	updated, err := svc.UpdateStatus(context.Background(), "e1", repo.EscalationResolved, "dr.live")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if store.updates != 1 {
		t.Fatalf("store updates = %d, want 1", store.updates)
	}
	if updated.ResolvedAt == nil || !updated.ResolvedAt.Equal(fixed) {
		t.Fatalf("resolved_at = %v, want %v", updated.ResolvedAt, fixed)
	}
	if updated.ResolvedBy == nil || *updated.ResolvedBy != "dr.live" {
		t.Fatal("resolved_by not recorded")
	}
}

func TestDirectPendingToResolvedAllowed(t *testing.T) {
	if err := ValidateTransition(repo.EscalationPending, repo.EscalationResolved); err != nil {
		t.Fatalf("pending -> resolved should be allowed: %v", err)
	}
	if err := ValidateTransition(repo.EscalationResolved, repo.EscalationResolved); err == nil {
		t.Fatal("resolved -> resolved should be rejected")
	}
}
