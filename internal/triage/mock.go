package triage

import (
	"time"

	"telemed-admin/internal/repo"
)

// mockEscalations is the fixed dataset served while the store is down.
func mockEscalations(now time.Time) []repo.Escalation {
	resolvedAt := now.Add(-90 * time.Minute)
	resolvedBy := "dr.alemu"
	return []repo.Escalation{
		{
			ID:        "mock-esc-1",
			UserID:    "mock-user-1",
			Reason:    "User reports chest pain for two days",
			Status:    repo.EscalationPending,
			CreatedAt: now.Add(-30 * time.Minute),
		},
		{
			ID:        "mock-esc-2",
			UserID:    "mock-user-2",
			Reason:    "Medication dosage question could not be answered",
			Status:    repo.EscalationPending,
			CreatedAt: now.Add(-4 * time.Hour),
		},
		{
			ID:        "mock-esc-3",
			UserID:    "mock-user-3",
			Reason:    "Possible allergic reaction to prescription",
			Status:    repo.EscalationInProgress,
			CreatedAt: now.Add(-2 * time.Hour),
		},
		{
			ID:         "mock-esc-4",
			UserID:     "mock-user-4",
			Reason:     "Follow-up request after consultation",
			Status:     repo.EscalationResolved,
			CreatedAt:  now.Add(-10 * time.Minute),
			ResolvedAt: &resolvedAt,
			ResolvedBy: &resolvedBy,
		},
	}
}
