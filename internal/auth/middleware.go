package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// doctorIDKey carries the authenticated doctor id through request contexts.
const doctorIDKey contextKey = "doctor_id"

// DoctorID extracts the authenticated doctor id from a request context.
func DoctorID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(doctorIDKey).(string)
	return id, ok
}

// Middleware guards doctor routes with bearer-token validation. A missing or
// malformed token is rejected before any store access.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := s.Verify(token)
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), doctorIDKey, claims.DoctorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
