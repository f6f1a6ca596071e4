package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"telemed-admin/internal/repo"
)

type stubDoctors struct {
	doctors map[string]*repo.Doctor // by phone
	gets    int
}

func (s *stubDoctors) GetDoctor(ctx context.Context, id string) (*repo.Doctor, error) {
	s.gets++
	for _, d := range s.doctors {
		if d.ID == id {
			out := *d
			return &out, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *stubDoctors) GetDoctorByPhone(ctx context.Context, phone string) (*repo.Doctor, error) {
	s.gets++
	if d, ok := s.doctors[phone]; ok {
		out := *d
		return &out, nil
	}
	return nil, repo.ErrNotFound
}

func (s *stubDoctors) SetDoctorPassword(ctx context.Context, id, hash string) error {
	for _, d := range s.doctors {
		if d.ID == id {
			d.PasswordHash = &hash
			return nil
		}
	}
	return repo.ErrNotFound
}

func testService(store DoctorStore) *Service {
	return New(store, Config{JWTSecret: "test-secret", TokenExpiry: time.Hour}, slog.Default())
}

func approvedDoctor(id, phone string, hash *string) *repo.Doctor {
	return &repo.Doctor{
		ID:                 id,
		Name:               "Dr Test",
		PhoneNumber:        phone,
		RegistrationStatus: repo.RegistrationApproved,
		IsActive:           true,
		PasswordHash:       hash,
	}
}

func TestCheckPhoneStates(t *testing.T) {
	hash := "x"
	store := &stubDoctors{doctors: map[string]*repo.Doctor{
		"+251900000001": approvedDoctor("d1", "+251900000001", nil),
		"+251900000002": approvedDoctor("d2", "+251900000002", &hash),
		"+251900000003": {ID: "d3", PhoneNumber: "+251900000003", RegistrationStatus: repo.RegistrationPending},
	}}
	svc := testService(store)

	status, err := svc.CheckPhone(context.Background(), "+251900000001")
	if err != nil || status != StatusNeedsPasswordSetup {
		t.Fatalf("status = %q err = %v, want NEEDS_PASSWORD_SETUP", status, err)
	}
	status, err = svc.CheckPhone(context.Background(), "+251900000002")
	if err != nil || status != StatusReadyForLogin {
		t.Fatalf("status = %q err = %v, want READY_FOR_LOGIN", status, err)
	}
	// Unapproved registrations look like unknown phones.
	if _, err := svc.CheckPhone(context.Background(), "+251900000003"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for unapproved doctor", err)
	}
	if _, err := svc.CheckPhone(context.Background(), "+251900000099"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for unknown phone", err)
	}
}

func TestSetupPasswordThenLogin(t *testing.T) {
	store := &stubDoctors{doctors: map[string]*repo.Doctor{
		"+251900000001": approvedDoctor("d1", "+251900000001", nil),
	}}
	svc := testService(store)

	session, err := svc.SetupPassword(context.Background(), "+251900000001", "secret-pass")
	if err != nil {
		t.Fatalf("setup password: %v", err)
	}
	if session.Token == "" || session.Doctor.ID != "d1" {
		t.Fatal("incomplete session result")
	}

	// Second setup attempt must be rejected.
	if _, err := svc.SetupPassword(context.Background(), "+251900000001", "other-pass"); err != ErrPasswordSet {
		t.Fatalf("err = %v, want ErrPasswordSet", err)
	}

	session, err = svc.Login(context.Background(), "+251900000001", "secret-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	doctor, err := svc.Me(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if doctor.ID != "d1" {
		t.Fatalf("me doctor = %s, want d1", doctor.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("right-pass"), bcrypt.MinCost)
	h := string(hash)
	store := &stubDoctors{doctors: map[string]*repo.Doctor{
		"+251900000001": approvedDoctor("d1", "+251900000001", &h),
	}}
	svc := testService(store)

	if _, err := svc.Login(context.Background(), "+251900000001", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(context.Background(), "+251900000404", "whatever"); err != ErrInvalidCredentials {
		t.Fatalf("err = %v, want ErrInvalidCredentials for unknown phone", err)
	}
}

func TestMiddlewareRejectsMissingTokenWithoutStoreAccess(t *testing.T) {
	store := &stubDoctors{doctors: map[string]*repo.Doctor{}}
	svc := testService(store)

	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doctor/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if store.gets != 0 {
		t.Fatalf("store gets = %d, want 0", store.gets)
	}
}

func TestMiddlewarePassesDoctorID(t *testing.T) {
	store := &stubDoctors{doctors: map[string]*repo.Doctor{}}
	svc := testService(store)
	token, err := SignToken("test-secret", "d42", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	var gotID string
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = DoctorID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/doctor/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotID != "d42" {
		t.Fatalf("doctor id = %q, want d42", gotID)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := SignToken("test-secret", "d1", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := ParseToken("test-secret", token); err == nil {
		t.Fatal("expected expiry error")
	}
}
