package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"telemed-admin/internal/auth"
	"telemed-admin/internal/botengine"
	"telemed-admin/internal/chat"
	"telemed-admin/internal/dashboard"
	"telemed-admin/internal/repo"
	"telemed-admin/internal/triage"
)

// fakeStore satisfies repo.Store; unimplemented methods panic through the
// embedded nil interface, so each test only fills in what its route touches.
type fakeStore struct {
	repo.Store

	users       map[string]repo.User
	sessions    map[string]repo.Session
	escalations map[string]repo.Escalation
	doctors     map[string]repo.Doctor
	bookings    map[string]repo.Booking

	insertedMessages []repo.Message
	deliveryUpdates  map[string]string
	notifiedBookings []string

	availability map[string][]repo.DoctorAvailability
	kycRecords   map[string]repo.KYCRecord
	escalated    []repo.Escalation
	eventTimes   []time.Time
	eventTimeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:           map[string]repo.User{},
		sessions:        map[string]repo.Session{},
		escalations:     map[string]repo.Escalation{},
		doctors:         map[string]repo.Doctor{},
		bookings:        map[string]repo.Booking{},
		deliveryUpdates: map[string]string{},
		availability:    map[string][]repo.DoctorAvailability{},
		kycRecords:      map[string]repo.KYCRecord{},
	}
}

func (f *fakeStore) ListUsers(ctx context.Context, limit, offset int) ([]repo.User, error) {
	out := make([]repo.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*repo.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) GetKYCByUser(ctx context.Context, userID string) (*repo.KYCRecord, error) {
	return nil, repo.ErrNotFound
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (*repo.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &sess, nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, msg repo.Message) (*repo.Message, error) {
	msg.ID = "msg-1"
	msg.CreatedAt = time.Now()
	f.insertedMessages = append(f.insertedMessages, msg)
	return &msg, nil
}

func (f *fakeStore) UpdateMessageDelivery(ctx context.Context, id, status string) error {
	f.deliveryUpdates[id] = status
	return nil
}

func (f *fakeStore) ListEscalations(ctx context.Context) ([]repo.Escalation, error) {
	out := make([]repo.Escalation, 0, len(f.escalations))
	for _, e := range f.escalations {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) GetEscalation(ctx context.Context, id string) (*repo.Escalation, error) {
	e, ok := f.escalations[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &e, nil
}

func (f *fakeStore) UpdateEscalationStatus(ctx context.Context, id, status string, resolvedBy *string, resolvedAt *time.Time) error {
	e, ok := f.escalations[id]
	if !ok {
		return repo.ErrNotFound
	}
	e.Status = status
	e.ResolvedBy = resolvedBy
	e.ResolvedAt = resolvedAt
	f.escalations[id] = e
	return nil
}

func (f *fakeStore) GetDoctor(ctx context.Context, id string) (*repo.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &d, nil
}

func (f *fakeStore) GetDoctorByPhone(ctx context.Context, phone string) (*repo.Doctor, error) {
	for _, d := range f.doctors {
		if d.PhoneNumber == phone {
			return &d, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeStore) SetDoctorPassword(ctx context.Context, id, hash string) error {
	d, ok := f.doctors[id]
	if !ok {
		return repo.ErrNotFound
	}
	d.PasswordHash = &hash
	f.doctors[id] = d
	return nil
}

func (f *fakeStore) MarkBookingPaid(ctx context.Context, id, reference string, amount int64, currency string) (*repo.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	b.PaymentStatus = "paid"
	b.PaymentReference = &reference
	b.PaymentAmount = amount
	if currency != "" {
		b.PaymentCurrency = currency
	}
	f.bookings[id] = b
	return &b, nil
}

func (f *fakeStore) GetBooking(ctx context.Context, id string) (*repo.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &b, nil
}

func (f *fakeStore) EndSession(ctx context.Context, id, status string, endedAt time.Time) error {
	sess, ok := f.sessions[id]
	if !ok {
		return repo.ErrNotFound
	}
	sess.Status = status
	sess.EndedAt = &endedAt
	f.sessions[id] = sess
	return nil
}

func (f *fakeStore) InsertEscalation(ctx context.Context, esc repo.Escalation) (*repo.Escalation, error) {
	esc.ID = "esc-new"
	esc.CreatedAt = time.Now()
	f.escalated = append(f.escalated, esc)
	f.escalations[esc.ID] = esc
	return &esc, nil
}

func (f *fakeStore) SetDoctorAvailability(ctx context.Context, id, status string) error {
	d, ok := f.doctors[id]
	if !ok {
		return repo.ErrNotFound
	}
	d.AvailabilityStatus = status
	f.doctors[id] = d
	return nil
}

func (f *fakeStore) ListDoctorAvailability(ctx context.Context, doctorID string) ([]repo.DoctorAvailability, error) {
	return f.availability[doctorID], nil
}

func (f *fakeStore) UpsertKYC(ctx context.Context, rec repo.KYCRecord) (*repo.KYCRecord, error) {
	if _, ok := f.users[rec.UserID]; !ok {
		return nil, repo.ErrNotFound
	}
	rec.ID = "kyc-1"
	rec.CompletedAt = time.Now()
	f.kycRecords[rec.UserID] = rec
	u := f.users[rec.UserID]
	u.KYCCompleted = true
	f.users[rec.UserID] = u
	return &rec, nil
}

func (f *fakeStore) ListEventTimes(ctx context.Context, entity string, from, to time.Time) ([]time.Time, error) {
	if f.eventTimeErr != nil {
		return nil, f.eventTimeErr
	}
	return f.eventTimes, nil
}

func (f *fakeStore) SetBookingNotified(ctx context.Context, id string, at time.Time) error {
	f.notifiedBookings = append(f.notifiedBookings, id)
	return nil
}

type fakeDeliverer struct {
	fail  bool
	calls int
}

func (d *fakeDeliverer) SendMessage(ctx context.Context, msg botengine.OutboundMessage) error {
	d.calls++
	if d.fail {
		return context.DeadlineExceeded
	}
	return nil
}

type fakePayments struct {
	completions []botengine.PaymentCompletion
	notified    []string
}

func (p *fakePayments) CompletePayment(ctx context.Context, req botengine.PaymentCompletion) error {
	p.completions = append(p.completions, req)
	return nil
}

func (p *fakePayments) NotifyBooking(ctx context.Context, bookingID string) error {
	p.notified = append(p.notified, bookingID)
	return nil
}

func newTestServer(t *testing.T, store *fakeStore, deliverer *fakeDeliverer, payments *fakePayments) *Server {
	t.Helper()
	logger := slog.Default()
	deps := Dependencies{
		Store:     store,
		Dashboard: dashboard.New(store, nil, dashboard.Config{PollInterval: time.Minute}, logger, nil),
		Triage:    triage.New(store, logger, nil),
		Auth:      auth.New(store, auth.Config{JWTSecret: "test-secret"}, logger),
		Chat:      chat.New(store, deliverer, logger),
	}
	if payments != nil {
		deps.BotEngine = payments
		deps.Notifier = payments
	}
	return New(":0", logger, nil, deps, "")
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &fakeDeliverer{}, nil)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGetUserNotFound(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &fakeDeliverer{}, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/users/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSendMessageConfirmed(t *testing.T) {
	store := newFakeStore()
	store.sessions["sess-1"] = repo.Session{ID: "sess-1", UserID: "user-1"}
	store.users["user-1"] = repo.User{ID: "user-1", PhoneNumber: "+2348000000001"}
	deliverer := &fakeDeliverer{}
	srv := newTestServer(t, store, deliverer, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/sessions/sess-1/messages", `{"content":"hello"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(store.insertedMessages) != 1 || store.insertedMessages[0].DeliveryStatus != repo.DeliveryPending {
		t.Fatalf("message not stored pending before delivery: %+v", store.insertedMessages)
	}
	if store.deliveryUpdates["msg-1"] != repo.DeliveryConfirmed {
		t.Fatalf("delivery status = %q, want confirmed", store.deliveryUpdates["msg-1"])
	}
}

func TestSendMessageDeliveryFailureSurfaced(t *testing.T) {
	store := newFakeStore()
	store.sessions["sess-1"] = repo.Session{ID: "sess-1", UserID: "user-1"}
	store.users["user-1"] = repo.User{ID: "user-1", PhoneNumber: "+2348000000001"}
	srv := newTestServer(t, store, &fakeDeliverer{fail: true}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/sessions/sess-1/messages", `{"content":"hello"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if store.deliveryUpdates["msg-1"] != repo.DeliveryFailed {
		t.Fatalf("delivery status = %q, want failed", store.deliveryUpdates["msg-1"])
	}

	var body struct {
		Message repo.Message `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Message.ID != "msg-1" {
		t.Fatal("failed message row not surfaced in response")
	}
}

func TestEscalationInvalidTransitionConflict(t *testing.T) {
	store := newFakeStore()
	store.escalations["esc-1"] = repo.Escalation{ID: "esc-1", Status: repo.EscalationResolved, CreatedAt: time.Now()}
	srv := newTestServer(t, store, &fakeDeliverer{}, nil)

	// Prime live mode.
	if rec := doRequest(t, srv, http.MethodGet, "/api/escalations", ""); rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	rec := doRequest(t, srv, http.MethodPut, "/api/escalations/esc-1/status", `{"status":"in_progress"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestBookingPaidNotifiesDoctor(t *testing.T) {
	store := newFakeStore()
	store.bookings["bk-1"] = repo.Booking{ID: "bk-1", DoctorID: "doc-1", UserID: "user-1", AppointmentID: "apt-1"}
	store.doctors["doc-1"] = repo.Doctor{ID: "doc-1", Name: "Dr. Ada", PhoneNumber: "+2348000000002"}
	store.users["user-1"] = repo.User{ID: "user-1", PhoneNumber: "+2348000000001"}
	payments := &fakePayments{}
	srv := newTestServer(t, store, &fakeDeliverer{}, payments)

	rec := doRequest(t, srv, http.MethodPost, "/api/bookings/bk-1/paid", `{"reference":"ref-9","amount":5000,"currency":"USD"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	if len(payments.completions) != 1 {
		t.Fatalf("payment completions = %d, want 1", len(payments.completions))
	}
	completion := payments.completions[0]
	if completion.AppointmentID != "apt-1" || completion.UserPhone != "+2348000000001" || completion.DoctorName != "Dr. Ada" {
		t.Fatalf("unexpected completion payload: %+v", completion)
	}
	if len(payments.notified) != 1 || payments.notified[0] != "bk-1" {
		t.Fatalf("notifier calls = %v, want [bk-1]", payments.notified)
	}
	if len(store.notifiedBookings) != 1 {
		t.Fatal("booking notification not recorded in store")
	}
}

func TestDoctorMeRequiresToken(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &fakeDeliverer{}, nil)
	rec := doRequest(t, srv, http.MethodGet, "/doctor/me", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCheckPhoneUnknownDoctor(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &fakeDeliverer{}, nil)
	rec := doRequest(t, srv, http.MethodPost, "/auth/doctor/check-phone", `{"phone_number":"+2348999999999"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDoctorLoginRoundtrip(t *testing.T) {
	store := newFakeStore()
	store.doctors["doc-1"] = repo.Doctor{
		ID:                 "doc-1",
		Name:               "Dr. Ada",
		PhoneNumber:        "+2348000000002",
		RegistrationStatus: repo.RegistrationApproved,
	}
	srv := newTestServer(t, store, &fakeDeliverer{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/auth/doctor/setup-password", `{"phone_number":"+2348000000002","password":"supersecret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("setup status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/auth/doctor/login", `{"phone_number":"+2348000000002","password":"supersecret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}

	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.Token == "" {
		t.Fatal("login returned empty token")
	}

	req := httptest.NewRequest(http.MethodGet, "/doctor/me", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	meRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(meRec, req)
	if meRec.Code != http.StatusOK {
		t.Fatalf("me status = %d: %s", meRec.Code, meRec.Body.String())
	}
}

func TestStatsSeriesErrorMapping(t *testing.T) {
	store := newFakeStore()
	store.eventTimeErr = errors.New("connection refused")
	srv := newTestServer(t, store, &fakeDeliverer{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/stats/series?metric=users&timeframe=day", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("store failure status = %d, want 500", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/stats/series?metric=users&timeframe=decade", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad timeframe status = %d, want 400", rec.Code)
	}
}

func TestBookingPaidKeepsStoredCurrency(t *testing.T) {
	store := newFakeStore()
	store.bookings["bk-1"] = repo.Booking{ID: "bk-1", DoctorID: "doc-1", UserID: "user-1", AppointmentID: "apt-1", PaymentCurrency: "ETB"}
	store.doctors["doc-1"] = repo.Doctor{ID: "doc-1", Name: "Dr. Ada"}
	store.users["user-1"] = repo.User{ID: "user-1", PhoneNumber: "+251911000001"}
	srv := newTestServer(t, store, &fakeDeliverer{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/bookings/bk-1/paid", `{"reference":"ref-1","amount":500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := store.bookings["bk-1"].PaymentCurrency; got != "ETB" {
		t.Fatalf("currency = %q, want ETB preserved", got)
	}
}

func TestGetBooking(t *testing.T) {
	store := newFakeStore()
	store.bookings["bk-1"] = repo.Booking{ID: "bk-1", DoctorID: "doc-1"}
	srv := newTestServer(t, store, &fakeDeliverer{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/bookings/bk-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/api/bookings/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing booking status = %d, want 404", rec.Code)
	}
}

func TestEndSession(t *testing.T) {
	store := newFakeStore()
	store.sessions["sess-1"] = repo.Session{ID: "sess-1", UserID: "user-1", Status: "active"}
	srv := newTestServer(t, store, &fakeDeliverer{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/sessions/sess-1/end", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	sess := store.sessions["sess-1"]
	if sess.Status != "ended_by_admin" || sess.EndedAt == nil {
		t.Fatalf("session not ended: %+v", sess)
	}

	if rec := doRequest(t, srv, http.MethodPost, "/api/sessions/sess-1/end", `{"status":"archived"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status code = %d, want 400", rec.Code)
	}
}

func TestCreateEscalation(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, &fakeDeliverer{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/escalations", `{"user_id":"user-1","reason":"needs human review"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.escalated) != 1 || store.escalated[0].Status != repo.EscalationPending {
		t.Fatalf("escalation not stored pending: %+v", store.escalated)
	}

	if rec := doRequest(t, srv, http.MethodPost, "/api/escalations", `{"user_id":"user-1"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing reason status = %d, want 400", rec.Code)
	}
}

func TestDoctorAvailabilityRoutes(t *testing.T) {
	store := newFakeStore()
	store.doctors["doc-1"] = repo.Doctor{ID: "doc-1", Name: "Dr. Ada", AvailabilityStatus: "offline"}
	store.availability["doc-1"] = []repo.DoctorAvailability{
		{ID: "av-1", DoctorID: "doc-1", DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00"},
	}
	srv := newTestServer(t, store, &fakeDeliverer{}, nil)

	rec := doRequest(t, srv, http.MethodPut, "/api/doctors/doc-1/availability", `{"status":"online"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set status = %d: %s", rec.Code, rec.Body.String())
	}
	if store.doctors["doc-1"].AvailabilityStatus != "online" {
		t.Fatal("availability status not updated")
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/doctors/doc-1/availability", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var body struct {
		Availability []repo.DoctorAvailability `json:"availability"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Availability) != 1 || body.Availability[0].ID != "av-1" {
		t.Fatalf("unexpected slots: %+v", body.Availability)
	}
}

func TestUpsertUserKYC(t *testing.T) {
	store := newFakeStore()
	store.users["user-1"] = repo.User{ID: "user-1", PhoneNumber: "+251911000001"}
	srv := newTestServer(t, store, &fakeDeliverer{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/users/user-1/kyc", `{"name":"Abebe","gender":"male","age_range":"25-34","location":"Addis Ababa"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !store.users["user-1"].KYCCompleted {
		t.Fatal("user not marked kyc complete")
	}

	if rec := doRequest(t, srv, http.MethodPost, "/api/users/missing/kyc", `{"name":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing user status = %d, want 404", rec.Code)
	}
}
