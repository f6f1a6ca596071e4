package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"telemed-admin/internal/analytics"
	"telemed-admin/internal/botengine"
	"telemed-admin/internal/repo"
	"telemed-admin/internal/triage"
)

const defaultPageSize = 50

func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func (s *Server) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.deps.Dashboard.Overview(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// seriesEntities maps the console's metric names onto analytics sources.
var seriesEntities = map[string]string{
	"users":       "users",
	"sessions":    "sessions",
	"messages":    "messages",
	"escalations": "escalations",
}

func (s *Server) handleStatsSeries(w http.ResponseWriter, r *http.Request) {
	entity, ok := seriesEntities[r.URL.Query().Get("metric")]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown metric")
		return
	}
	timeframe := analytics.Timeframe(r.URL.Query().Get("timeframe"))
	if !timeframe.Valid() {
		writeError(w, http.StatusBadRequest, "unknown timeframe")
		return
	}
	series, err := s.deps.Dashboard.Series(r.Context(), entity, timeframe)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metric": entity, "timeframe": timeframe, "series": series})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if phone := strings.TrimSpace(r.URL.Query().Get("phone")); phone != "" {
		user, err := s.deps.Store.GetUserByPhone(r.Context(), phone)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": []repo.User{*user}})
		return
	}

	limit, offset := pagination(r)
	users, err := s.deps.Store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	kyc, err := s.deps.Store.GetKYCByUser(r.Context(), user.ID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "kyc": kyc})
}

func (s *Server) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Store.ListSessionsByUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.deps.Store.ListMessagesBySession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := s.deps.Chat.Send(r.Context(), r.PathValue("id"), body.Content)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if msg != nil {
			// Delivery failed after the row was stored; surface the failed
			// message so the console can show it.
			writeJSON(w, http.StatusBadGateway, map[string]any{"message": msg, "error": "delivery failed"})
			return
		}
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

func (s *Server) handleListEscalations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Triage.List(r.Context()))
}

func (s *Server) handleEscalationStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status     string `json:"status"`
		ResolvedBy string `json:"resolved_by"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	esc, err := s.deps.Triage.UpdateStatus(r.Context(), r.PathValue("id"), body.Status, body.ResolvedBy)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if errors.Is(err, triage.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalation": esc})
}

func (s *Server) handleListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := s.deps.Store.ListDoctors(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctors": doctors})
}

func (s *Server) handleApproveDoctor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Store.ApproveDoctor(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	doctor, err := s.deps.Store.GetDoctor(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor": doctor})
}

func (s *Server) handleRegisterDoctor(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name            string  `json:"name"`
		PhoneNumber     string  `json:"phone_number"`
		Specialty       *string `json:"specialty"`
		ExperienceYears int     `json:"experience_years"`
		ConsultationFee int64   `json:"consultation_fee"`
		Location        *string `json:"location"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.PhoneNumber) == "" {
		writeError(w, http.StatusBadRequest, "name and phone_number are required")
		return
	}

	doctor, err := s.deps.Store.InsertDoctor(r.Context(), repo.Doctor{
		Name:               body.Name,
		PhoneNumber:        body.PhoneNumber,
		Specialty:          body.Specialty,
		ExperienceYears:    body.ExperienceYears,
		ConsultationFee:    body.ConsultationFee,
		Location:           body.Location,
		RegistrationStatus: repo.RegistrationPending,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"doctor": doctor})
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	bookings, err := s.deps.Store.ListBookings(r.Context(), limit, offset)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *Server) handleBookingPaid(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// An empty currency keeps the booking's stored one (ETB by default).
	booking, err := s.deps.Store.MarkBookingPaid(r.Context(), r.PathValue("id"), body.Reference, body.Amount, body.Currency)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	doctor, err := s.deps.Store.GetDoctor(r.Context(), booking.DoctorID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	user, err := s.deps.Store.GetUser(r.Context(), booking.UserID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if s.deps.BotEngine != nil {
		err = s.deps.BotEngine.CompletePayment(r.Context(), botengine.PaymentCompletion{
			AppointmentID: booking.AppointmentID,
			UserPhone:     user.PhoneNumber,
			DoctorName:    doctor.Name,
			Amount:        booking.PaymentAmount,
			Currency:      booking.PaymentCurrency,
			Reference:     body.Reference,
		})
		if err != nil {
			s.logger.Error("payment completion delivery failed", "booking_id", booking.ID, "error", err)
		}
	}

	notified := false
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyBooking(r.Context(), booking.ID); err != nil {
			s.logger.Error("booking notification failed", "booking_id", booking.ID, "error", err)
		} else {
			now := time.Now()
			if err := s.deps.Store.SetBookingNotified(r.Context(), booking.ID, now); err != nil {
				s.logger.Error("failed recording booking notification", "booking_id", booking.ID, "error", err)
			} else {
				booking.DoctorNotified = true
				booking.NotifiedAt = &now
				notified = true
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"booking": booking, "doctor_notified": notified})
}

func (s *Server) handleListPharmacies(w http.ResponseWriter, r *http.Request) {
	pharmacies, err := s.deps.Store.ListPharmacies(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pharmacies": pharmacies})
}

func (s *Server) handleCreatePharmacy(w http.ResponseWriter, r *http.Request) {
	var body repo.Pharmacy
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if body.Status == "" {
		body.Status = "active"
	}

	pharmacy, err := s.deps.Store.InsertPharmacy(r.Context(), body)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"pharmacy": pharmacy})
}

func (s *Server) handleUpdatePharmacy(w http.ResponseWriter, r *http.Request) {
	var body repo.Pharmacy
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.ID = r.PathValue("id")

	if err := s.deps.Store.UpdatePharmacy(r.Context(), body); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pharmacy": body})
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.deps.Store.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": booking})
}

// sessionEndStatuses are the terminal states an admin may move a session to.
var sessionEndStatuses = map[string]bool{
	"ended":          true,
	"ended_by_user":  true,
	"ended_by_admin": true,
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Status == "" {
		body.Status = "ended_by_admin"
	}
	if !sessionEndStatuses[body.Status] {
		writeError(w, http.StatusBadRequest, "invalid session status")
		return
	}

	id := r.PathValue("id")
	if err := s.deps.Store.EndSession(r.Context(), id, body.Status, time.Now()); err != nil {
		s.writeStoreError(w, err)
		return
	}
	session, err := s.deps.Store.GetSession(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (s *Server) handleCreateEscalation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    string  `json:"user_id"`
		SessionID *string `json:"session_id"`
		Reason    string  `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.UserID) == "" || strings.TrimSpace(body.Reason) == "" {
		writeError(w, http.StatusBadRequest, "user_id and reason are required")
		return
	}

	esc, err := s.deps.Store.InsertEscalation(r.Context(), repo.Escalation{
		UserID:    body.UserID,
		SessionID: body.SessionID,
		Reason:    body.Reason,
		Status:    repo.EscalationPending,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"escalation": esc})
}

func (s *Server) handleSetDoctorAvailability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Status) == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	id := r.PathValue("id")
	if err := s.deps.Store.SetDoctorAvailability(r.Context(), id, body.Status); err != nil {
		s.writeStoreError(w, err)
		return
	}
	doctor, err := s.deps.Store.GetDoctor(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor": doctor})
}

func (s *Server) handleDoctorAvailability(w http.ResponseWriter, r *http.Request) {
	slots, err := s.deps.Store.ListDoctorAvailability(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"availability": slots})
}

func (s *Server) handleUpsertKYC(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     *string `json:"name"`
		Gender   *string `json:"gender"`
		AgeRange *string `json:"age_range"`
		Location *string `json:"location"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.deps.Store.UpsertKYC(r.Context(), repo.KYCRecord{
		UserID:   r.PathValue("id"),
		Name:     body.Name,
		Gender:   body.Gender,
		AgeRange: body.AgeRange,
		Location: body.Location,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"kyc": rec})
}
