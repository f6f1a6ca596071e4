package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"telemed-admin/internal/auth"
	"telemed-admin/internal/repo"
)

type credentialsBody struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

func (s *Server) handleCheckPhone(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.PhoneNumber) == "" {
		writeError(w, http.StatusBadRequest, "phone_number is required")
		return
	}

	status, err := s.deps.Auth.CheckPhone(r.Context(), body.PhoneNumber)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no doctor registered with this phone number")
			return
		}
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleSetupPassword(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.deps.Auth.SetupPassword(r.Context(), body.PhoneNumber, body.Password)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.deps.Auth.Login(r.Context(), body.PhoneNumber, body.Password)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDoctorMe(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := auth.DoctorID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	doctor, err := s.deps.Store.GetDoctor(r.Context(), doctorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor": doctor})
}

func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrNotApproved):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrPasswordSet):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "no doctor registered with this phone number")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
