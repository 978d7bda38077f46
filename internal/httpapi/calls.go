package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/callkit/internal/config"
)

type brandResponse struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	AgentID          string             `json:"agent_id"`
	PhoneEnabled     bool               `json:"phone_enabled"`
	MaxFieldAttempts int                `json:"max_field_attempts"`
	Fields           []config.FieldSpec `json:"fields"`
}

type registerCallRequest struct {
	Fields map[string]string `json:"fields"`
}

type registerCallResponse struct {
	CallID      string `json:"call_id"`
	AccessToken string `json:"access_token"`
	SampleRate  int    `json:"sample_rate"`
	RecordID    string `json:"record_id"`
}

type registerPhoneCallRequest struct {
	ToNumber string            `json:"to_number"`
	Fields   map[string]string `json:"fields"`
}

type registerPhoneCallResponse struct {
	CallID     string `json:"call_id"`
	CallStatus string `json:"call_status"`
	FromNumber string `json:"from_number"`
	ToNumber   string `json:"to_number"`
	RecordID   string `json:"record_id"`
}

func (s *Server) handleListBrands(w http.ResponseWriter, _ *http.Request) {
	brands := s.flow.Brands()
	out := make([]brandResponse, 0, len(brands))
	for _, b := range brands {
		fields := b.Fields
		if fields == nil {
			fields = []config.FieldSpec{}
		}
		out = append(out, brandResponse{
			ID:               b.ID,
			Name:             b.Name,
			AgentID:          b.AgentID,
			PhoneEnabled:     b.FromNumber != "",
			MaxFieldAttempts: b.MaxFieldAttempts,
			Fields:           fields,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"brands": out})
}

func (s *Server) handleRegisterCall(w http.ResponseWriter, r *http.Request) {
	var req registerCallRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	reg, err := s.flow.Register(r.Context(), chi.URLParam(r, "brand"), req.Fields)
	if err != nil {
		s.respondFlowError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, registerCallResponse{
		CallID:      reg.Handle.CallID,
		AccessToken: reg.Handle.AccessToken,
		SampleRate:  reg.Handle.SampleRate,
		RecordID:    reg.Record.ID,
	})
}

func (s *Server) handleRegisterPhoneCall(w http.ResponseWriter, r *http.Request) {
	var req registerPhoneCallRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	reg, err := s.flow.RegisterPhone(r.Context(), chi.URLParam(r, "brand"), req.ToNumber, req.Fields)
	if err != nil {
		s.respondFlowError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, registerPhoneCallResponse{
		CallID:     reg.Call.CallID,
		CallStatus: reg.Call.CallStatus,
		FromNumber: reg.Call.FromNumber,
		ToNumber:   reg.Call.ToNumber,
		RecordID:   reg.Record.ID,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	entries, err := s.flow.History(r.Context(), chi.URLParam(r, "brand"), limit)
	if err != nil {
		s.respondFlowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"calls": entries})
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	call, err := s.flow.Call(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFlowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, call)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	v, err := s.flow.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFlowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}
