package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ent0n29/callkit/internal/callflow"
	"github.com/ent0n29/callkit/internal/calllog"
	"github.com/ent0n29/callkit/internal/logging"
	"github.com/ent0n29/callkit/internal/observability"
	"github.com/ent0n29/callkit/internal/platform"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	flow    *callflow.Flow
	store   Pinger
	metrics *observability.Metrics
	log     *logrus.Entry
}

func New(flow *callflow.Flow, store Pinger, metrics *observability.Metrics) *Server {
	return &Server{
		flow:    flow,
		store:   store,
		metrics: metrics,
		log:     logging.NewLogger("httpapi"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/brands", s.handleListBrands)
		r.Post("/brands/{brand}/calls", s.handleRegisterCall)
		r.Post("/brands/{brand}/phone-calls", s.handleRegisterPhoneCall)
		r.Get("/brands/{brand}/calls", s.handleHistory)
		r.Get("/calls/{id}", s.handleGetCall)
		r.Post("/calls/{id}/verify", s.handleVerify)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"brands": len(s.flow.Brands()),
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"request_id": middleware.GetReqID(r.Context()),
			"elapsed_ms": time.Since(started).Milliseconds(),
		}).Debug("request served")
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondFlowError maps domain failures to HTTP statuses.
func (s *Server) respondFlowError(w http.ResponseWriter, err error) {
	var regErr *platform.RegistrationError
	switch {
	case errors.Is(err, callflow.ErrUnknownBrand):
		respondError(w, http.StatusNotFound, "unknown_brand", err.Error())
	case errors.Is(err, callflow.ErrInvalidParameters):
		respondError(w, http.StatusBadRequest, "invalid_parameters", err.Error())
	case errors.Is(err, calllog.ErrNotFound):
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
	case errors.As(err, &regErr):
		respondError(w, http.StatusBadGateway, "registration_failed", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		s.log.WithError(err).Error("request failed")
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
