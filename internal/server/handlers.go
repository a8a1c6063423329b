// Package server is an in-memory development backend speaking the payment
// service's JSON contract. It exists for local runs and integration tests.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/harrylevesque/qrpay/internal/auth"
	"github.com/harrylevesque/qrpay/internal/wire"
)

const maxRequestBytes = 64 << 10

type ctxKey struct{}

// Handler serves the payment service endpoints from a Store.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler creates a Handler over store.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{store: store, logger: logger}
}

type loginRequest struct {
	PhoneNumber string
	PIN         string
}

type registerRequest struct {
	PhoneNumber string
	UpiID       string
	Name        string
	PIN         string
}

type initiateRequest struct {
	QRData         string
	Amount         float64
	IdempotencyKey string
}

type executeRequest struct {
	SessionID string
	PIN       string
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.store.Login(req.PhoneNumber, req.PIN)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("user logged in", "user_id", res.User.ID)
	h.respond(w, http.StatusOK, res)
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.store.Register(req.PhoneNumber, req.UpiID, req.Name, req.PIN)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("user registered", "user_id", res.User.ID)
	h.respond(w, http.StatusOK, res)
}

// InitiatePayment handles POST /api/payment/initiate.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.store.Initiate(userID(r), req.QRData, req.Amount, req.IdempotencyKey)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("payment initiated", "session_id", res.SessionID, "amount", res.Amount)
	h.respond(w, http.StatusOK, res)
}

// ExecutePayment handles POST /api/payment/execute.
func (h *Handler) ExecutePayment(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.store.Execute(userID(r), req.SessionID, req.PIN)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("payment executed", "session_id", req.SessionID, "status", res.Status)
	h.respond(w, http.StatusOK, res)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RequireToken rejects requests without a live bearer token and stores the
// caller's user id in the request context.
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.store.Authenticate(auth.BearerToken(r))
		if err != nil {
			h.respondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		h.respondJSONError(w, http.StatusBadRequest, "could not read body")
		return false
	}
	if err := wire.Unmarshal(body, v); err != nil {
		h.respondJSONError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, v any) {
	data, err := wire.Marshal(v)
	if err != nil {
		h.logger.Error("encode response", "error", err)
		status, data = http.StatusInternalServerError, []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("write response", "error", err)
	}
}

func (h *Handler) respondJSONError(w http.ResponseWriter, status int, msg string) {
	h.respond(w, status, map[string]string{"error": msg})
}

// respondError maps store errors onto status codes.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidPIN), errors.Is(err, ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrPINFormat),
		errors.Is(err, ErrMissingFields), errors.Is(err, ErrInsufficientBalance):
		status = http.StatusBadRequest
	default:
		h.logger.Error("request failed", "error", err)
		h.respondJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.respondJSONError(w, status, err.Error())
}
