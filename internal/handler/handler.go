// Package handler contains the HTTP surface of the lock controller: checkin
// intake, the operator functions and the exposed variables.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"checkin-lock/internal/dispatch"
	"checkin-lock/internal/model"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxArgBytes = 64

// Inbox buffers inbound checkins.
type Inbox interface {
	Offer(payload []byte) bool
	State() dispatch.State
}

// Identity exposes the identity operations.
type Identity interface {
	Live() model.DeviceIdentity
	Pending() (model.PendingIdentityChange, bool)
	SetDeviceType(ctx context.Context, arg string) int
	SetLockListenType(ctx context.Context, arg string) int
}

// Tripper opens the lock on operator request.
type Tripper interface {
	Trip(station model.StationConfig)
}

// Station exposes the current station config.
type Station interface {
	Current() model.StationConfig
}

// Handler wraps HTTP handlers with logger and collaborators.
type Handler struct {
	log      *zap.Logger
	inbox    Inbox
	identity Identity
	lock     Tripper
	station  Station
	token    string
}

// New creates a new Handler instance. token is the bearer token required on
// the remote functions.
func New(log *zap.Logger, inbox Inbox, identity Identity, lock Tripper, station Station, token string) *Handler {
	return &Handler{log: log, inbox: inbox, identity: identity, lock: lock, station: station, token: token}
}

// Register mounts all routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/variables", h.Variables)
	r.Post("/checkin", h.Checkin)
	r.Route("/functions", func(r chi.Router) {
		r.Use(h.requireToken)
		r.Post("/setDeviceType", h.SetDeviceType)
		r.Post("/setLockListenType", h.SetLockListenType)
		r.Post("/tripLock", h.TripLock)
	})
}

// requireToken rejects requests without the configured bearer token.
func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			h.log.Warn("unauthorized function call", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Healthz is a simple health check endpoint.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Checkin buffers a checkin delivered by webhook. Validation happens later in
// the dispatch loop, exactly as for checkins arriving over NATS.
func (h *Handler) Checkin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, model.MaxPayloadBytes+1))
	if err != nil || len(body) == 0 || len(body) > model.MaxPayloadBytes {
		h.log.Warn("rejected checkin body", zap.Int("bytes", len(body)), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request payload",
		})
		return
	}

	if !h.inbox.Offer(body) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "checkin already pending",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "Ok",
	})
}

// SetDeviceType is the remote "set device type" function.
func (h *Handler) SetDeviceType(w http.ResponseWriter, r *http.Request) {
	rv := h.identity.SetDeviceType(r.Context(), readArg(w, r))
	writeReturn(w, rv)
}

// SetLockListenType is the remote "set lock listen type" function.
func (h *Handler) SetLockListenType(w http.ResponseWriter, r *http.Request) {
	rv := h.identity.SetLockListenType(r.Context(), readArg(w, r))
	writeReturn(w, rv)
}

// TripLock opens the lock regardless of its argument.
func (h *Handler) TripLock(w http.ResponseWriter, r *http.Request) {
	_ = readArg(w, r)
	h.lock.Trip(h.station.Current())
	writeReturn(w, 0)
}

type variables struct {
	DeviceType     model.DeviceType             `json:"deviceType"`
	LockListenType model.DeviceType             `json:"lockListenType"`
	Pending        *model.PendingIdentityChange `json:"pending"`
	State          string                       `json:"state"`
	Station        model.StationConfig          `json:"station"`
}

// Variables reports the live identity, any pending change, the dispatch
// state and the station config.
func (h *Handler) Variables(w http.ResponseWriter, _ *http.Request) {
	live := h.identity.Live()
	v := variables{
		DeviceType:     live.DeviceType,
		LockListenType: live.LockListenType,
		State:          h.inbox.State().String(),
		Station:        h.station.Current(),
	}
	if p, ok := h.identity.Pending(); ok {
		v.Pending = &p
	}
	writeJSON(w, http.StatusOK, v)
}

// readArg takes the function argument from the "arg" form field or, failing
// that, from the raw body.
func readArg(w http.ResponseWriter, r *http.Request) string {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxArgBytes)
		if err := r.ParseForm(); err == nil {
			return r.PostFormValue("arg")
		}
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r.Body, maxArgBytes))
	return string(b)
}

func writeReturn(w http.ResponseWriter, rv int) {
	writeJSON(w, http.StatusOK, map[string]int{"return_value": rv})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
