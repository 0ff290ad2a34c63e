package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"checkin-lock/internal/dispatch"
	"checkin-lock/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockInbox struct {
	payloads []string
	full     bool
}

func (m *mockInbox) Offer(p []byte) bool {
	if m.full {
		return false
	}
	m.payloads = append(m.payloads, string(p))
	m.full = true
	return true
}

func (m *mockInbox) State() dispatch.State { return dispatch.StateDeviceLoop }

type mockIdentity struct {
	args    []string
	pending bool
}

func (m *mockIdentity) Live() model.DeviceIdentity {
	return model.DeviceIdentity{DeviceType: 105, LockListenType: 106}
}

func (m *mockIdentity) Pending() (model.PendingIdentityChange, bool) {
	if !m.pending {
		return model.PendingIdentityChange{}, false
	}
	return model.PendingIdentityChange{
		Identity:    model.DeviceIdentity{DeviceType: 7, LockListenType: 106},
		RequestedAt: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
	}, true
}

func (m *mockIdentity) SetDeviceType(_ context.Context, arg string) int {
	m.args = append(m.args, "type:"+arg)
	if arg == "-1" {
		return 105
	}
	return 0
}

func (m *mockIdentity) SetLockListenType(_ context.Context, arg string) int {
	m.args = append(m.args, "listen:"+arg)
	if arg == "" {
		return 1
	}
	return 0
}

type mockTripper struct {
	stations []model.StationConfig
}

func (m *mockTripper) Trip(s model.StationConfig) { m.stations = append(m.stations, s) }

type mockStation struct{}

func (mockStation) Current() model.StationConfig {
	return model.StationConfig{IsValid: true, DeviceType: 105, DeviceName: "woodshop"}
}

const testToken = "open-sesame"

func newTestRouter() (http.Handler, *mockInbox, *mockIdentity, *mockTripper) {
	core, _ := observer.New(zapcore.InfoLevel)
	inbox := &mockInbox{}
	id := &mockIdentity{}
	trip := &mockTripper{}
	h := New(zap.New(core), inbox, id, trip, mockStation{}, testToken)
	r := chi.NewRouter()
	h.Register(r)
	return r, inbox, id, trip
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string) (int, string) {
	t.Helper()
	return doAuth(t, h, method, path, contentType, body, "Bearer "+testToken)
}

func doAuth(t *testing.T, h http.Handler, method, path, contentType, body, auth string) (int, string) {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	if auth != "" {
		r.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	all, err := io.ReadAll(w.Body)
	assert.NoError(t, err)
	return w.Code, strings.Trim(string(all), "\n")
}

func TestCheckin(t *testing.T) {
	h, inbox, _, _ := newTestRouter()

	tests := []struct {
		name         string
		body         string
		expectCode   int
		expectedBody string
	}{
		{"accepted", `{"secret":1,"deviceType":2}`, http.StatusAccepted, `{"status":"Ok"}`},
		{"overrun", `{"secret":1,"deviceType":3}`, http.StatusTooManyRequests, `{"error":"checkin already pending"}`},
		{"empty", ``, http.StatusBadRequest, `{"error":"invalid request payload"}`},
		{"oversize", strings.Repeat("x", model.MaxPayloadBytes+1), http.StatusBadRequest, `{"error":"invalid request payload"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := do(t, h, http.MethodPost, "/checkin", "application/json", tc.body)
			assert.Equal(t, tc.expectCode, code)
			assert.Equal(t, tc.expectedBody, body)
		})
	}
	assert.Equal(t, []string{`{"secret":1,"deviceType":2}`}, inbox.payloads)
}

func TestFunctions(t *testing.T) {
	h, _, id, trip := newTestRouter()
	form := "application/x-www-form-urlencoded"

	tests := []struct {
		name         string
		path         string
		contentType  string
		body         string
		expectedBody string
	}{
		{"read back device type", "/functions/setDeviceType", "text/plain", "-1", `{"return_value":105}`},
		{"set device type from form", "/functions/setDeviceType", form, url.Values{"arg": {"0"}}.Encode(), `{"return_value":0}`},
		{"blank listen type", "/functions/setLockListenType", "", "", `{"return_value":1}`},
		{"trip lock ignores arg", "/functions/tripLock", "text/plain", "anything", `{"return_value":0}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := do(t, h, http.MethodPost, tc.path, tc.contentType, tc.body)
			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, tc.expectedBody, body)
		})
	}

	assert.Equal(t, []string{"type:-1", "type:0", "listen:"}, id.args)
	if assert.Len(t, trip.stations, 1) {
		assert.Equal(t, "woodshop", trip.stations[0].DeviceName)
	}
}

func TestFunctions_RequireToken(t *testing.T) {
	tests := []struct {
		name string
		auth string
	}{
		{"missing", ""},
		{"wrong token", "Bearer nope"},
		{"wrong scheme", "Basic " + testToken},
		{"empty bearer", "Bearer "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _, id, trip := newTestRouter()
			for _, path := range []string{"/functions/tripLock", "/functions/setDeviceType", "/functions/setLockListenType"} {
				code, body := doAuth(t, h, http.MethodPost, path, "text/plain", "7", tc.auth)
				assert.Equal(t, http.StatusUnauthorized, code, path)
				assert.Equal(t, `{"error":"unauthorized"}`, body, path)
			}
			assert.Empty(t, trip.stations)
			assert.Empty(t, id.args)
		})
	}
}

func TestPublicRoutesNeedNoToken(t *testing.T) {
	h, _, _, _ := newTestRouter()

	code, _ := doAuth(t, h, http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = doAuth(t, h, http.MethodPost, "/checkin", "application/json", `{"secret":1,"deviceType":2}`, "")
	assert.Equal(t, http.StatusAccepted, code)
}

func TestVariables(t *testing.T) {
	h, _, id, _ := newTestRouter()
	id.pending = true

	code, body := do(t, h, http.MethodGet, "/variables", "", "")

	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{
		"deviceType": 105,
		"lockListenType": 106,
		"pending": {"identity": {"deviceType": 7, "lockListenType": 106}, "requestedAt": "2026-01-02T12:00:00Z"},
		"state": "device_loop",
		"station": {"isValid": true, "deviceType": 105, "deviceName": "woodshop", "displayName": "", "logEventName": "", "photoDisplayName": "", "okKeywords": ""}
	}`, body)
}

func TestHealthz(t *testing.T) {
	h, _, _, _ := newTestRouter()

	code, body := do(t, h, http.MethodGet, "/healthz", "", "")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)
}
