// README: Handler tests against a live dispatch with an in-memory ledger.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httptransport "nuber/internal/http"
	"nuber/internal/infra"
	"nuber/internal/modules/dispatch"
	"nuber/internal/modules/fleet"
	"nuber/internal/modules/ledger"
)

type stubTokenVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func makeVerifier(uid, role string) *stubTokenVerifier {
	claims := map[string]interface{}{}
	if role != "" {
		claims["role"] = role
	}
	return &stubTokenVerifier{token: &infra.FirebaseToken{UID: uid, Claims: claims}}
}

type fixture struct {
	dispatch *dispatch.Dispatch
	results  *ledger.Memory
	router   *gin.Engine
}

func newFixture(t *testing.T, verifier infra.TokenVerifier) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	results := ledger.NewMemory(0)
	d, err := dispatch.New(ctx, dispatch.Options{
		Regions: map[string]int{"north": 2, "south": 1},
		Sinks:   []dispatch.ResultSink{results},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Shutdown()
		cancel()
		d.Close()
	})
	router := httptransport.NewRouter(httptransport.ServerDeps{
		Dispatch: d,
		Results:  results,
		Verifier: verifier,
	})
	return &fixture{dispatch: d, results: results, router: router}
}

func (f *fixture) do(method, path string, body any, auth string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestAddDriver(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/drivers", map[string]any{"name": "d1", "max_delay_ms": 10}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotEmpty(t, body["driver_id"])
	assert.Equal(t, float64(1), body["idle_drivers"])
	assert.Equal(t, 1, f.dispatch.IdleDrivers())
}

func TestAddDriverValidation(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		name string
		body any
	}{
		{"missing name", map[string]any{"max_delay_ms": 10}},
		{"negative delay", map[string]any{"name": "d1", "max_delay_ms": -1}},
		{"not json", "nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/drivers", tc.body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Equal(t, 0, f.dispatch.IdleDrivers())
}

func TestBookPassengerUnknownRegion(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/api/regions/atlantis/bookings", map[string]any{"name": "p1"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookPassengerAfterShutdown(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/api/dispatch/shutdown", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/regions/north/bookings", map[string]any{"name": "p1"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	regions := decode(t, f.do(http.MethodGet, "/api/regions", nil, ""))["regions"].([]any)
	require.Len(t, regions, 2)
	for _, r := range regions {
		assert.Equal(t, true, r.(map[string]any)["shutdown"])
	}
}

func TestBookingLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/regions/north/bookings", map[string]any{"name": "alice"}, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	booked := decode(t, w)
	assert.Equal(t, "north", booked["region"])
	id := int64(booked["booking_id"].(float64))
	path := "/api/bookings/" + strconv.FormatInt(id, 10)

	// No drivers yet, so the booking sits in awaiting_driver.
	require.Eventually(t, func() bool {
		return peek(f.do(http.MethodGet, path, nil, ""))["status"] == string(dispatch.StatusAwaitingDriver)
	}, time.Second, 5*time.Millisecond)
	status := decode(t, f.do(http.MethodGet, path, nil, ""))
	assert.Nil(t, status["driver"])
	assert.Equal(t, "alice", status["passenger"])

	awaiting := decode(t, f.do(http.MethodGet, "/api/dispatch/awaiting", nil, ""))
	assert.Equal(t, float64(1), awaiting["awaiting"])

	require.NoError(t, f.dispatch.AddDriver(context.Background(), fleet.NewDriver("d1", 0)))

	require.Eventually(t, func() bool {
		w := f.do(http.MethodGet, path, nil, "")
		return w.Code == http.StatusOK && peek(w)["result"] != nil
	}, 2*time.Second, 5*time.Millisecond)
	done := decode(t, f.do(http.MethodGet, path, nil, ""))
	assert.Equal(t, string(dispatch.StatusCompleted), done["status"])
	assert.Equal(t, "d1", done["result"].(map[string]any)["driver_name"])
}

func TestGetFailedBooking(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/regions/south/bookings", map[string]any{"name": "bob"}, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := int64(decode(t, w)["booking_id"].(float64))

	// Closing the idle pool fails the booking still waiting for a driver.
	f.dispatch.Close()
	require.NoError(t, f.dispatch.Wait(context.Background()))

	w = f.do(http.MethodGet, "/api/bookings/"+strconv.FormatInt(id, 10), nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, string(dispatch.StatusFailed), body["status"])
	result := body["result"].(map[string]any)
	assert.Contains(t, result["error"], dispatch.ErrPoolClosed.Error())
	assert.Equal(t, "", result["driver_name"])
}

func TestGetBookingErrors(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/bookings/abc", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/bookings/0", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/bookings/99", nil, "").Code)
}

func TestPrivilegedRoutesRequireDispatcherRole(t *testing.T) {
	driver := map[string]any{"name": "d1"}

	f := newFixture(t, makeVerifier("p1", "passenger"))
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/drivers", driver, "Bearer t").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/dispatch/shutdown", nil, "Bearer t").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/regions", nil, "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/regions", nil, "Bearer t").Code)
	assert.False(t, f.dispatch.Regions()[0].Shutdown)

	f = newFixture(t, makeVerifier("ops", "dispatcher"))
	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/drivers", driver, "Bearer t").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/dispatch/shutdown", nil, "Bearer t").Code)

	f = newFixture(t, &stubTokenVerifier{err: errors.New("expired")})
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/drivers", driver, "Bearer t").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", nil, "").Code)
}

// peek is decode for polling conditions, which run off the test goroutine.
func peek(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}
