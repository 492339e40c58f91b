package signals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KAsare1/Kodefx-capital/cmd/utils"
	"github.com/KAsare1/Kodefx-capital/service/ledger"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("routes-test-secret")

type testServer struct {
	router *mux.Router
	clock  *ledger.FixedClock
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := &ledger.FixedClock{T: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc := ledger.NewService(ledger.NewMemoryStore(), ledger.WithClock(clock))

	router := mux.NewRouter()
	NewSignalHandler(svc, utils.NewAuthMiddleware(secret)).RegisterRoutes(router.PathPrefix("/api/v1").Subrouter())

	token, err := utils.SignToken(secret, 3, jwt.RegisteredClaims{})
	require.NoError(t, err)
	return &testServer{router: router, clock: clock, token: token}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func setupBody() map[string]interface{} {
	return map[string]interface{}{
		"startingCapital": 100,
		"numberOfSignals": 0,
		"totalSignals":    2,
		"tradeSchedule":   "fresh",
		"reminder":        "15m",
		"reminderSettings": []map[string]interface{}{
			{"id": 1, "startTime": "14:00", "endTime": "14:30", "isEnabled": true},
			{"id": 2, "startTime": "19:00", "endTime": "19:30", "isEnabled": false},
		},
	}
}

func TestRoutes_RequireAuth(t *testing.T) {
	s := newTestServer(t)
	s.token = "not-a-token"

	code, env := s.do(t, http.MethodGet, "/signal/daily", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)
}

func TestRoutes_ScheduleLifecycle(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/signal/schedule", setupBody())
	require.Equal(t, http.StatusCreated, code, env.Error)
	assert.True(t, env.Success)

	var created struct {
		UserSignal struct {
			StartingCapital float64 `json:"startingCapital"`
			ReminderPolicy  string  `json:"reminderPolicy"`
		} `json:"userSignal"`
		Signals []struct {
			Name string `json:"name"`
		} `json:"signals"`
		CalculatedCapital float64 `json:"calculatedCapital"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, 100.0, created.UserSignal.StartingCapital)
	assert.Equal(t, "15m", created.UserSignal.ReminderPolicy)
	require.Len(t, created.Signals, 2)
	assert.Equal(t, "Signal 1", created.Signals[0].Name)
	assert.Equal(t, 100.0, created.CalculatedCapital)

	code, env = s.do(t, http.MethodPost, "/signal/schedule", setupBody())
	assert.Equal(t, http.StatusConflict, code)
	assert.NotEmpty(t, env.Error)

	code, _ = s.do(t, http.MethodGet, "/signal/schedule", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/signal/slots", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodDelete, "/signal/schedule", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodDelete, "/signal/schedule", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRoutes_CreateScheduleValidation(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/signal/schedule", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)

	body := setupBody()
	delete(body, "startingCapital")
	code, _ = s.do(t, http.MethodPost, "/signal/schedule", body)
	assert.Equal(t, http.StatusBadRequest, code)

	body = setupBody()
	body["reminderSettings"] = []map[string]interface{}{{"startTime": "99:00", "endTime": "10:00"}}
	code, _ = s.do(t, http.MethodPost, "/signal/schedule", body)
	assert.Equal(t, http.StatusBadRequest, code)

	body = setupBody()
	body["numberOfSignals"] = 200000000
	code, _ = s.do(t, http.MethodPost, "/signal/schedule", body)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRoutes_DailyFlow(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/signal/daily", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/signal/schedule", setupBody())
	require.Equal(t, http.StatusCreated, code)

	code, env := s.do(t, http.MethodGet, "/signal/daily", nil)
	require.Equal(t, http.StatusCreated, code)
	var daily ledger.DailyResult
	require.NoError(t, json.Unmarshal(env.Data, &daily))
	require.Len(t, daily.Entries, 2)

	code, _ = s.do(t, http.MethodGet, "/signal/daily", nil)
	assert.Equal(t, http.StatusOK, code)

	first := daily.Entries[0].ID
	code, _ = s.do(t, http.MethodPut, fmt.Sprintf("/signal/daily/%d", first), map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, code, "received is required")

	code, env = s.do(t, http.MethodPut, fmt.Sprintf("/signal/daily/%d", first), map[string]bool{"received": true})
	require.Equal(t, http.StatusOK, code, env.Error)
	var resolved struct {
		NewBalance           float64 `json:"newBalance"`
		NextEntryUpdated     bool    `json:"nextEntryUpdated"`
		TransactionBreakdown struct {
			FinalCapital string `json:"finalCapital"`
		} `json:"transactionBreakdown"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resolved))
	assert.InDelta(t, 100.88, resolved.NewBalance, 1e-9)
	assert.True(t, resolved.NextEntryUpdated)
	assert.Equal(t, "100.88", resolved.TransactionBreakdown.FinalCapital)

	code, _ = s.do(t, http.MethodPut, fmt.Sprintf("/signal/daily/%d", first), map[string]bool{"received": false})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(t, http.MethodGet, fmt.Sprintf("/signal/daily/%d", daily.Entries[1].ID), nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/signal/daily/999", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPut, "/signal/deposit", map[string]float64{"capital": -1})
	assert.Equal(t, http.StatusBadRequest, code)
	code, env = s.do(t, http.MethodPut, "/signal/deposit", map[string]float64{"capital": 50})
	require.Equal(t, http.StatusOK, code)
	var deposit ledger.DepositResult
	require.NoError(t, json.Unmarshal(env.Data, &deposit))
	assert.InDelta(t, 150.88, deposit.NewBalance, 1e-9)

	s.clock.Advance(24 * time.Hour)
	code, _ = s.do(t, http.MethodGet, "/signal/daily", nil)
	assert.Equal(t, http.StatusCreated, code)

	code, env = s.do(t, http.MethodGet, "/signal/grouped", nil)
	require.Equal(t, http.StatusOK, code)
	var groups []ledger.DayGroup
	require.NoError(t, json.Unmarshal(env.Data, &groups))
	require.Len(t, groups, 2)
	assert.Equal(t, "2026-03-10", groups[0].Day)

	code, env = s.do(t, http.MethodDelete, "/signal/account", nil)
	require.Equal(t, http.StatusOK, code)
	var purged ledger.PurgeResult
	require.NoError(t, json.Unmarshal(env.Data, &purged))
	assert.EqualValues(t, 4, purged.Entries)
}

func TestRoutes_Calculators(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/signal/simulate?capital=100&count=2", nil)
	require.Equal(t, http.StatusOK, code)
	var sim simulationResponse
	require.NoError(t, json.Unmarshal(env.Data, &sim))
	assert.InDelta(t, 100*1.0088*1.0088, sim.FinalCapital, 1e-9)
	require.Len(t, sim.Breakdown, 2)
	assert.Equal(t, "101.77", sim.Breakdown[1].FinalCapital)

	code, env = s.do(t, http.MethodGet, "/signal/reconcile?recentCapital=115.44&elapsed=1&total=1", nil)
	require.Equal(t, http.StatusOK, code)
	var rec reconciliationResponse
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "114.43", rec.Breakdown[0].Capital)

	tests := []string{
		"/signal/simulate?count=2",
		"/signal/simulate?capital=abc",
		"/signal/simulate?capital=100&count=-1",
		"/signal/simulate?capital=-5",
		"/signal/reconcile?recentCapital=100&elapsed=x",
		"/signal/simulate?capital=100&count=9223372036854775807",
		"/signal/reconcile?recentCapital=100&elapsed=200000000&total=1",
	}
	for _, path := range tests {
		code, _ := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, code, path)
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(ledger.ErrValidation))
	assert.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("x: %w", ledger.ErrNotFound)))
	assert.Equal(t, http.StatusConflict, StatusFor(ledger.ErrAlreadyExists))
	assert.Equal(t, http.StatusConflict, StatusFor(ledger.ErrConflict))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fmt.Errorf("boom")))
}

func TestSlotLabel(t *testing.T) {
	assert.Equal(t, "Signal 3", slotLabel(float64(3)))
	assert.Equal(t, "Signal a", slotLabel("a"))
	assert.Equal(t, "", slotLabel(nil))
	assert.Equal(t, "", slotLabel(""))
}
