package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale/pkg/config"
	"presale/pkg/models"
	"presale/pkg/watcher"
)

type fixedSession struct{ state models.ConnectionState }

func (f fixedSession) State() models.ConnectionState { return f.state }

type fixedBusy bool

func (b fixedBusy) Busy() bool { return bool(b) }

func testConfig() *config.SaleConfig {
	d := 1.0
	return &config.SaleConfig{
		ChainID:       56,
		PaymentToken:  config.TokenConfig{Symbol: "USDT"},
		SaleToken:     config.TokenConfig{Symbol: "GOBG"},
		SaleStartTime: 1_700_000_000,
		Phases: []config.PhaseDef{
			{Name: "Seed", TokensPerUnit: 20, UnitsPerToken: 0.05, DurationDays: &d},
			{Name: "Public", TokensPerUnit: 10, UnitsPerToken: 0.1, DurationDays: &d},
		},
	}
}

func newTestServer() *Server {
	w := watcher.NewWatcher(testConfig(), nil, nil, nil)
	session := fixedSession{models.ConnectionState{Status: models.StatusConnected, Account: "0xabc", ChainID: 56, CorrectNetwork: true}}
	s := NewServer(testConfig(), w, session, fixedBusy(true), nil)
	s.now = func() time.Time { return time.Unix(1_700_000_000+3600, 0) }
	return s
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer()

	req, _ := http.NewRequest("GET", "/api/status", nil)
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp Status
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "in_phase", resp.Phase.Status)
	assert.Equal(t, "Seed • 1 USDT = 20 GOBG", resp.Phase.Active)
	require.Len(t, resp.Phase.Rows, 2)
	assert.Equal(t, "X.XXXX", resp.Phase.Rows[1].TokensPerUnit)
	assert.Equal(t, models.StatusConnected, resp.Connection.Status)
	assert.True(t, resp.Busy)
	assert.Nil(t, resp.Stats)
	assert.Nil(t, resp.Position)
}

func TestHandleStatus_MethodNotAllowed(t *testing.T) {
	s := newTestServer()
	req, _ := http.NewRequest("POST", "/api/status", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandleWS(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.mux)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.listenToWatcher(ctx, s.watcher.Subscribe())

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	// Read initial state
	var msg map[string]interface{}
	err = ws.ReadJSON(&msg)
	require.NoError(t, err)
	assert.Equal(t, "initial", msg["type"])

	s.watcher.AppendLog(models.LogEntry{Level: "info", Message: "Approve tx: 0x1"})
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev map[string]interface{}
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, string(watcher.EventLog), ev["type"])
	data, ok := ev["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Approve tx: 0x1", data["message"])
}
