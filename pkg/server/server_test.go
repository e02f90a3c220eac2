package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"rampwatch/pkg/config"
	"rampwatch/pkg/models"
	"rampwatch/pkg/watcher"
)

func testRecipient() models.Recipient {
	return models.Recipient{
		Name:    "Alice",
		Address: "5Recipient",
		IBAN:    "CH2100000000000000000",
	}
}

func newTestServer() *Server {
	units := config.UnitsConfig{
		Unit:          config.DefaultUnit,
		Decimals:      config.DefaultDecimals,
		BaselineUnits: config.DefaultBaselineUnits,
	}
	w := watcher.NewWatcher(nil, "5Recipient", units, zerolog.Nop())
	return NewServer(w, testRecipient(), zerolog.Nop())
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer()

	req, _ := http.NewRequest("GET", "/api/status", nil)
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Contains(t, resp, "recipient")
	assert.Contains(t, resp, "donations")
	assert.Contains(t, resp, "record")
	assert.Equal(t, false, resp["registered"])
}

func TestHandleWS(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.mux)
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	assert.NoError(t, err)
	defer func() { _ = ws.Close() }()

	// Read initial state
	var msg map[string]interface{}
	err = ws.ReadJSON(&msg)
	assert.NoError(t, err)
	assert.Equal(t, "initial", msg["type"])
}

func TestBroadcast(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.mux)
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	assert.NoError(t, err)
	defer func() { _ = ws.Close() }()

	var initial map[string]interface{}
	assert.NoError(t, ws.ReadJSON(&initial))

	s.broadcast(watcher.Event{
		Type: watcher.EventDonationsUpdated,
		Data: watcher.DonationsData{Display: "5 pEURO"},
	})

	var msg map[string]interface{}
	assert.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, string(watcher.EventDonationsUpdated), msg["Type"])
}
