package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpsync/protocol"
)

func newAdminServer(t *testing.T) (*Server, *fakeTransport, *httptest.Server) {
	t.Helper()
	s, ft := newTestServer(testConfig())
	mux := http.NewServeMux()
	s.Routes(mux)
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return s, ft, hs
}

func TestAdminConfigGet(t *testing.T) {
	_, _, hs := newAdminServer(t)

	resp, err := http.Get(hs.URL + "/admin/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(50), body["tickPeriodMs"])
	assert.Equal(t, int64(5000), body["livenessTimeoutMs"])
	assert.Equal(t, int64(32), body["maxPlayers"])
}

func TestAdminConfigPost(t *testing.T) {
	s, _, hs := newAdminServer(t)

	resp, err := http.Post(hs.URL+"/admin/config", "application/json",
		strings.NewReader(`{"tickPeriodMs": 75, "maxPlayers": 8}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	s.Step(t0)
	assert.Equal(t, 75*time.Millisecond, s.Config().TickPeriod)
	assert.Equal(t, 8, s.Config().MaxPlayers)
	assert.Equal(t, 5*time.Second, s.Config().LivenessTimeout)
}

func TestAdminConfigRejectsBadInput(t *testing.T) {
	_, _, hs := newAdminServer(t)

	tooMany := fmt.Sprintf(`{"maxPlayers": %d}`, protocol.MaxSnapshotPlayers+1)
	for _, payload := range []string{`not json`, `{"tickPeriodMs": 0}`, `{"maxPlayers": -1}`, tooMany} {
		resp, err := http.Post(hs.URL+"/admin/config", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
	}

	req, err := http.NewRequest(http.MethodDelete, hs.URL+"/admin/config", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsAndPlayersEndpoints(t *testing.T) {
	s, ft, hs := newAdminServer(t)
	ft.deliver(t, addrA, protocol.NewJoin(t0))
	stepTick(t, s, t0.Add(50*time.Millisecond))

	resp, err := http.Get(hs.URL + "/metrics")
	require.NoError(t, err)
	var m struct {
		Metrics map[string]float64 `json:"metrics"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	resp.Body.Close()
	assert.Equal(t, float64(1), m.Metrics["tick_count"])
	assert.Equal(t, float64(1), m.Metrics["connections"])

	resp, err = http.Get(hs.URL + "/players")
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
	resp.Body.Close()
	assert.Equal(t, uint64(1), f.Tick)
	require.Len(t, f.Players, 1)
	assert.Equal(t, s.conns[addrA].state.ID, f.Players[0].ID)
}

func TestSpectatorReceivesFrames(t *testing.T) {
	s, ft, hs := newAdminServer(t)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return s.Spectators().Len() == 1 }, time.Second, 5*time.Millisecond)

	ft.deliver(t, addrA, protocol.NewJoin(t0))
	stepTick(t, s, t0.Add(50*time.Millisecond))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    string                 `json:"type"`
		Tick    uint64                 `json:"tick"`
		Players []protocol.PlayerState `json:"players"`
	}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "frame", msg.Type)
	assert.Equal(t, uint64(1), msg.Tick)
	assert.Len(t, msg.Players, 1)

	ws.Close()
	require.Eventually(t, func() bool { return s.Spectators().Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	_, _, hs := newAdminServer(t)
	resp, err := http.Get(hs.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
