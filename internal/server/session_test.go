package server

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"voxelflight/internal/config"
	"voxelflight/internal/player"
)

const (
	waitFor   = 2 * time.Second
	pollEvery = 5 * time.Millisecond
)

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSessionWelcomesAndStreamsState(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, "")

	var welcome welcomeMessage
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, "welcome", welcome.Type)
	_, err := uuid.Parse(welcome.Session)
	require.NoError(t, err)
	require.Len(t, welcome.Fingerprint, 16)

	var state stateMessage
	require.NoError(t, conn.ReadJSON(&state))
	require.Equal(t, "state", state.Type)
	require.Equal(t, 1.0, state.Position.X())
}

func TestSessionDrivesPlayer(t *testing.T) {
	srv, w := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, "")
	p := w.Player()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "key", "key": "w", "action": "press"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "key", "key": "w", "action": "press"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "key", "key": "space", "action": "press"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "mouse", "dx": 10, "dy": -4}))
	require.Eventually(t, func() bool {
		return srv.Metrics().Snapshot()["inputs_accepted"] == int64(4)
	}, waitFor, pollEvery)

	require.Equal(t, player.Strafe{Forward: 1, Vertical: 1}, p.Snapshot().Strafe, "auto-repeat is ignored")
	p.Advance(0)
	require.InDelta(t, 1.5, p.Rotation().Horizontal, 1e-9)
	require.InDelta(t, -0.6, p.Rotation().Vertical, 1e-9)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "capture", "enabled": false}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "mouse", "dx": 10, "dy": 0}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "key", "key": "space", "action": "release"}))
	require.Eventually(t, func() bool {
		return srv.Metrics().Snapshot()["inputs_accepted"] == int64(7)
	}, waitFor, pollEvery)
	p.Advance(0)
	require.InDelta(t, 1.5, p.Rotation().Horizontal, 1e-9, "mouse ignored without capture")
	require.Equal(t, player.Strafe{Forward: 1}, p.Snapshot().Strafe)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return p.Snapshot().Strafe == player.Strafe{} && srv.Metrics().Snapshot()["connections"] == int64(0)
	}, waitFor, pollEvery, "held keys are released on disconnect")
}

func TestSessionBlurReleasesKeys(t *testing.T) {
	srv, w := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, "")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "key", "key": "a", "action": "press"}))
	require.Eventually(t, func() bool {
		return w.Player().Snapshot().Strafe.Side == -1
	}, waitFor, pollEvery)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "blur"}))
	require.Eventually(t, func() bool {
		return w.Player().Snapshot().Strafe == player.Strafe{}
	}, waitFor, pollEvery)
}

func TestSessionCountsMalformedMessages(t *testing.T) {
	srv, w := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, "")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "key", "key": "q", "action": "press"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "key", "key": "w", "action": "hold"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "capture"}))

	require.Eventually(t, func() bool {
		return srv.Metrics().Snapshot()["malformed"] == int64(5)
	}, waitFor, pollEvery)
	require.Equal(t, int64(0), srv.Metrics().Snapshot()["inputs_accepted"])
	require.Equal(t, player.Strafe{}, w.Player().Snapshot().Strafe)
}

func TestSessionRateLimitsInput(t *testing.T) {
	srv, w := newTestServer(t, func(cfg *config.Config) {
		cfg.Input.EventsPerSecond = 0.001
		cfg.Input.Burst = 1
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, "")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "key", "key": "d", "action": "press"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "key", "key": "d", "action": "release"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "key", "key": "w", "action": "press"}))

	require.Eventually(t, func() bool {
		return srv.Metrics().Snapshot()["rate_limited"] == int64(2)
	}, waitFor, pollEvery)
	require.Equal(t, int64(1), srv.Metrics().Snapshot()["inputs_accepted"])
	require.Equal(t, player.Strafe{Side: 1}, w.Player().Snapshot().Strafe)
}

func TestSessionSpeaksCBOR(t *testing.T) {
	srv, w := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, "?format=cbor")

	kind, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	var welcome welcomeMessage
	require.NoError(t, cbor.Unmarshal(payload, &welcome))
	require.Equal(t, "welcome", welcome.Type)

	press, err := cbor.Marshal(inboundMessage{Type: "key", Key: "space", Action: "press"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, press))
	require.Eventually(t, func() bool {
		return w.Player().Snapshot().Strafe.Vertical == 1
	}, waitFor, pollEvery)

	kind, payload, err = conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	var state stateMessage
	require.NoError(t, cbor.Unmarshal(payload, &state))
	require.Equal(t, "state", state.Type)
}

func TestSessionLogsLifecycle(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := config.Default()
	srv := New(cfg, newTestWorld(t, mgl64.Vec3{}), zap.New(core))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, "")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "key", "key": "s", "action": "press"}))
	require.Eventually(t, func() bool {
		return srv.Metrics().Snapshot()["inputs_accepted"] == int64(1)
	}, waitFor, pollEvery)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return logs.FilterMessage("client disconnected").Len() == 1
	}, waitFor, pollEvery)
	entry := logs.FilterMessage("client disconnected").All()[0]
	require.Equal(t, int64(1), entry.ContextMap()["released_keys"])
	require.Equal(t, 1, logs.FilterMessage("client connected").Len())
}

func TestSessionRejectsNonFiniteMotion(t *testing.T) {
	srv, w := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, "?format=cbor")
	for _, msg := range []inboundMessage{
		{Type: "mouse", DX: math.NaN(), DY: math.Inf(1)},
		{Type: "mouse", DX: 1, DY: math.Inf(-1)},
		{Type: "mouse", DX: 20, DY: 10},
	} {
		frame, err := cbor.Marshal(msg)
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	}
	require.Eventually(t, func() bool {
		snap := srv.Metrics().Snapshot()
		return snap["malformed"] == int64(2) && snap["inputs_accepted"] == int64(1)
	}, waitFor, pollEvery)

	p := w.Player()
	p.AddForwardStrafe()
	p.Advance(1.0 / 60)
	require.InDelta(t, 3.0, p.Rotation().Horizontal, 1e-9)
	require.InDelta(t, 1.5, p.Rotation().Vertical, 1e-9)
	for i, c := range p.Position() {
		require.False(t, math.IsNaN(c), "component %d", i)
	}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/state", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
