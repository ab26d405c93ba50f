package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"voxelflight/internal/input"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Render clients are served from arbitrary local origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundMessage is one client event. Text frames carry JSON, binary frames
// carry CBOR with the same field names.
type inboundMessage struct {
	Type    string  `json:"type"`
	Key     string  `json:"key,omitempty"`
	Action  string  `json:"action,omitempty"`
	DX      float64 `json:"dx,omitempty"`
	DY      float64 `json:"dy,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

type welcomeMessage struct {
	Type        string `json:"type"`
	Session     string `json:"session"`
	Fingerprint string `json:"fingerprint"`
}

var (
	errUnknownAction   = errors.New("key action must be press or release")
	errNonFiniteMotion = errors.New("mouse motion must be finite")
)

// session is one WebSocket client driving the shared avatar.
type session struct {
	id         string
	conn       *websocket.Conn
	controller *input.Controller
	limiter    *rate.Limiter
	binary     bool
	srv        *Server
	logger     *zap.Logger
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	sess := &session{
		id:   id,
		conn: conn,
		controller: input.NewController(s.world.Player(), input.Options{
			SightSpeed: s.cfg.Player.SightSpeed,
			Captured:   true,
		}),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.Input.EventsPerSecond), s.cfg.Input.Burst),
		binary:  r.URL.Query().Get("format") == "cbor",
		srv:     s,
		logger:  s.logger.With(zap.String("session", id)),
	}

	s.metrics.Connected()
	defer s.metrics.Disconnected()
	sess.logger.Info("client connected", zap.String("remote", r.RemoteAddr), zap.Bool("cbor", sess.binary))

	ctx, cancel := context.WithCancel(r.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.writePump(ctx)
	}()

	sess.readPump()
	cancel()
	<-done

	released := len(sess.controller.Held())
	sess.controller.Close()
	_ = conn.Close()
	sess.logger.Info("client disconnected", zap.Int("released_keys", released))
}

func (c *session) readPump() {
	c.conn.SetReadLimit(c.srv.cfg.Input.ReadLimitBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("read failed", zap.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			c.srv.metrics.IncRateLimited()
			continue
		}

		msg, err := decodeInbound(kind, payload)
		if err == nil {
			err = c.apply(msg)
		}
		if err != nil {
			c.srv.metrics.IncMalformed()
			c.logger.Debug("dropping message", zap.Error(err))
			continue
		}
		c.srv.metrics.IncAccepted()
	}
}

func decodeInbound(kind int, payload []byte) (inboundMessage, error) {
	var msg inboundMessage
	switch kind {
	case websocket.TextMessage:
		if err := json.Unmarshal(payload, &msg); err != nil {
			return msg, fmt.Errorf("decode json: %w", err)
		}
	case websocket.BinaryMessage:
		if err := cbor.Unmarshal(payload, &msg); err != nil {
			return msg, fmt.Errorf("decode cbor: %w", err)
		}
	default:
		return msg, fmt.Errorf("unsupported frame type %d", kind)
	}
	return msg, nil
}

func (c *session) apply(msg inboundMessage) error {
	switch msg.Type {
	case "key":
		key, err := input.ParseKey(msg.Key)
		if err != nil {
			return err
		}
		switch msg.Action {
		case "press":
			c.controller.Press(key)
		case "release":
			c.controller.Release(key)
		default:
			return errUnknownAction
		}
	case "mouse":
		if math.IsNaN(msg.DX) || math.IsNaN(msg.DY) || math.IsInf(msg.DX, 0) || math.IsInf(msg.DY, 0) {
			return errNonFiniteMotion
		}
		c.controller.MouseMotion(msg.DX, msg.DY)
	case "capture":
		if msg.Enabled == nil {
			return errors.New("capture message needs enabled")
		}
		c.controller.SetCapture(*msg.Enabled)
	case "blur":
		c.controller.Blur()
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

// writePump owns every write on the connection. It greets the client, then
// streams state until ctx ends or a write fails.
func (c *session) writePump(ctx context.Context) {
	defer c.conn.Close()

	stream := time.NewTicker(c.srv.cfg.Server.StateStreamRate.Duration())
	defer stream.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	welcome := welcomeMessage{
		Type:        "welcome",
		Session:     c.id,
		Fingerprint: fmt.Sprintf("%016x", c.srv.world.Blocks().Fingerprint()),
	}
	if err := c.send(welcome); err != nil {
		c.logger.Debug("welcome failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-stream.C:
			if err := c.send(c.srv.state()); err != nil {
				c.logger.Debug("state write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *session) send(msg any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if c.binary {
		payload, err := cbor.Marshal(msg)
		if err != nil {
			return err
		}
		return c.conn.WriteMessage(websocket.BinaryMessage, payload)
	}
	return c.conn.WriteJSON(msg)
}
