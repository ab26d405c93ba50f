// Package server runs the simulation tick loop and exposes the world over HTTP
// and WebSocket.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"voxelflight/internal/camera"
	"voxelflight/internal/config"
	"voxelflight/internal/player"
	"voxelflight/internal/world"
)

const (
	contentTypeCBOR     = "application/cbor"
	defaultPreviewScale = 4
)

type Server struct {
	cfg     *config.Config
	world   *world.World
	logger  *zap.Logger
	metrics *Metrics
	ticker  *tickDriver
	httpSrv *http.Server
}

func New(cfg *config.Config, w *world.World, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := &Metrics{}
	return &Server{
		cfg:     cfg,
		world:   w,
		logger:  logger,
		metrics: metrics,
		ticker:  newTickDriver(w, cfg.Server.TickRate.Duration(), metrics),
	}
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the HTTP routes without starting the tick loop.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/world", s.handleWorld)
	mux.HandleFunc("/preview.png", s.handlePreview)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run starts the tick loop and serves HTTP on the configured address until
// ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	tickCtx, stopTicks := context.WithCancel(ctx)
	defer func() {
		stopTicks()
		s.ticker.Wait()
	}()
	s.ticker.Start(tickCtx)

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", listener.Addr().String()))
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		timeout := s.cfg.Server.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
		s.logger.Info("HTTP server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// stateMessage is the player state as seen by render clients. It is served by
// /state and streamed over the socket.
type stateMessage struct {
	Type     string          `json:"type"`
	Tick     int64           `json:"tick"`
	Position mgl64.Vec3      `json:"position"`
	Rotation player.Rotation `json:"rotation"`
	Strafe   player.Strafe   `json:"strafe"`
	Sight    mgl64.Vec3      `json:"sight"`
	Velocity mgl64.Vec3      `json:"velocity"`
	View     mgl64.Mat4      `json:"view"`
	Label    string          `json:"label"`
}

func (s *Server) state() stateMessage {
	snap := s.world.Player().Snapshot()
	return stateMessage{
		Type:     "state",
		Tick:     s.metrics.Ticks(),
		Position: snap.Position,
		Rotation: snap.Rotation,
		Strafe:   snap.Strafe,
		Sight:    player.SightVector(snap.Rotation),
		Velocity: player.Velocity(snap.Rotation, snap.Strafe),
		View:     camera.View(snap, s.cfg.Player.SightInverted),
		Label:    camera.Label(snap, s.metrics.TickRate()),
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.state())
}

type worldMessage struct {
	Fingerprint string         `json:"fingerprint"`
	Count       int            `json:"count"`
	Counts      map[string]int `json:"counts"`
	Blocks      []world.Entry  `json:"blocks"`
}

func (s *Server) handleWorld(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	blocks := s.world.Blocks()
	counts := make(map[string]int)
	for block, n := range blocks.Counts() {
		counts[block.String()] = n
	}
	msg := worldMessage{
		Fingerprint: fmt.Sprintf("%016x", blocks.Fingerprint()),
		Count:       blocks.Len(),
		Counts:      counts,
		Blocks:      blocks.Entries(),
	}

	if wantsCBOR(r) {
		writeCBOR(w, msg)
		return
	}
	writeJSON(w, msg)
}

// handlePreview serves a top-down PNG of the terrain. The optional scale
// parameter sets the pixels per block.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	scale := defaultPreviewScale
	if raw := r.URL.Query().Get("scale"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > world.MaxPreviewScale {
			http.Error(w, fmt.Sprintf("scale must be an integer between 1 and %d", world.MaxPreviewScale), http.StatusBadRequest)
			return
		}
		scale = parsed
	}

	var buf bytes.Buffer
	if err := world.WritePreview(&buf, s.world.Blocks(), scale); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.metrics.Snapshot())
}

func wantsCBOR(r *http.Request) bool {
	if r.URL.Query().Get("format") == "cbor" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), contentTypeCBOR)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeCBOR(w http.ResponseWriter, data any) {
	payload, err := cbor.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeCBOR)
	_, _ = w.Write(payload)
}
