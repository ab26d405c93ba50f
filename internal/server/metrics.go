package server

import (
	"sync/atomic"
	"time"
)

// Metrics records runtime counters for the tick loop and the input sockets.
// All methods are safe for concurrent use.
type Metrics struct {
	ticks          atomic.Int64
	totalTickNs    atomic.Int64
	lastDeltaNs    atomic.Int64
	inputsAccepted atomic.Int64
	rateLimited    atomic.Int64
	malformed      atomic.Int64
	connections    atomic.Int64
	connectedTotal atomic.Int64
}

// AddTick records one simulation step: the wall time between ticks and the
// time spent advancing the world.
func (m *Metrics) AddTick(delta, took time.Duration) {
	m.ticks.Add(1)
	m.totalTickNs.Add(took.Nanoseconds())
	m.lastDeltaNs.Store(delta.Nanoseconds())
}

func (m *Metrics) Ticks() int64 { return m.ticks.Load() }

func (m *Metrics) IncAccepted()    { m.inputsAccepted.Add(1) }
func (m *Metrics) IncRateLimited() { m.rateLimited.Add(1) }
func (m *Metrics) IncMalformed()   { m.malformed.Add(1) }

func (m *Metrics) Connected() {
	m.connections.Add(1)
	m.connectedTotal.Add(1)
}

func (m *Metrics) Disconnected() { m.connections.Add(-1) }

// TickRate estimates the simulation frequency from the last tick interval.
func (m *Metrics) TickRate() float64 {
	delta := m.lastDeltaNs.Load()
	if delta <= 0 {
		return 0
	}
	return float64(time.Second) / float64(delta)
}

// Snapshot returns a read-only copy for the metrics endpoint.
func (m *Metrics) Snapshot() map[string]any {
	ticks := m.ticks.Load()
	total := m.totalTickNs.Load()
	var avgMs float64
	if ticks > 0 {
		avgMs = float64(total) / float64(ticks) / 1e6
	}
	return map[string]any{
		"tick_count":        ticks,
		"avg_tick_ms":       avgMs,
		"tick_rate":         m.TickRate(),
		"inputs_accepted":   m.inputsAccepted.Load(),
		"rate_limited":      m.rateLimited.Load(),
		"malformed":         m.malformed.Load(),
		"connections":       m.connections.Load(),
		"connections_total": m.connectedTotal.Load(),
	}
}
