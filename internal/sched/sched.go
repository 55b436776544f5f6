// Package sched manages per-channel delayed-close timers.
package sched

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Closure describes one pending scheduled closure.
type Closure struct {
	ChannelID string    `json:"channel_id"`
	FireAt    time.Time `json:"fire_at"`
}

type entry struct {
	timer  *time.Timer
	fireAt time.Time
	gen    uint64
}

// Manager holds at most one armed one-shot timer per channel. Replacing or
// canceling invalidates the prior timer: a stale fire can never run its
// callback because the generation recorded at arm time no longer matches.
type Manager struct {
	mu      sync.Mutex
	timers  map[string]*entry
	nextGen uint64
	logger  zerolog.Logger
}

// NewManager creates an empty Manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		timers: make(map[string]*entry),
		logger: logger.With().Str("component", "sched").Logger(),
	}
}

// Schedule arms a closure for channelID after delay, replacing any timer
// already set for the channel. onFire runs at most once, on its own
// goroutine, and the channel's entry is cleared before it is invoked.
func (m *Manager) Schedule(channelID string, delay time.Duration, onFire func(channelID string)) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.timers[channelID]; ok {
		old.timer.Stop()
	}

	m.nextGen++
	gen := m.nextGen
	fireAt := time.Now().Add(delay)

	e := &entry{fireAt: fireAt, gen: gen}
	e.timer = time.AfterFunc(delay, func() {
		if !m.claim(channelID, gen) {
			return
		}
		m.logger.Info().Str("channel_id", channelID).Msg("scheduled closure firing")
		onFire(channelID)
	})
	m.timers[channelID] = e

	m.logger.Info().
		Str("channel_id", channelID).
		Time("fire_at", fireAt).
		Msg("closure scheduled")
	return fireAt
}

// claim removes the entry if it still belongs to generation gen. A fire
// that lost a replace/cancel race finds a different generation and gives up.
func (m *Manager) claim(channelID string, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.timers[channelID]
	if !ok || e.gen != gen {
		return false
	}
	delete(m.timers, channelID)
	return true
}

// Cancel invalidates the channel's pending timer. Reports whether a timer
// was pending. Canceling after the callback has started is a no-op; the
// in-flight close runs to completion.
func (m *Manager) Cancel(channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.timers[channelID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(m.timers, channelID)
	return true
}

// FireAt returns when the channel's pending closure will fire, if any.
func (m *Manager) FireAt(channelID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.timers[channelID]
	if !ok {
		return time.Time{}, false
	}
	return e.fireAt, true
}

// Pending lists all scheduled closures, soonest first.
func (m *Manager) Pending() []Closure {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Closure, 0, len(m.timers))
	for ch, e := range m.timers {
		out = append(out, Closure{ChannelID: ch, FireAt: e.fireAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// StopAll cancels every pending timer. Called on shutdown; scheduled
// closures are transient and rebuilt empty on restart.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch, e := range m.timers {
		e.timer.Stop()
		delete(m.timers, ch)
	}
}
