package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestManager_Fires(t *testing.T) {
	m := NewManager(zerolog.Nop())
	fired := make(chan string, 1)

	m.Schedule("C1", 20*time.Millisecond, func(ch string) { fired <- ch })

	select {
	case ch := <-fired:
		assert.Equal(t, "C1", ch)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	// Entry is cleared once fired.
	_, pending := m.FireAt("C1")
	assert.False(t, pending)
}

func TestManager_CancelBeforeFire(t *testing.T) {
	m := NewManager(zerolog.Nop())
	var fires atomic.Int32

	m.Schedule("C1", 30*time.Millisecond, func(string) { fires.Add(1) })
	assert.True(t, m.Cancel("C1"))

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fires.Load(), "canceled timer must never fire")
	assert.False(t, m.Cancel("C1"), "cancel with nothing pending is a no-op")
}

func TestManager_RescheduleReplacesFirst(t *testing.T) {
	m := NewManager(zerolog.Nop())
	fired := make(chan int, 2)

	m.Schedule("C1", 25*time.Millisecond, func(string) { fired <- 1 })
	m.Schedule("C1", 60*time.Millisecond, func(string) { fired <- 2 })

	select {
	case got := <-fired:
		assert.Equal(t, 2, got, "only the second timer may fire")
	case <-time.After(time.Second):
		t.Fatal("replacement timer never fired")
	}

	select {
	case got := <-fired:
		t.Fatalf("replaced timer fired too: %d", got)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestManager_ChannelsIndependent(t *testing.T) {
	m := NewManager(zerolog.Nop())
	fired := make(chan string, 2)

	m.Schedule("C1", 20*time.Millisecond, func(ch string) { fired <- ch })
	m.Schedule("C2", 20*time.Millisecond, func(ch string) { fired <- ch })
	m.Cancel("C1")

	select {
	case ch := <-fired:
		assert.Equal(t, "C2", ch)
	case <-time.After(time.Second):
		t.Fatal("C2 timer never fired")
	}
}

func TestManager_PendingSortedSoonestFirst(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.Schedule("C1", time.Hour, func(string) {})
	m.Schedule("C2", time.Minute, func(string) {})

	pending := m.Pending()
	assert.Len(t, pending, 2)
	assert.Equal(t, "C2", pending[0].ChannelID)
	assert.Equal(t, "C1", pending[1].ChannelID)

	at, ok := m.FireAt("C1")
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), at, time.Minute)
}

func TestManager_StopAll(t *testing.T) {
	m := NewManager(zerolog.Nop())
	var fires atomic.Int32
	m.Schedule("C1", 20*time.Millisecond, func(string) { fires.Add(1) })
	m.Schedule("C2", 20*time.Millisecond, func(string) { fires.Add(1) })

	m.StopAll()
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, fires.Load())
	assert.Empty(t, m.Pending())
}
