package ticket

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/modmail-agent/internal/errors"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(3)
}

func mustCreate(t *testing.T, r *Registry, userID, channelID string, n int) Session {
	t.Helper()
	s, err := r.Create(userID, channelID, n, "General Support")
	require.NoError(t, err)
	return s
}

func TestRegistry_CreateDefaults(t *testing.T) {
	r := newTestRegistry(t)
	s := mustCreate(t, r, "U1", "C1", 1)

	assert.Equal(t, 1, s.TicketNumber)
	assert.Equal(t, PriorityNormal, s.Priority)
	assert.False(t, s.Claimed)
	assert.Nil(t, s.Claimer)
	assert.Nil(t, s.FirstResponseTime)
	assert.Zero(t, s.MessageCount)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_OneSessionPerUser(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, "U1", "C1", 1)

	_, err := r.Create("U1", "C2", 2, "Other")
	assert.ErrorIs(t, err, errors.ErrQuotaExceeded)
	assert.Equal(t, 1, r.CountByUser("U1"))
}

func TestRegistry_QuotaOfOne(t *testing.T) {
	r := NewRegistry(1)
	mustCreate(t, r, "U1", "C1", 1)

	_, err := r.Create("U1", "C2", 2, "Other")
	assert.ErrorIs(t, err, errors.ErrQuotaExceeded)
}

func TestRegistry_ByChannel(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, "U1", "C1", 1)

	s, err := r.ByChannel("C1")
	require.NoError(t, err)
	assert.Equal(t, "U1", s.UserID)

	_, err = r.ByChannel("C404")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestRegistry_ClaimUnclaim(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, "U1", "C1", 1)

	s, err := r.Claim("C1", StaffRef{ID: "S1", Name: "alice"})
	require.NoError(t, err)
	assert.True(t, s.Claimed)
	require.NotNil(t, s.Claimer)
	assert.Equal(t, "alice", s.Claimer.Name)

	_, err = r.Claim("C1", StaffRef{ID: "S2", Name: "bob"})
	assert.ErrorIs(t, err, errors.ErrAlreadyClaimed)

	s, err = r.Unclaim("C1")
	require.NoError(t, err)
	assert.False(t, s.Claimed)
	assert.Nil(t, s.Claimer)

	_, err = r.Unclaim("C1")
	assert.ErrorIs(t, err, errors.ErrNotClaimed)
}

func TestRegistry_SetPriority(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, "U1", "C1", 1)

	s, err := r.SetPriority("C1", PriorityUrgent)
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, s.Priority)

	_, err = r.SetPriority("C1", Priority("Whenever"))
	assert.ErrorIs(t, err, errors.ErrInvalidPriority)

	s, _ = r.ByChannel("C1")
	assert.Equal(t, PriorityUrgent, s.Priority, "invalid level must not change priority")
}

func TestRegistry_TagIdempotence(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, "U1", "C1", 1)

	s, err := r.AddTag("C1", "billing")
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, s.Tags)

	s, err = r.AddTag("C1", "billing")
	assert.ErrorIs(t, err, errors.ErrNoChange)
	assert.Equal(t, []string{"billing"}, s.Tags)

	s, err = r.RemoveTag("C1", "billing")
	require.NoError(t, err)
	assert.Empty(t, s.Tags)

	_, err = r.RemoveTag("C1", "billing")
	assert.ErrorIs(t, err, errors.ErrNoChange)
}

func TestRegistry_TagOrderPreserved(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, "U1", "C1", 1)

	r.AddTag("C1", "one")
	r.AddTag("C1", "two")
	r.AddTag("C1", "three")
	r.RemoveTag("C1", "two")

	s, _ := r.ByChannel("C1")
	assert.Equal(t, []string{"one", "three"}, s.Tags)
}

func TestRegistry_FirstResponseTimeWriteOnce(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	r.nowFunc = func() time.Time { return now }
	mustCreate(t, r, "U1", "C1", 1)

	now = now.Add(10 * time.Minute)
	s, err := r.RecordStaffResponse("C1")
	require.NoError(t, err)
	require.NotNil(t, s.FirstResponseTime)
	assert.Equal(t, 10*time.Minute, *s.FirstResponseTime)

	now = now.Add(2 * time.Hour)
	s, err = r.RecordStaffResponse("C1")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, *s.FirstResponseTime, "later replies never overwrite")
	assert.Equal(t, 2, s.StaffResponses)
}

func TestRegistry_RecordInboundMessage(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	r.nowFunc = func() time.Time { return now }
	mustCreate(t, r, "U1", "C1", 1)

	now = now.Add(5 * time.Minute)
	s, err := r.RecordInboundMessage("C1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.MessageCount)
	assert.Equal(t, now, s.LastActivity)
}

func TestRegistry_CloseLifecycle(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, "U1", "C1", 1)

	snap, err := r.BeginClose("C1")
	require.NoError(t, err)
	assert.Equal(t, "U1", snap.UserID)

	// While the close is in flight the session is invisible to every
	// other transition.
	_, err = r.ByChannel("C1")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)
	_, err = r.Claim("C1", StaffRef{ID: "S1"})
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)
	_, err = r.BeginClose("C1")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)

	r.CompleteClose("C1")
	assert.Equal(t, 0, r.Len())
	_, ok := r.Get("U1")
	assert.False(t, ok)

	// The user can open a fresh ticket afterwards.
	_, err = r.Create("U1", "C2", 2, "Other")
	assert.NoError(t, err)
}

func TestRegistry_ConcurrentCloseOnlyOneWins(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, "U1", "C1", 1)

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.BeginClose("C1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, errors.ErrSessionNotFound)
		}
	}
	assert.Equal(t, 1, wins, "exactly one close attempt may proceed")
}

func TestRegistry_Purge(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, "U1", "C1", 1)

	r.Purge("U1")
	assert.Equal(t, 0, r.Len())
	_, err := r.ByChannel("C1")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)

	_, err = r.Create("U1", "C2", 2, "Other")
	assert.NoError(t, err)
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, "U1", "C1", 1)
	r.AddTag("C1", "one")

	s, _ := r.ByChannel("C1")
	s.Tags[0] = "mutated"
	s.Priority = PriorityUrgent

	fresh, _ := r.ByChannel("C1")
	assert.Equal(t, []string{"one"}, fresh.Tags)
	assert.Equal(t, PriorityNormal, fresh.Priority)
}

func TestParsePriority(t *testing.T) {
	for in, want := range map[string]Priority{
		"low":    PriorityLow,
		"Normal": PriorityNormal,
		"HIGH":   PriorityHigh,
		" urgent ": PriorityUrgent,
	} {
		got, err := ParsePriority(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParsePriority("soon")
	assert.ErrorIs(t, err, errors.ErrInvalidPriority)
}
