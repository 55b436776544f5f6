package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	moderr "github.com/p-blackswan/modmail-agent/internal/errors"
	"github.com/p-blackswan/modmail-agent/internal/stats"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	isAdmin := func(id string) bool { return id == "ADMIN" }
	s := New(t.TempDir(), isAdmin, zerolog.Nop())
	require.NoError(t, s.Load())
	return s
}

func TestStore_SnippetsAdminGate(t *testing.T) {
	s := newTestStore(t)

	err := s.SetSnippet("U1", "greeting", "hello")
	assert.ErrorIs(t, err, moderr.ErrForbidden)
	assert.Equal(t, 0, s.SnippetCount())

	require.NoError(t, s.SetSnippet("ADMIN", "Greeting", "hello"))
	content, ok := s.Snippet("GREETING")
	assert.True(t, ok)
	assert.Equal(t, "hello", content)

	err = s.RemoveSnippet("U1", "greeting")
	assert.ErrorIs(t, err, moderr.ErrForbidden)

	require.NoError(t, s.RemoveSnippet("ADMIN", "greeting"))
	_, ok = s.Snippet("greeting")
	assert.False(t, ok)

	err = s.RemoveSnippet("ADMIN", "greeting")
	assert.ErrorIs(t, err, moderr.ErrNoChange)
}

func TestStore_SeedSnippetsDoNotOverwrite(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetSnippet("ADMIN", "hours", "9-5 weekdays"))

	require.NoError(t, s.SeedSnippets(map[string]string{
		"hours":    "24/7",
		"greeting": "hello there",
	}))

	content, _ := s.Snippet("hours")
	assert.Equal(t, "9-5 weekdays", content, "live edit wins over seed")
	content, _ = s.Snippet("greeting")
	assert.Equal(t, "hello there", content)
}

func TestStore_NotesAppendOnly(t *testing.T) {
	s := newTestStore(t)

	n1, err := s.AddNote("U1", Note{Text: "first", Staff: "alice", StaffID: "S1", TicketNumber: 7})
	require.NoError(t, err)
	assert.NotEmpty(t, n1.ID)
	assert.NotZero(t, n1.Timestamp)

	s.AddNote("U1", Note{Text: "second", Staff: "bob", StaffID: "S2", TicketNumber: 7})
	s.AddNote("U1", Note{Text: "third", Staff: "bob", StaffID: "S2", TicketNumber: 9})

	notes := s.Notes("U1")
	require.Len(t, notes, 3)
	assert.Equal(t, "first", notes[0].Text)
	assert.Equal(t, "third", notes[2].Text)

	recent := s.RecentNotes("U1", 2)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Text)

	assert.Equal(t, []int{7, 9}, s.TicketHistory("U1"))
	assert.Equal(t, 1, s.UsersWithNotes())
	assert.Empty(t, s.Notes("U2"))
}

func TestStore_Blacklist(t *testing.T) {
	s := newTestStore(t)

	err := s.Block("U1", "U2")
	assert.ErrorIs(t, err, moderr.ErrForbidden)

	require.NoError(t, s.Block("ADMIN", "U2"))
	assert.True(t, s.IsBlocked("U2"))
	assert.Equal(t, []string{"U2"}, s.Blacklisted())

	err = s.Unblock("ADMIN", "U3")
	assert.ErrorIs(t, err, moderr.ErrNoChange)

	require.NoError(t, s.Unblock("ADMIN", "U2"))
	assert.False(t, s.IsBlocked("U2"))
	assert.Equal(t, 0, s.BlacklistCount())
}

func TestStore_RoundTripAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	isAdmin := func(id string) bool { return id == "ADMIN" }

	s := New(dir, isAdmin, zerolog.Nop())
	require.NoError(t, s.Load())
	require.NoError(t, s.SetSnippet("ADMIN", "faq", "see the docs"))
	_, err := s.AddNote("U1", Note{Text: "vip customer", Staff: "alice", TicketNumber: 3})
	require.NoError(t, err)
	require.NoError(t, s.Block("ADMIN", "U9"))
	require.NoError(t, s.SaveStats(stats.Snapshot{Total: 12, Closed: 10, Responded: 8, AvgCloseTime: 7200000}))

	// Fresh store over the same directory sees everything.
	s2 := New(dir, isAdmin, zerolog.Nop())
	require.NoError(t, s2.Load())

	content, ok := s2.Snippet("faq")
	assert.True(t, ok)
	assert.Equal(t, "see the docs", content)
	require.Len(t, s2.Notes("U1"), 1)
	assert.Equal(t, "vip customer", s2.Notes("U1")[0].Text)
	assert.True(t, s2.IsBlocked("U9"))

	snap, ok, err := s2.LoadStats()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12, snap.Total)
	assert.Equal(t, 8, snap.Responded)
}

func TestStore_LoadStatsEmpty(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.LoadStats()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_WritesAreAtomicReplacements(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, func(string) bool { return true }, zerolog.Nop())
	require.NoError(t, s.Load())

	require.NoError(t, s.SetSnippet("A", "one", "1"))
	require.NoError(t, s.SetSnippet("A", "two", "2"))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}

	data, err := os.ReadFile(filepath.Join(dir, "snippets.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "one")
	assert.Contains(t, string(data), "two")
}

func TestStore_FlushWritesAllDocuments(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, func(string) bool { return true }, zerolog.Nop())
	require.NoError(t, s.Load())
	s.AddNote("U1", Note{Text: "n", Timestamp: time.Now().UnixMilli()})
	require.NoError(t, s.Flush())

	for _, name := range []string{"snippets.json", "notes.json", "blacklist.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}
