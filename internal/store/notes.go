package store

import (
	"time"

	"github.com/google/uuid"
)

// Note is one append-only annotation about a user. Notes are never edited
// or removed except by wiping the data directory.
type Note struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Staff        string `json:"staff"`
	StaffID      string `json:"staffId"`
	Timestamp    int64  `json:"timestamp"` // unix millis
	TicketNumber int    `json:"ticketNumber"`
}

// AddNote appends a note for userID and returns it with ID and timestamp
// assigned.
func (s *Store) AddNote(userID string, n Note) (Note, error) {
	n.ID = uuid.NewString()
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes[userID] = append(s.notes[userID], n)
	return n, s.writeNotesLocked()
}

// Notes returns all notes for userID, oldest first.
func (s *Store) Notes(userID string) []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Note(nil), s.notes[userID]...)
}

// RecentNotes returns up to limit of the newest notes for userID,
// oldest of those first.
func (s *Store) RecentNotes(userID string, limit int) []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.notes[userID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Note(nil), all...)
}

// TicketHistory returns the distinct ticket numbers mentioned in the
// user's notes, in first-seen order.
func (s *Store) TicketHistory(userID string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int]struct{})
	var history []int
	for _, n := range s.notes[userID] {
		if n.TicketNumber == 0 {
			continue
		}
		if _, ok := seen[n.TicketNumber]; ok {
			continue
		}
		seen[n.TicketNumber] = struct{}{}
		history = append(history, n.TicketNumber)
	}
	return history
}

// UsersWithNotes returns how many users have at least one note.
func (s *Store) UsersWithNotes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}
