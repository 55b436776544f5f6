package store

import (
	"sort"

	moderr "github.com/p-blackswan/modmail-agent/internal/errors"
)

// IsBlocked reports whether userID is blacklisted. Blocking gates future
// ticket creation only; it never closes an already-open session.
func (s *Store) IsBlocked(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[userID]
	return ok
}

// Block adds userID to the blacklist. Admin only.
func (s *Store) Block(actorID, userID string) error {
	if !s.isAdmin(actorID) {
		return moderr.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.blacklist[userID] = struct{}{}
	return s.writeBlacklistLocked()
}

// Unblock removes userID from the blacklist. Admin only; unblocking a
// user who is not blocked is signaled with ErrNoChange.
func (s *Store) Unblock(actorID, userID string) error {
	if !s.isAdmin(actorID) {
		return moderr.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blacklist[userID]; !ok {
		return moderr.ErrNoChange
	}
	delete(s.blacklist, userID)
	return s.writeBlacklistLocked()
}

// Blacklisted returns the blocked user IDs, sorted.
func (s *Store) Blacklisted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.blacklist))
	for id := range s.blacklist {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// BlacklistCount returns the number of blocked users.
func (s *Store) BlacklistCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blacklist)
}
