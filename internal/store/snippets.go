package store

import (
	"sort"
	"strings"

	moderr "github.com/p-blackswan/modmail-agent/internal/errors"
)

// Snippet looks up a canned reply by name (case-insensitive).
func (s *Store) Snippet(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.snippets[strings.ToLower(name)]
	return content, ok
}

// SnippetNames returns all snippet names, sorted.
func (s *Store) SnippetNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.snippets))
	for name := range s.snippets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SnippetCount returns the number of stored snippets.
func (s *Store) SnippetCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snippets)
}

// SetSnippet creates or replaces a snippet. Admin only.
func (s *Store) SetSnippet(actorID, name, content string) error {
	if !s.isAdmin(actorID) {
		return moderr.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snippets[strings.ToLower(name)] = content
	return s.writeSnippetsLocked()
}

// RemoveSnippet deletes a snippet. Admin only; removing an unknown name
// is signaled with ErrNoChange.
func (s *Store) RemoveSnippet(actorID, name string) error {
	if !s.isAdmin(actorID) {
		return moderr.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(name)
	if _, ok := s.snippets[key]; !ok {
		return moderr.ErrNoChange
	}
	delete(s.snippets, key)
	return s.writeSnippetsLocked()
}

// SeedSnippets inserts profile-provided snippets that are not already
// stored. Existing entries win so live edits survive restarts.
func (s *Store) SeedSnippets(seed map[string]string) error {
	if len(seed) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for name, content := range seed {
		key := strings.ToLower(name)
		if _, ok := s.snippets[key]; !ok {
			s.snippets[key] = content
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.writeSnippetsLocked()
}
