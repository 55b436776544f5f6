// Package store persists the bridge's durable state as flat JSON documents
// in the data directory: snippets, per-user notes, the blacklist, and the
// aggregate stats. Each document is loaded at startup and rewritten
// wholesale after a mutation. Session state is deliberately not persisted.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const (
	snippetsFile  = "snippets.json"
	notesFile     = "notes.json"
	blacklistFile = "blacklist.json"
	statsFile     = "stats.json"
)

// Store owns the persisted key-value documents. One RWMutex guards all of
// them; mutations write the affected document before releasing the lock so
// the on-disk state never runs ahead of or behind memory.
type Store struct {
	mu      sync.RWMutex
	dataDir string
	isAdmin func(userID string) bool
	logger  zerolog.Logger

	snippets  map[string]string
	notes     map[string][]Note
	blacklist map[string]struct{}
}

// New creates a Store rooted at dataDir. isAdmin gates snippet mutation.
func New(dataDir string, isAdmin func(string) bool, logger zerolog.Logger) *Store {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &Store{
		dataDir:   dataDir,
		isAdmin:   isAdmin,
		logger:    logger.With().Str("component", "store").Logger(),
		snippets:  make(map[string]string),
		notes:     make(map[string][]Note),
		blacklist: make(map[string]struct{}),
	}
}

// Load reads all documents from the data directory, creating it if needed.
// Missing documents are not an error: a fresh deployment starts empty.
func (s *Store) Load() error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir %s: %w", s.dataDir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readDocument(snippetsFile, &s.snippets); err != nil {
		return err
	}
	if err := s.readDocument(notesFile, &s.notes); err != nil {
		return err
	}
	var blocked []string
	if err := s.readDocument(blacklistFile, &blocked); err != nil {
		return err
	}
	for _, id := range blocked {
		s.blacklist[id] = struct{}{}
	}

	s.logger.Info().
		Int("snippets", len(s.snippets)).
		Int("users_with_notes", len(s.notes)).
		Int("blacklisted", len(s.blacklist)).
		Msg("loaded persistent data")
	return nil
}

// Flush rewrites every document. Called on graceful shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	errs = append(errs, s.writeSnippetsLocked())
	errs = append(errs, s.writeNotesLocked())
	errs = append(errs, s.writeBlacklistLocked())
	return errors.Join(errs...)
}

func (s *Store) readDocument(name string, out any) error {
	path := filepath.Join(s.dataDir, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// writeDocument rewrites a document atomically: temp file, then rename.
func (s *Store) writeDocument(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dataDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func (s *Store) writeSnippetsLocked() error {
	return s.writeDocument(snippetsFile, s.snippets)
}

func (s *Store) writeNotesLocked() error {
	return s.writeDocument(notesFile, s.notes)
}

func (s *Store) writeBlacklistLocked() error {
	blocked := make([]string, 0, len(s.blacklist))
	for id := range s.blacklist {
		blocked = append(blocked, id)
	}
	return s.writeDocument(blacklistFile, blocked)
}
