package store

import (
	"github.com/p-blackswan/modmail-agent/internal/stats"
)

// SaveStats rewrites the stats document from a snapshot.
func (s *Store) SaveStats(snap stats.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeDocument(statsFile, snap)
}

// LoadStats reads the persisted stats snapshot. ok is false when no stats
// document exists yet.
func (s *Store) LoadStats() (stats.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap stats.Snapshot
	if err := s.readDocument(statsFile, &snap); err != nil {
		return stats.Snapshot{}, false, err
	}
	if snap == (stats.Snapshot{}) {
		return snap, false, nil
	}
	return snap, true, nil
}
