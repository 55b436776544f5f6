package ticket

import (
	"sync"
	"time"

	"github.com/p-blackswan/modmail-agent/internal/errors"
)

// Registry maps each user to at most one open session and each ticket
// channel back to its user. Every handler goroutine (platform events, the
// inactivity sweeper, scheduled-closure timers, the mgmt API) shares one
// Registry, so all access is serialized on its mutex and all returned
// sessions are copies.
type Registry struct {
	mu         sync.Mutex
	byUser     map[string]*Session
	byChannel  map[string]string   // channelID -> userID, kept in step with byUser
	closing    map[string]struct{} // channels with a close in flight
	maxPerUser int
	nowFunc    func() time.Time
}

// NewRegistry creates an empty Registry. maxPerUser caps how many open
// sessions a single user may hold.
func NewRegistry(maxPerUser int) *Registry {
	return &Registry{
		byUser:     make(map[string]*Session),
		byChannel:  make(map[string]string),
		closing:    make(map[string]struct{}),
		maxPerUser: maxPerUser,
		nowFunc:    time.Now,
	}
}

// Get returns the open session for userID, if any.
func (r *Registry) Get(userID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byUser[userID]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// ByChannel resolves the session owning channelID. A channel with a close
// in flight is treated as gone: the caller must fail cleanly rather than
// act on a half-closed session.
func (r *Registry) ByChannel(channelID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.byChannelLocked(channelID)
	if err != nil {
		return Session{}, err
	}
	return s.snapshot(), nil
}

func (r *Registry) byChannelLocked(channelID string) (*Session, error) {
	if _, inFlight := r.closing[channelID]; inFlight {
		return nil, errors.ErrSessionNotFound
	}
	userID, ok := r.byChannel[channelID]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	s, ok := r.byUser[userID]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return s, nil
}

// CountByUser returns how many open sessions userID holds. With the
// user-keyed map this is 0 or 1, but the quota stays meaningful if
// multiple concurrent tickets are ever allowed.
func (r *Registry) CountByUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, s := range r.byUser {
		if s.UserID == userID {
			count++
		}
	}
	return count
}

// Create inserts a new session for userID backed by channelID. It fails
// with ErrQuotaExceeded when the user is at their open-ticket quota. The
// channel must already exist: a failed channel creation never leaves a
// partial session here.
func (r *Registry) Create(userID, channelID string, ticketNumber int, category string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, s := range r.byUser {
		if s.UserID == userID {
			count++
		}
	}
	if count >= r.maxPerUser {
		return Session{}, errors.ErrQuotaExceeded
	}
	if _, exists := r.byUser[userID]; exists {
		return Session{}, errors.ErrQuotaExceeded
	}

	now := r.nowFunc()
	s := &Session{
		UserID:       userID,
		ChannelID:    channelID,
		TicketNumber: ticketNumber,
		Category:     category,
		Priority:     PriorityNormal,
		CreatedAt:    now,
		LastActivity: now,
	}
	r.byUser[userID] = s
	r.byChannel[channelID] = userID
	return s.snapshot(), nil
}

// Purge removes a stale session whose backing channel no longer exists
// externally. Unlike Close it performs no bookkeeping.
func (r *Registry) Purge(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byUser[userID]; ok {
		delete(r.byChannel, s.ChannelID)
		delete(r.closing, s.ChannelID)
		delete(r.byUser, userID)
	}
}

// Claim assigns the ticket to staff. Fails ErrAlreadyClaimed if claimed.
func (r *Registry) Claim(channelID string, staff StaffRef) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.byChannelLocked(channelID)
	if err != nil {
		return Session{}, err
	}
	if s.Claimed {
		return Session{}, errors.ErrAlreadyClaimed
	}
	s.Claimed = true
	s.Claimer = &staff
	s.LastActivity = r.nowFunc()
	return s.snapshot(), nil
}

// Unclaim releases the ticket. Fails ErrNotClaimed if not claimed.
func (r *Registry) Unclaim(channelID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.byChannelLocked(channelID)
	if err != nil {
		return Session{}, err
	}
	if !s.Claimed {
		return Session{}, errors.ErrNotClaimed
	}
	s.Claimed = false
	s.Claimer = nil
	s.LastActivity = r.nowFunc()
	return s.snapshot(), nil
}

// SetPriority updates the ticket priority.
func (r *Registry) SetPriority(channelID string, p Priority) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.byChannelLocked(channelID)
	if err != nil {
		return Session{}, err
	}
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		return Session{}, errors.ErrInvalidPriority
	}
	s.Priority = p
	s.LastActivity = r.nowFunc()
	return s.snapshot(), nil
}

// AddTag appends a tag. Adding a tag that is already present is a no-op
// signaled with ErrNoChange.
func (r *Registry) AddTag(channelID, tag string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.byChannelLocked(channelID)
	if err != nil {
		return Session{}, err
	}
	if s.HasTag(tag) {
		return s.snapshot(), errors.ErrNoChange
	}
	s.Tags = append(s.Tags, tag)
	s.LastActivity = r.nowFunc()
	return s.snapshot(), nil
}

// RemoveTag removes a tag. Removing an absent tag is a no-op signaled
// with ErrNoChange.
func (r *Registry) RemoveTag(channelID, tag string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.byChannelLocked(channelID)
	if err != nil {
		return Session{}, err
	}
	for i, t := range s.Tags {
		if t == tag {
			s.Tags = append(s.Tags[:i], s.Tags[i+1:]...)
			s.LastActivity = r.nowFunc()
			return s.snapshot(), nil
		}
	}
	return s.snapshot(), errors.ErrNoChange
}

// RecordInboundMessage counts one user message on the session.
func (r *Registry) RecordInboundMessage(channelID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.byChannelLocked(channelID)
	if err != nil {
		return Session{}, err
	}
	s.MessageCount++
	s.LastActivity = r.nowFunc()
	return s.snapshot(), nil
}

// RecordStaffResponse counts one staff reply and sets the first-response
// time exactly once.
func (r *Registry) RecordStaffResponse(channelID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.byChannelLocked(channelID)
	if err != nil {
		return Session{}, err
	}
	s.StaffResponses++
	now := r.nowFunc()
	s.LastActivity = now
	if s.FirstResponseTime == nil {
		d := now.Sub(s.CreatedAt)
		s.FirstResponseTime = &d
	}
	return s.snapshot(), nil
}

// Touch refreshes the session's last-activity timestamp without any
// other bookkeeping (anonymous replies, snippet sends).
func (r *Registry) Touch(channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.byChannelLocked(channelID)
	if err != nil {
		return err
	}
	s.LastActivity = r.nowFunc()
	return nil
}

// BeginClose marks the channel's close as in flight and returns a
// snapshot for transcript and notification use. Only the first caller
// wins; from this point on a concurrent close attempt, or any other
// transition, observes ErrSessionNotFound, so close-time side effects fire
// at most once even when the closing goroutine suspends on external calls.
func (r *Registry) BeginClose(channelID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.byChannelLocked(channelID)
	if err != nil {
		return Session{}, err
	}
	r.closing[channelID] = struct{}{}
	return s.snapshot(), nil
}

// CompleteClose removes the session from the registry. This is the final,
// irrevocable step of closing: after it returns, no event can operate on
// the session. It must only be called after a successful BeginClose.
func (r *Registry) CompleteClose(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.closing, channelID)
	userID, ok := r.byChannel[channelID]
	if !ok {
		return
	}
	delete(r.byChannel, channelID)
	delete(r.byUser, userID)
}

// OpenSessions returns snapshots of every open session.
func (r *Registry) OpenSessions() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Session, 0, len(r.byUser))
	for _, s := range r.byUser {
		out = append(out, s.snapshot())
	}
	return out
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}
