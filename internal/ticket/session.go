// Package ticket implements the modmail session registry, the state
// machine that owns ticket lifecycle from first DM to close.
package ticket

import (
	"strings"
	"time"

	"github.com/p-blackswan/modmail-agent/internal/errors"
)

// Priority is the staff-assigned urgency of a ticket.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

// ParsePriority converts a user-supplied priority string to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	default:
		return "", errors.ErrInvalidPriority
	}
}

// StaffRef identifies a staff member acting on a ticket.
type StaffRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is the live record of one user's open ticket. Values handed out
// by the registry are copies; all mutation goes through registry methods.
type Session struct {
	UserID       string
	ChannelID    string
	TicketNumber int

	Claimed bool
	Claimer *StaffRef

	Category string
	Priority Priority
	Tags     []string

	CreatedAt    time.Time
	LastActivity time.Time

	MessageCount   int
	StaffResponses int

	// FirstResponseTime is the elapsed time from creation to the first
	// staff reply. Write-once: later replies never overwrite it.
	FirstResponseTime *time.Duration
}

// HasTag reports whether the session carries tag.
func (s *Session) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// snapshot returns a copy safe to hand outside the registry lock.
func (s *Session) snapshot() Session {
	out := *s
	out.Tags = append([]string(nil), s.Tags...)
	if s.Claimer != nil {
		c := *s.Claimer
		out.Claimer = &c
	}
	if s.FirstResponseTime != nil {
		d := *s.FirstResponseTime
		out.FirstResponseTime = &d
	}
	return out
}
