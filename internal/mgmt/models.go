package mgmt

import (
	"time"

	"github.com/p-blackswan/modmail-agent/internal/ticket"
)

// ProblemDetail is an RFC 7807 Problem Details error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// TicketView is the API representation of an open session.
type TicketView struct {
	TicketNumber   int       `json:"ticket_number"`
	UserID         string    `json:"user_id"`
	ChannelID      string    `json:"channel_id"`
	Category       string    `json:"category"`
	Priority       string    `json:"priority"`
	Tags           []string  `json:"tags"`
	Claimed        bool      `json:"claimed"`
	ClaimedBy      string    `json:"claimed_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
	MessageCount   int       `json:"message_count"`
	StaffResponses int       `json:"staff_responses"`
}

func ticketView(s ticket.Session) TicketView {
	v := TicketView{
		TicketNumber:   s.TicketNumber,
		UserID:         s.UserID,
		ChannelID:      s.ChannelID,
		Category:       s.Category,
		Priority:       string(s.Priority),
		Tags:           s.Tags,
		Claimed:        s.Claimed,
		CreatedAt:      s.CreatedAt,
		LastActivity:   s.LastActivity,
		MessageCount:   s.MessageCount,
		StaffResponses: s.StaffResponses,
	}
	if s.Claimer != nil {
		v.ClaimedBy = s.Claimer.Name
	}
	return v
}

// TicketListResponse is the body of GET /api/v1/tickets.
type TicketListResponse struct {
	Tickets []TicketView `json:"tickets"`
	Total   int          `json:"total"`
}

// CloseTicketRequest is the body of DELETE /api/v1/tickets/:channel_id.
type CloseTicketRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	Total             int     `json:"total"`
	Closed            int     `json:"closed"`
	Open              int     `json:"open"`
	Responded         int     `json:"responded"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	AvgCloseTimeMs    float64 `json:"avg_close_time_ms"`
	BlacklistedUsers  int     `json:"blacklisted_users"`
	UsersWithNotes    int     `json:"users_with_notes"`
	Snippets          int     `json:"snippets"`
}

// BlacklistResponse is the body of GET /api/v1/blacklist.
type BlacklistResponse struct {
	Users []string `json:"users"`
	Total int      `json:"total"`
}

// BlacklistRequest is the body of POST /api/v1/blacklist.
type BlacklistRequest struct {
	UserID string `json:"user_id"`
}

// SnippetsResponse is the body of GET /api/v1/snippets.
type SnippetsResponse struct {
	Names []string `json:"names"`
	Total int      `json:"total"`
}

// SnippetRequest is the body of PUT /api/v1/snippets/:name.
type SnippetRequest struct {
	Content string `json:"content"`
}

// ClosureView is one pending scheduled closure.
type ClosureView struct {
	ChannelID string    `json:"channel_id"`
	FireAt    time.Time `json:"fire_at"`
}

// ClosureListResponse is the body of GET /api/v1/closures.
type ClosureListResponse struct {
	Closures []ClosureView `json:"closures"`
	Total    int           `json:"total"`
}

// HealthDetailResponse is the body of GET /api/v1/health.
type HealthDetailResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Uptime string            `json:"uptime"`
}

// ConfigResponse is the body of GET /api/v1/config.
type ConfigResponse struct {
	Environment       string `json:"environment"`
	LogLevel          string `json:"log_level"`
	CommandPrefix     string `json:"command_prefix"`
	TicketCategory    string `json:"ticket_category"`
	MaxTicketsPerUser int    `json:"max_tickets_per_user"`
	RequireCategory   bool   `json:"require_category"`
	AnonymousMode     bool   `json:"anonymous_mode"`
	AuthMode          string `json:"auth_mode"`
}
