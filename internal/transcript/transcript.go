// Package transcript renders ticket message history into a durable,
// human-readable record. Rendering is a pure function of its inputs; the
// router decides where the text goes (file at close, reply mid-ticket).
package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/p-blackswan/modmail-agent/internal/platform"
	"github.com/p-blackswan/modmail-agent/internal/ticket"
)

const divider = "=============================================="

// timeLayout keeps transcripts stable across locales.
const timeLayout = "2006-01-02 15:04:05 MST"

// Meta is the header block of a close-time transcript.
type Meta struct {
	TicketNumber      int
	User              string
	UserID            string
	Category          string
	Priority          ticket.Priority
	Tags              []string
	OpenedAt          time.Time
	ClosedAt          time.Time
	Duration          time.Duration
	Claimer           string
	Closer            string
	Reason            string
	MessageCount      int
	StaffResponses    int
	FirstResponseTime *time.Duration
}

// Render produces the full close-time transcript: a fixed header block
// followed by the chronological message log, oldest first.
func Render(meta Meta, messages []platform.Message) string {
	var b strings.Builder

	claimer := meta.Claimer
	if claimer == "" {
		claimer = "Unclaimed"
	}
	firstResponse := "N/A"
	if meta.FirstResponseTime != nil {
		firstResponse = FormatDuration(*meta.FirstResponseTime)
	}

	b.WriteString(divider + "\n")
	b.WriteString("MODMAIL TICKET TRANSCRIPT\n")
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "Ticket Number: #%d\n", meta.TicketNumber)
	fmt.Fprintf(&b, "User: %s (%s)\n", meta.User, meta.UserID)
	fmt.Fprintf(&b, "Category: %s\n", meta.Category)
	fmt.Fprintf(&b, "Priority: %s\n", meta.Priority)
	fmt.Fprintf(&b, "Tags: %s\n", tagList(meta.Tags))
	fmt.Fprintf(&b, "Opened: %s\n", meta.OpenedAt.Format(timeLayout))
	fmt.Fprintf(&b, "Closed: %s\n", meta.ClosedAt.Format(timeLayout))
	fmt.Fprintf(&b, "Duration: %s\n", FormatDuration(meta.Duration))
	fmt.Fprintf(&b, "Claimed By: %s\n", claimer)
	fmt.Fprintf(&b, "Closed By: %s\n", meta.Closer)
	fmt.Fprintf(&b, "Reason: %s\n", meta.Reason)
	fmt.Fprintf(&b, "Messages: %d\n", meta.MessageCount)
	fmt.Fprintf(&b, "Staff Responses: %d\n", meta.StaffResponses)
	fmt.Fprintf(&b, "First Response Time: %s\n", firstResponse)
	b.WriteString(divider + "\n\n")

	b.WriteString(RenderMessages(messages))
	return b.String()
}

// RenderMessages renders the message log alone, one line per message,
// oldest first. Used by the mid-ticket transcript command.
func RenderMessages(messages []platform.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		content := m.Content
		if content == "" {
			content = "[Embed/Attachment]"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			m.Timestamp.Format(timeLayout), m.Author, content))
	}
	return strings.Join(lines, "\n")
}

// FormatDuration renders a duration as "Xh Ym".
func FormatDuration(d time.Duration) string {
	hours := int(d / time.Hour)
	minutes := int(d%time.Hour) / int(time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func tagList(tags []string) string {
	if len(tags) == 0 {
		return "None"
	}
	return strings.Join(tags, ", ")
}
