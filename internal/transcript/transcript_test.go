package transcript

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/modmail-agent/internal/platform"
	"github.com/p-blackswan/modmail-agent/internal/ticket"
)

func sampleMessages() []platform.Message {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return []platform.Message{
		{Author: "user#1", Content: "my login is broken", Timestamp: base},
		{Author: "staff#1", Content: "which error do you see?", Timestamp: base.Add(10 * time.Minute)},
		{Author: "user#1", Content: "error 403", Timestamp: base.Add(12 * time.Minute)},
	}
}

func TestRenderMessages_ChronologicalOneLineEach(t *testing.T) {
	out := RenderMessages(sampleMessages())

	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "my login is broken")
	assert.Contains(t, lines[1], "which error do you see?")
	assert.Contains(t, lines[2], "error 403")
	assert.True(t, strings.HasPrefix(lines[0], "[2025-03-01 10:00:00 UTC] user#1:"))
}

func TestRenderMessages_EmptyContentPlaceholder(t *testing.T) {
	out := RenderMessages([]platform.Message{
		{Author: "user#1", Content: "", Timestamp: time.Now()},
	})
	assert.Contains(t, out, "[Embed/Attachment]")
}

func TestRender_HeaderFields(t *testing.T) {
	fr := 10 * time.Minute
	opened := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	meta := Meta{
		TicketNumber:      42,
		User:              "user#1",
		UserID:            "U1",
		Category:          "Technical Issue",
		Priority:          ticket.PriorityHigh,
		Tags:              []string{"billing", "escalated"},
		OpenedAt:          opened,
		ClosedAt:          opened.Add(2 * time.Hour),
		Duration:          2 * time.Hour,
		Claimer:           "staff#1",
		Closer:            "staff#2",
		Reason:            "resolved",
		MessageCount:      3,
		StaffResponses:    1,
		FirstResponseTime: &fr,
	}

	out := Render(meta, sampleMessages())

	assert.Contains(t, out, "MODMAIL TICKET TRANSCRIPT")
	assert.Contains(t, out, "Ticket Number: #42")
	assert.Contains(t, out, "User: user#1 (U1)")
	assert.Contains(t, out, "Category: Technical Issue")
	assert.Contains(t, out, "Priority: High")
	assert.Contains(t, out, "Tags: billing, escalated")
	assert.Contains(t, out, "Duration: 2h 0m")
	assert.Contains(t, out, "Claimed By: staff#1")
	assert.Contains(t, out, "Closed By: staff#2")
	assert.Contains(t, out, "Reason: resolved")
	assert.Contains(t, out, "Messages: 3")
	assert.Contains(t, out, "Staff Responses: 1")
	assert.Contains(t, out, "First Response Time: 0h 10m")

	// Header precedes the log; log is chronological.
	assert.Less(t, strings.Index(out, "Ticket Number"), strings.Index(out, "my login is broken"))
	assert.Less(t, strings.Index(out, "my login is broken"), strings.Index(out, "error 403"))
}

func TestRender_Defaults(t *testing.T) {
	meta := Meta{
		TicketNumber: 1,
		User:         "user#1",
		UserID:       "U1",
		Category:     "Other",
		Priority:     ticket.PriorityNormal,
		Closer:       "staff#1",
		Reason:       "No reason provided",
	}

	out := Render(meta, nil)
	assert.Contains(t, out, "Tags: None")
	assert.Contains(t, out, "Claimed By: Unclaimed")
	assert.Contains(t, out, "First Response Time: N/A")
}

func TestRender_Deterministic(t *testing.T) {
	meta := Meta{TicketNumber: 5, User: "u", UserID: "U", Closer: "s", Reason: "r"}
	msgs := sampleMessages()
	assert.Equal(t, Render(meta, msgs), Render(meta, msgs))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0h 0m", FormatDuration(30*time.Second))
	assert.Equal(t, "0h 59m", FormatDuration(59*time.Minute+59*time.Second))
	assert.Equal(t, "26h 5m", FormatDuration(26*time.Hour+5*time.Minute))
}
