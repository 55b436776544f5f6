package router

import (
	"context"
	"time"

	"github.com/p-blackswan/modmail-agent/internal/ticket"
)

// Interactive components (buttons, select menus, modals) resolve to the
// same transitions as the text commands, so these handlers delegate to the
// command implementations. The adapter translates platform payloads into
// these calls.

// HandleClaimAction handles the claim button on the ticket header.
func (r *Router) HandleClaimAction(ctx context.Context, channelID string, staff ticket.StaffRef) {
	r.cmdClaim(ctx, channelID, staff)
}

// HandleCloseAction handles the close button on the ticket header.
func (r *Router) HandleCloseAction(ctx context.Context, channelID string, staff ticket.StaffRef) {
	r.cmdClose(ctx, channelID, staff, "")
}

// HandlePrioritySelect handles the priority select menu.
func (r *Router) HandlePrioritySelect(ctx context.Context, channelID, value string) {
	r.cmdPriority(ctx, channelID, value)
}

// HandleScheduleSelect handles the delayed-close select menu.
func (r *Router) HandleScheduleSelect(ctx context.Context, channelID string, delay time.Duration) {
	fireAt, err := r.scheduleClose(ctx, channelID, delay)
	if err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}
	r.reply(ctx, channelID, "Ticket will close automatically at "+fireAt.Format("2006-01-02 15:04 MST")+".")
}

// HandleTagSubmit handles a tag entered through a modal.
func (r *Router) HandleTagSubmit(ctx context.Context, channelID, tag string) {
	r.cmdTag(ctx, channelID, tag)
}

// HandleNoteSubmit handles a note entered through a modal.
func (r *Router) HandleNoteSubmit(ctx context.Context, channelID string, staff ticket.StaffRef, text string) {
	r.cmdNote(ctx, channelID, staff, text)
}
