package router

import (
	"context"
	goerrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/p-blackswan/modmail-agent/internal/errors"
	"github.com/p-blackswan/modmail-agent/internal/platform"
	"github.com/p-blackswan/modmail-agent/internal/store"
	"github.com/p-blackswan/modmail-agent/internal/ticket"
	"github.com/p-blackswan/modmail-agent/internal/transcript"
)

// HandleStaffMessage processes one message posted by staff inside a ticket
// channel. Prefixed messages dispatch to commands; everything else is
// internal discussion and is never mirrored to the user.
func (r *Router) HandleStaffMessage(ctx context.Context, channelID string, staff ticket.StaffRef, content string) {
	if !strings.HasPrefix(content, r.cfg.CommandPrefix) {
		return
	}
	trimmed := strings.TrimPrefix(content, r.cfg.CommandPrefix)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return
	}
	command := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))

	switch command {
	case "help":
		r.cmdHelp(ctx, channelID)
	case "r", "reply":
		r.cmdReply(ctx, channelID, staff, rest, false)
	case "ar", "anonreply", "anon-reply":
		r.cmdReply(ctx, channelID, staff, rest, true)
	case "close":
		r.cmdClose(ctx, channelID, staff, rest)
	case "claim":
		r.cmdClaim(ctx, channelID, staff)
	case "unclaim":
		r.cmdUnclaim(ctx, channelID, staff)
	case "priority":
		r.cmdPriority(ctx, channelID, rest)
	case "tag":
		r.cmdTag(ctx, channelID, rest)
	case "note":
		r.cmdNote(ctx, channelID, staff, rest)
	case "notes":
		r.cmdNotes(ctx, channelID)
	case "info":
		r.cmdInfo(ctx, channelID)
	case "transcript":
		r.cmdTranscript(ctx, channelID)
	case "snippet":
		r.cmdSnippet(ctx, channelID, staff, rest)
	case "snippet-add":
		r.cmdSnippetAdd(ctx, channelID, staff, rest)
	case "snippet-remove":
		r.cmdSnippetRemove(ctx, channelID, staff, rest)
	case "snippet-list", "snippets":
		r.cmdSnippetList(ctx, channelID)
	case "schedule":
		r.cmdSchedule(ctx, channelID, rest)
	case "cancel-schedule":
		r.cmdCancelSchedule(ctx, channelID)
	case "blacklist":
		r.cmdBlacklist(ctx, channelID, staff, rest)
	case "unblacklist":
		r.cmdUnblacklist(ctx, channelID, staff, rest)
	case "stats":
		r.cmdStats(ctx, channelID)
	case "history":
		r.cmdHistory(ctx, channelID)
	default:
		r.reply(ctx, channelID, fmt.Sprintf("Unknown command. Use %shelp to list commands.", r.cfg.CommandPrefix))
	}
}

func (r *Router) cmdHelp(ctx context.Context, channelID string) {
	p := r.cfg.CommandPrefix
	lines := []string{
		"Modmail commands:",
		fmt.Sprintf("%sr <message> / %sreply <message> - reply to the user", p, p),
		fmt.Sprintf("%sar <message> - reply anonymously as Staff Team", p),
		fmt.Sprintf("%sclose [reason] - close this ticket", p),
		fmt.Sprintf("%sclaim / %sunclaim - take or release ownership", p, p),
		fmt.Sprintf("%spriority <low|normal|high|urgent> - set priority", p),
		fmt.Sprintf("%stag <name> / %stag remove <name> - manage tags", p, p),
		fmt.Sprintf("%snote <text> - record a note about the user", p),
		fmt.Sprintf("%snotes / %shistory - view the user's notes and past tickets", p, p),
		fmt.Sprintf("%sinfo - show ticket details", p),
		fmt.Sprintf("%stranscript - post the conversation so far", p),
		fmt.Sprintf("%ssnippet <name> - send a canned reply", p),
		fmt.Sprintf("%ssnippet-add <name> <content> / %ssnippet-remove <name> (admin)", p, p),
		fmt.Sprintf("%ssnippet-list - list canned replies", p),
		fmt.Sprintf("%sschedule <minutes|30m|2h> / %scancel-schedule - delayed close", p, p),
		fmt.Sprintf("%sblacklist [reason] / %sunblacklist <user-id> (admin)", p, p),
		fmt.Sprintf("%sstats - show bridge statistics", p),
	}
	r.reply(ctx, channelID, strings.Join(lines, "\n"))
}

// cmdReply mirrors a staff reply into the user's DM. Anonymous replies hide
// the responder's name and deliberately skip response-time bookkeeping.
func (r *Router) cmdReply(ctx context.Context, channelID string, staff ticket.StaffRef, text string, anonymous bool) {
	if text == "" {
		r.reply(ctx, channelID, "Usage: reply <message>")
		return
	}
	session, err := r.registry.ByChannel(channelID)
	if err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}

	author := staff.Name
	if anonymous || r.cfg.AnonymousMode {
		author = "Staff Team"
	}
	if err := r.client.SendDirectMessage(ctx, session.UserID, fmt.Sprintf("%s: %s", author, text)); err != nil {
		if goerrors.Is(err, platform.ErrDMClosed) {
			r.reply(ctx, channelID, "Could not deliver: the user's DMs are closed.")
			return
		}
		r.externalError("sendDirectMessage", err)
		r.reply(ctx, channelID, "Failed to deliver the reply. Please try again.")
		return
	}
	r.metrics.MessagesForwarded.WithLabelValues("outbound").Inc()

	if anonymous {
		if err := r.registry.Touch(channelID); err != nil {
			return
		}
	} else if _, err := r.registry.RecordStaffResponse(channelID); err != nil {
		return
	}
	r.reply(ctx, channelID, fmt.Sprintf("Reply sent by %s.", staff.Name))
}

func (r *Router) cmdClose(ctx context.Context, channelID string, staff ticket.StaffRef, reason string) {
	if reason == "" {
		reason = "No reason provided"
	}
	if err := r.closeTicket(ctx, channelID, staff, reason, "manual"); err != nil {
		r.notTicketChannel(ctx, channelID)
	}
}

func (r *Router) cmdClaim(ctx context.Context, channelID string, staff ticket.StaffRef) {
	session, err := r.registry.Claim(channelID, staff)
	switch {
	case goerrors.Is(err, errors.ErrAlreadyClaimed):
		current, cerr := r.registry.ByChannel(channelID)
		if cerr == nil && current.Claimer != nil {
			r.reply(ctx, channelID, fmt.Sprintf("Already claimed by %s.", current.Claimer.Name))
		} else {
			r.reply(ctx, channelID, "This ticket is already claimed.")
		}
		return
	case err != nil:
		r.notTicketChannel(ctx, channelID)
		return
	}
	r.refreshTopic(ctx, session)
	r.reply(ctx, channelID, fmt.Sprintf("Ticket #%d claimed by %s.", session.TicketNumber, staff.Name))
}

func (r *Router) cmdUnclaim(ctx context.Context, channelID string, staff ticket.StaffRef) {
	session, err := r.registry.Unclaim(channelID)
	switch {
	case goerrors.Is(err, errors.ErrNotClaimed):
		r.reply(ctx, channelID, "This ticket is not claimed.")
		return
	case err != nil:
		r.notTicketChannel(ctx, channelID)
		return
	}
	r.refreshTopic(ctx, session)
	r.reply(ctx, channelID, fmt.Sprintf("Ticket #%d released by %s.", session.TicketNumber, staff.Name))
}

func (r *Router) cmdPriority(ctx context.Context, channelID, arg string) {
	p, err := ticket.ParsePriority(arg)
	if err != nil {
		r.reply(ctx, channelID, "Usage: priority <low|normal|high|urgent>")
		return
	}
	session, err := r.registry.SetPriority(channelID, p)
	if err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}
	r.refreshTopic(ctx, session)
	r.reply(ctx, channelID, fmt.Sprintf("Priority set to %s.", p))
}

func (r *Router) cmdTag(ctx context.Context, channelID, rest string) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		r.reply(ctx, channelID, "Usage: tag <name> or tag remove <name>")
		return
	}

	if strings.EqualFold(fields[0], "remove") {
		if len(fields) < 2 {
			r.reply(ctx, channelID, "Usage: tag remove <name>")
			return
		}
		tag := strings.ToLower(fields[1])
		session, err := r.registry.RemoveTag(channelID, tag)
		switch {
		case goerrors.Is(err, errors.ErrNoChange):
			r.reply(ctx, channelID, fmt.Sprintf("Tag %q is not on this ticket.", tag))
		case err != nil:
			r.notTicketChannel(ctx, channelID)
		default:
			r.reply(ctx, channelID, fmt.Sprintf("Tag %q removed. Tags: %s", tag, tagList(session.Tags)))
		}
		return
	}

	tag := strings.ToLower(fields[0])
	session, err := r.registry.AddTag(channelID, tag)
	switch {
	case goerrors.Is(err, errors.ErrNoChange):
		r.reply(ctx, channelID, fmt.Sprintf("Tag %q is already on this ticket.", tag))
	case err != nil:
		r.notTicketChannel(ctx, channelID)
	default:
		r.reply(ctx, channelID, fmt.Sprintf("Tag %q added. Tags: %s", tag, tagList(session.Tags)))
	}
}

func (r *Router) cmdNote(ctx context.Context, channelID string, staff ticket.StaffRef, text string) {
	if text == "" {
		r.reply(ctx, channelID, "Usage: note <text>")
		return
	}
	session, err := r.registry.ByChannel(channelID)
	if err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}
	if _, err := r.store.AddNote(session.UserID, store.Note{
		Text:         text,
		Staff:        staff.Name,
		StaffID:      staff.ID,
		TicketNumber: session.TicketNumber,
	}); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist note")
		r.reply(ctx, channelID, "Failed to save the note.")
		return
	}
	r.reply(ctx, channelID, "Note saved.")
}

func (r *Router) cmdNotes(ctx context.Context, channelID string) {
	session, err := r.registry.ByChannel(channelID)
	if err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}
	notes := r.store.Notes(session.UserID)
	if len(notes) == 0 {
		r.reply(ctx, channelID, "No notes for this user.")
		return
	}
	lines := []string{fmt.Sprintf("Notes for %s:", session.UserID)}
	for i, n := range notes {
		ref := ""
		if n.TicketNumber != 0 {
			ref = fmt.Sprintf(" [ticket #%d]", n.TicketNumber)
		}
		lines = append(lines, fmt.Sprintf("%d. %s - %s, %s%s",
			i+1, n.Text, n.Staff, time.UnixMilli(n.Timestamp).Format("2006-01-02 15:04"), ref))
	}
	r.reply(ctx, channelID, strings.Join(lines, "\n"))
}

func (r *Router) cmdInfo(ctx context.Context, channelID string) {
	session, err := r.registry.ByChannel(channelID)
	if err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}

	claimed := "No"
	if session.Claimer != nil {
		claimed = session.Claimer.Name
	}
	first := "none yet"
	if session.FirstResponseTime != nil {
		first = transcript.FormatDuration(*session.FirstResponseTime)
	}
	lines := []string{
		fmt.Sprintf("Ticket #%d", session.TicketNumber),
		fmt.Sprintf("User: %s", session.UserID),
		fmt.Sprintf("Category: %s | Priority: %s | Tags: %s", session.Category, session.Priority, tagList(session.Tags)),
		fmt.Sprintf("Claimed by: %s", claimed),
		fmt.Sprintf("Opened: %s (%s ago)", session.CreatedAt.Format("2006-01-02 15:04 MST"),
			transcript.FormatDuration(r.nowFunc().Sub(session.CreatedAt))),
		fmt.Sprintf("Messages: %d | Staff responses: %d | First response: %s",
			session.MessageCount, session.StaffResponses, first),
	}
	if fireAt, ok := r.sched.FireAt(channelID); ok {
		lines = append(lines, fmt.Sprintf("Scheduled to close at %s", fireAt.Format("2006-01-02 15:04 MST")))
	}
	r.reply(ctx, channelID, strings.Join(lines, "\n"))
}

// cmdTranscript posts the conversation so far into the channel without
// closing the ticket.
func (r *Router) cmdTranscript(ctx context.Context, channelID string) {
	if _, err := r.registry.ByChannel(channelID); err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}
	messages, err := r.client.FetchRecentMessages(ctx, channelID, r.cfg.TranscriptLimit)
	if err != nil {
		r.externalError("fetchRecentMessages", err)
		r.reply(ctx, channelID, "Could not fetch the message history.")
		return
	}
	if len(messages) == 0 {
		r.reply(ctx, channelID, "No messages yet.")
		return
	}
	r.reply(ctx, channelID, transcript.RenderMessages(messages))
}

func (r *Router) cmdSnippet(ctx context.Context, channelID string, staff ticket.StaffRef, name string) {
	if name == "" {
		r.reply(ctx, channelID, "Usage: snippet <name>")
		return
	}
	content, ok := r.store.Snippet(name)
	if !ok {
		r.reply(ctx, channelID, fmt.Sprintf("No snippet named %q. Use %ssnippet-list.", name, r.cfg.CommandPrefix))
		return
	}
	session, err := r.registry.ByChannel(channelID)
	if err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}
	if err := r.client.SendDirectMessage(ctx, session.UserID, fmt.Sprintf("Staff Team: %s", content)); err != nil {
		r.externalError("sendDirectMessage", err)
		r.reply(ctx, channelID, "Failed to deliver the snippet.")
		return
	}
	r.metrics.MessagesForwarded.WithLabelValues("outbound").Inc()
	if err := r.registry.Touch(channelID); err != nil {
		return
	}
	r.reply(ctx, channelID, fmt.Sprintf("Snippet %q sent by %s.", name, staff.Name))
}

func (r *Router) cmdSnippetAdd(ctx context.Context, channelID string, staff ticket.StaffRef, rest string) {
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		r.reply(ctx, channelID, "Usage: snippet-add <name> <content>")
		return
	}
	err := r.store.SetSnippet(staff.ID, parts[0], strings.TrimSpace(parts[1]))
	switch {
	case goerrors.Is(err, errors.ErrForbidden):
		r.reply(ctx, channelID, "Only administrators can manage snippets.")
	case err != nil:
		r.logger.Error().Err(err).Msg("failed to persist snippet")
		r.reply(ctx, channelID, "Failed to save the snippet.")
	default:
		r.reply(ctx, channelID, fmt.Sprintf("Snippet %q saved.", strings.ToLower(parts[0])))
	}
}

func (r *Router) cmdSnippetRemove(ctx context.Context, channelID string, staff ticket.StaffRef, name string) {
	if name == "" {
		r.reply(ctx, channelID, "Usage: snippet-remove <name>")
		return
	}
	err := r.store.RemoveSnippet(staff.ID, name)
	switch {
	case goerrors.Is(err, errors.ErrForbidden):
		r.reply(ctx, channelID, "Only administrators can manage snippets.")
	case goerrors.Is(err, errors.ErrNoChange):
		r.reply(ctx, channelID, fmt.Sprintf("No snippet named %q.", name))
	case err != nil:
		r.logger.Error().Err(err).Msg("failed to persist snippet removal")
		r.reply(ctx, channelID, "Failed to remove the snippet.")
	default:
		r.reply(ctx, channelID, fmt.Sprintf("Snippet %q removed.", strings.ToLower(name)))
	}
}

func (r *Router) cmdSnippetList(ctx context.Context, channelID string) {
	names := r.store.SnippetNames()
	if len(names) == 0 {
		r.reply(ctx, channelID, "No snippets configured.")
		return
	}
	r.reply(ctx, channelID, "Snippets: "+strings.Join(names, ", "))
}

func (r *Router) cmdSchedule(ctx context.Context, channelID, arg string) {
	delay, err := parseScheduleDelay(arg)
	if err != nil {
		r.reply(ctx, channelID, "Usage: schedule <minutes|30m|2h>")
		return
	}
	fireAt, err := r.scheduleClose(ctx, channelID, delay)
	if err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}
	r.reply(ctx, channelID, fmt.Sprintf("Ticket will close automatically at %s. Use %scancel-schedule to abort.",
		fireAt.Format("2006-01-02 15:04 MST"), r.cfg.CommandPrefix))
}

func (r *Router) cmdCancelSchedule(ctx context.Context, channelID string) {
	if _, err := r.registry.ByChannel(channelID); err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}
	if r.sched.Cancel(channelID) {
		r.reply(ctx, channelID, "Scheduled closure cancelled.")
	} else {
		r.reply(ctx, channelID, "No closure is scheduled for this ticket.")
	}
}

// cmdBlacklist blocks the ticket's user, records a note, and closes the
// ticket. Blocking gates future tickets only; the close here is the staff
// decision to end the current conversation along with the block.
func (r *Router) cmdBlacklist(ctx context.Context, channelID string, staff ticket.StaffRef, reason string) {
	session, err := r.registry.ByChannel(channelID)
	if err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}
	if reason == "" {
		reason = "No reason provided"
	}
	if err := r.store.Block(staff.ID, session.UserID); err != nil {
		if goerrors.Is(err, errors.ErrForbidden) {
			r.reply(ctx, channelID, "Only administrators can blacklist users.")
			return
		}
		r.logger.Error().Err(err).Msg("failed to persist blacklist")
		r.reply(ctx, channelID, "Failed to blacklist the user.")
		return
	}
	if _, err := r.store.AddNote(session.UserID, store.Note{
		Text:         "BLACKLISTED: " + reason,
		Staff:        staff.Name,
		StaffID:      staff.ID,
		TicketNumber: session.TicketNumber,
	}); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist blacklist note")
	}
	r.reply(ctx, channelID, fmt.Sprintf("User %s blacklisted by %s. Closing ticket.", session.UserID, staff.Name))
	r.logToChannel(ctx, fmt.Sprintf("User %s blacklisted by %s. Reason: %s", session.UserID, staff.Name, reason))

	if err := r.closeTicket(ctx, channelID, staff, "User blacklisted: "+reason, "blacklist"); err != nil {
		r.logger.Warn().Err(err).Str("channel_id", channelID).Msg("blacklist close found no session")
	}
}

// cmdUnblacklist takes an explicit user ID because the blocked user has no
// open ticket to resolve through.
func (r *Router) cmdUnblacklist(ctx context.Context, channelID string, staff ticket.StaffRef, userID string) {
	if userID == "" {
		r.reply(ctx, channelID, "Usage: unblacklist <user-id>")
		return
	}
	err := r.store.Unblock(staff.ID, userID)
	switch {
	case goerrors.Is(err, errors.ErrForbidden):
		r.reply(ctx, channelID, "Only administrators can unblacklist users.")
	case goerrors.Is(err, errors.ErrNoChange):
		r.reply(ctx, channelID, fmt.Sprintf("User %s is not blacklisted.", userID))
	case err != nil:
		r.logger.Error().Err(err).Msg("failed to persist unblacklist")
		r.reply(ctx, channelID, "Failed to unblacklist the user.")
	default:
		r.reply(ctx, channelID, fmt.Sprintf("User %s unblacklisted by %s.", userID, staff.Name))
	}
}

func (r *Router) cmdStats(ctx context.Context, channelID string) {
	snap := r.stats.Snapshot()
	lines := []string{
		"Modmail statistics:",
		fmt.Sprintf("Total tickets: %d | Closed: %d | Open now: %d", snap.Total, snap.Closed, r.registry.Len()),
		fmt.Sprintf("Avg first response: %s | Avg time to close: %s",
			transcript.FormatDuration(r.stats.AvgResponseTime()),
			transcript.FormatDuration(r.stats.AvgCloseTime())),
		fmt.Sprintf("Blacklisted users: %d | Users with notes: %d | Snippets: %d",
			r.store.BlacklistCount(), r.store.UsersWithNotes(), r.store.SnippetCount()),
	}
	r.reply(ctx, channelID, strings.Join(lines, "\n"))
}

func (r *Router) cmdHistory(ctx context.Context, channelID string) {
	session, err := r.registry.ByChannel(channelID)
	if err != nil {
		r.notTicketChannel(ctx, channelID)
		return
	}
	history := r.store.TicketHistory(session.UserID)
	if len(history) == 0 {
		r.reply(ctx, channelID, "No past tickets recorded for this user.")
		return
	}
	refs := make([]string, len(history))
	for i, n := range history {
		refs[i] = fmt.Sprintf("#%d", n)
	}
	r.reply(ctx, channelID, fmt.Sprintf("Past tickets for %s: %s", session.UserID, strings.Join(refs, ", ")))
}

// reply posts a best-effort status message back into the staff channel.
func (r *Router) reply(ctx context.Context, channelID, content string) {
	if err := r.client.SendMessage(ctx, channelID, content); err != nil {
		r.externalError("sendMessage", err)
	}
}

func (r *Router) notTicketChannel(ctx context.Context, channelID string) {
	r.reply(ctx, channelID, "This channel is not an open ticket.")
}

func tagList(tags []string) string {
	if len(tags) == 0 {
		return "none"
	}
	return strings.Join(tags, ", ")
}

// parseScheduleDelay accepts a bare minute count or a Go duration string.
func parseScheduleDelay(arg string) (time.Duration, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, fmt.Errorf("empty delay")
	}
	if minutes, err := strconv.Atoi(arg); err == nil {
		if minutes <= 0 {
			return 0, fmt.Errorf("delay must be positive")
		}
		return time.Duration(minutes) * time.Minute, nil
	}
	d, err := time.ParseDuration(arg)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("delay must be positive")
	}
	return d, nil
}
