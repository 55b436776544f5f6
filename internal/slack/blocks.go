package slack

import (
	"fmt"

	"github.com/slack-go/slack"
)

// Action IDs routed by the interaction handler.
const (
	actionCategorySelect = "category_select"
	actionClaim          = "ticket_claim"
	actionClose          = "ticket_close"
	actionPriority       = "ticket_priority"
	actionSchedule       = "ticket_schedule"
)

// BuildCategoryPrompt builds the DM select menu asking the user to pick a
// ticket category before a ticket is opened.
func BuildCategoryPrompt(categories []string) []slack.Block {
	options := make([]*slack.OptionBlockObject, 0, len(categories))
	for _, cat := range categories {
		options = append(options, slack.NewOptionBlockObject(
			cat,
			slack.NewTextBlockObject("plain_text", cat, false, false),
			nil,
		))
	}

	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn",
				"*Welcome to support!*\nPlease choose a category for your ticket:",
				false, false),
			nil, nil,
		),
		slack.NewActionBlock(
			"category_prompt",
			slack.NewOptionsSelectBlockElement(
				slack.OptTypeStatic,
				slack.NewTextBlockObject("plain_text", "Select a category", false, false),
				actionCategorySelect,
				options...,
			),
		),
	}
}

// BuildTicketControls builds the staff control row posted under the ticket
// header: claim and close buttons plus priority and delayed-close selects.
func BuildTicketControls(ticketNumber int) []slack.Block {
	priorityOptions := make([]*slack.OptionBlockObject, 0, 4)
	for _, p := range []string{"low", "normal", "high", "urgent"} {
		priorityOptions = append(priorityOptions, slack.NewOptionBlockObject(
			p,
			slack.NewTextBlockObject("plain_text", p, false, false),
			nil,
		))
	}

	scheduleOptions := make([]*slack.OptionBlockObject, 0, 4)
	for _, s := range []struct{ value, label string }{
		{"30m", "in 30 minutes"},
		{"1h", "in 1 hour"},
		{"6h", "in 6 hours"},
		{"24h", "in 24 hours"},
	} {
		scheduleOptions = append(scheduleOptions, slack.NewOptionBlockObject(
			s.value,
			slack.NewTextBlockObject("plain_text", s.label, false, false),
			nil,
		))
	}

	return []slack.Block{
		slack.NewActionBlock(
			fmt.Sprintf("ticket_controls_%d", ticketNumber),
			slack.NewButtonBlockElement(
				actionClaim, "claim",
				slack.NewTextBlockObject("plain_text", "Claim", false, false),
			),
			slack.NewButtonBlockElement(
				actionClose, "close",
				slack.NewTextBlockObject("plain_text", "Close", false, false),
			).WithStyle(slack.StyleDanger),
			slack.NewOptionsSelectBlockElement(
				slack.OptTypeStatic,
				slack.NewTextBlockObject("plain_text", "Priority", false, false),
				actionPriority,
				priorityOptions...,
			),
			slack.NewOptionsSelectBlockElement(
				slack.OptTypeStatic,
				slack.NewTextBlockObject("plain_text", "Close later", false, false),
				actionSchedule,
				scheduleOptions...,
			),
		),
	}
}
