package slack

import (
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCategoryPrompt(t *testing.T) {
	blocks := BuildCategoryPrompt([]string{"General Support", "Other"})
	require.Len(t, blocks, 2)

	action, ok := blocks[1].(*slack.ActionBlock)
	require.True(t, ok)
	require.Len(t, action.Elements.ElementSet, 1)

	sel, ok := action.Elements.ElementSet[0].(*slack.SelectBlockElement)
	require.True(t, ok)
	assert.Equal(t, actionCategorySelect, sel.ActionID)
	require.Len(t, sel.Options, 2)
	assert.Equal(t, "General Support", sel.Options[0].Value)
}

func TestBuildTicketControls(t *testing.T) {
	blocks := BuildTicketControls(7)
	require.Len(t, blocks, 1)

	action, ok := blocks[0].(*slack.ActionBlock)
	require.True(t, ok)
	assert.Equal(t, "ticket_controls_7", action.BlockID)
	require.Len(t, action.Elements.ElementSet, 4)

	claim, ok := action.Elements.ElementSet[0].(*slack.ButtonBlockElement)
	require.True(t, ok)
	assert.Equal(t, actionClaim, claim.ActionID)

	schedule, ok := action.Elements.ElementSet[3].(*slack.SelectBlockElement)
	require.True(t, ok)
	assert.Equal(t, actionSchedule, schedule.ActionID)
	for _, opt := range schedule.Options {
		assert.NotEmpty(t, opt.Value)
	}
}
