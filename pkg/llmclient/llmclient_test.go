package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestMockClientReturnsScriptedResult(t *testing.T) {
	client := &MockClient{Responses: []MockResponse{
		{Text: "done", Tokens: TokenCount{Input: 10, Output: 20}, Turns: 2},
	}}

	ch, err := client.Generate(context.Background(), Input{ConversationID: "conv-1"})
	require.NoError(t, err)

	events := drain(ch)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, KindResult, last.Kind())
	result := last.(*ResultEvent)
	assert.Equal(t, "done", result.Text)
	assert.Equal(t, 2, result.Turns)
	assert.Equal(t, "conv-1", result.ConversationID)
}

func TestMockClientEmitsToolUseRequests(t *testing.T) {
	client := &MockClient{Responses: []MockResponse{
		{ToolUses: []ToolUseRequestEvent{{ID: "t1", Name: "write_file", Input: `{"path":"a.go"}`}}},
	}}

	ch, err := client.Generate(context.Background(), Input{})
	require.NoError(t, err)

	var sawToolUse bool
	for _, ev := range drain(ch) {
		if ev.Kind() == KindToolUseRequest {
			sawToolUse = true
			assert.Equal(t, "t1", ev.(*ToolUseRequestEvent).ID)
		}
	}
	assert.True(t, sawToolUse)
}

func TestMockClientExhaustionYieldsError(t *testing.T) {
	client := &MockClient{}
	ch, err := client.Generate(context.Background(), Input{})
	require.NoError(t, err)

	events := drain(ch)
	require.Len(t, events, 1)
	assert.Equal(t, KindError, events[0].Kind())
}

func TestIsToolSuccessRejectsErrorMarkers(t *testing.T) {
	assert.False(t, IsToolSuccess(&ToolResultEvent{IsError: true}))
	assert.False(t, IsToolSuccess(&ToolResultEvent{Content: "<tool_use_error>bad path</tool_use_error>"}))
	assert.False(t, IsToolSuccess(&ToolResultEvent{Content: "No changes to make."}))
	assert.True(t, IsToolSuccess(&ToolResultEvent{Content: "wrote 12 lines"}))
}
