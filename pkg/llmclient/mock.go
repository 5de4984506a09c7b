package llmclient

import "context"

// MockClient is a scripted Client for worker/router tests: each call to
// Generate pops the next canned response off Responses in order.
type MockClient struct {
	Responses []MockResponse
	calls     int
}

// MockResponse is one canned turn: either a terminal Result or an Error.
// ToolResults lets a test pair each ToolUses entry with the outcome the
// agent reported for it, mirroring how a single provider turn carries
// both the request and its own tool-execution result.
type MockResponse struct {
	ToolUses    []ToolUseRequestEvent
	ToolResults []ToolResultEvent
	Text        string
	Tokens      TokenCount
	Turns       int
	Err         *ErrorEvent
}

func (m *MockClient) Generate(ctx context.Context, input Input) (<-chan Event, error) {
	idx := m.calls
	m.calls++

	ch := make(chan Event, 8)
	go func() {
		defer close(ch)
		if idx >= len(m.Responses) {
			ch <- &ErrorEvent{Message: "mock: no more scripted responses", Kind: ErrorOther}
			return
		}
		resp := m.Responses[idx]
		if resp.Err != nil {
			ch <- resp.Err
			return
		}
		for _, tu := range resp.ToolUses {
			tu := tu
			ch <- &tu
		}
		for _, tr := range resp.ToolResults {
			tr := tr
			ch <- &tr
		}
		if resp.Text != "" {
			ch <- &AssistantTextChunkEvent{Text: resp.Text}
		}
		ch <- &ResultEvent{
			Text:           resp.Text,
			Tokens:         resp.Tokens,
			Turns:          turnsOrOne(resp.Turns),
			ConversationID: input.ConversationID,
		}
	}()
	return ch, nil
}

func (m *MockClient) Close() error { return nil }

// Calls returns how many times Generate has been invoked.
func (m *MockClient) Calls() int { return m.calls }
