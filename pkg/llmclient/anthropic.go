package llmclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"
)

// AnthropicClient is the concrete provider implementation of Client,
// backed by the Anthropic streaming messages API, wrapped in a circuit
// breaker so a run of rate-limit/5xx responses fails fast instead of
// burning through the task's attempt budget one timeout at a time.
type AnthropicClient struct {
	sdk     anthropic.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewAnthropicClient builds a client for model (e.g. "claude-sonnet-4-5")
// using apiKey. The circuit breaker trips after 5 consecutive failures
// and half-opens after 30s, mirroring the tier-scaled timeouts callers
// apply around Generate.
func NewAnthropicClient(apiKey, model string, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "anthropic-" + model,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llmclient: circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	})
	return &AnthropicClient{
		sdk:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		breaker: cb,
		logger:  logger,
	}
}

func (c *AnthropicClient) Close() error { return nil }

// Generate streams a single turn through the circuit breaker. The
// breaker call wraps only stream establishment: once a stream is open,
// partial failures surface as an ErrorEvent on the channel rather than
// tripping the breaker on a request that was already mostly successful.
func (c *AnthropicClient) Generate(ctx context.Context, input Input) (<-chan Event, error) {
	streamAny, err := c.breaker.Execute(func() (interface{}, error) {
		return c.newStream(ctx, input), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			ch := make(chan Event, 1)
			ch <- &ErrorEvent{Message: err.Error(), Kind: ErrorOverload, Retryable: true}
			close(ch)
			return ch, nil
		}
		return nil, fmt.Errorf("llmclient: starting stream: %w", err)
	}
	stream := streamAny.(*anthropic.MessageStreamer)

	ch := make(chan Event, 32)
	go c.pump(ctx, stream, input.ConversationID, ch)
	return ch, nil
}

func (c *AnthropicClient) newStream(ctx context.Context, input Input) *anthropic.MessageStreamer {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokensOrDefault(input.MaxTokens)),
		Messages:  toAnthropicMessages(input.Messages),
	}
	if input.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: input.SystemPrompt}}
	}
	for _, tool := range input.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
			},
		})
	}
	return c.sdk.Messages.NewStreaming(ctx, params)
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 8192
	}
	return n
}

func toAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// pump translates the SDK's accumulating stream into the tagged-variant
// Event channel, closing ch when the stream ends either way.
func (c *AnthropicClient) pump(ctx context.Context, stream *anthropic.MessageStreamer, conversationID string, ch chan<- Event) {
	defer close(ch)

	turns := 0
	var message anthropic.Message
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			c.emit(ctx, ch, &ErrorEvent{Message: err.Error(), Kind: ErrorOther, Retryable: false})
			return
		}

		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			c.emit(ctx, ch, &ContentBlockStartEvent{BlockType: string(variant.ContentBlock.Type)})
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				c.emit(ctx, ch, &AssistantTextChunkEvent{Text: delta.Text})
			}
		case anthropic.MessageDeltaEvent:
			turns++
		}
	}

	if err := stream.Err(); err != nil {
		c.emit(ctx, ch, classifyError(err))
		return
	}

	text := extractText(message)
	for _, block := range message.Content {
		if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			c.emit(ctx, ch, &ToolUseRequestEvent{ID: tu.ID, Name: tu.Name, Input: string(tu.Input)})
		}
	}

	c.emit(ctx, ch, &ResultEvent{
		Text: text,
		Tokens: TokenCount{
			Input:  int(message.Usage.InputTokens),
			Output: int(message.Usage.OutputTokens),
		},
		Turns:          turnsOrOne(turns),
		ConversationID: conversationID,
	})
}

func turnsOrOne(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func extractText(message anthropic.Message) string {
	var b strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}

func (c *AnthropicClient) emit(ctx context.Context, ch chan<- Event, ev Event) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}

// classifyError maps the SDK's error into the worker's rate-limit/other
// classification, checked via errors.Is against context sentinels
// first so a deliberate cancellation is never mistaken for a provider
// failure.
func classifyError(err error) *ErrorEvent {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ErrorEvent{Message: err.Error(), Kind: ErrorOther, Retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return &ErrorEvent{Message: err.Error(), Kind: ErrorOther, Retryable: false}
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return &ErrorEvent{Message: err.Error(), Kind: ErrorRateLimit, Retryable: true}
		case 529, 503:
			return &ErrorEvent{Message: err.Error(), Kind: ErrorOverload, Retryable: true}
		}
	}
	return &ErrorEvent{Message: err.Error(), Kind: ErrorOther, Retryable: false}
}
