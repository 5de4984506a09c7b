// Package llmclient is the narrow interface the worker depends on for the
// LLM provider: conversation id, final result text, per-turn token
// counts, turn count, and error classification. The event stream is
// modeled as a tagged variant rather than one giant struct.
package llmclient

import (
	"context"
	"strings"
)

// Client is the Go-side interface every LLM provider implementation
// satisfies. Generate streams a conversation and returns a channel of
// Events; the channel is closed when the stream completes, successfully
// or not. A terminal ErrorEvent always precedes channel close on failure.
type Client interface {
	Generate(ctx context.Context, input Input) (<-chan Event, error)
	Close() error
}

// Input is one turn's worth of conversation state sent to the provider.
type Input struct {
	ConversationID string // empty starts a new conversation; non-empty resumes one
	SystemPrompt   string
	Messages       []Message
	Tools          []ToolDefinition
	MaxTokens      int
}

// Message roles, matching the provider's wire vocabulary.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type ToolDefinition struct {
	Name        string
	Description string
	InputSchema string // JSON Schema
}

// Event is the tagged-variant stream element. Exactly one of the
// As* accessors applies per concrete type; callers type-switch on Kind().
type Event interface {
	Kind() EventKind
}

type EventKind string

const (
	KindContentBlockStart  EventKind = "contentBlockStart"
	KindAssistantTextChunk EventKind = "assistantTextChunk"
	KindToolUseRequest     EventKind = "toolUseRequest"
	KindToolResult         EventKind = "toolResult"
	KindResult             EventKind = "result"
	KindError              EventKind = "error"
)

type ContentBlockStartEvent struct{ BlockType string }

type AssistantTextChunkEvent struct{ Text string }

type ToolUseRequestEvent struct {
	ID    string
	Name  string
	Input string // JSON
}

// ToolResultEvent carries the outcome of a tool the WORKER executed and
// reported back upstream for the model to see on the next turn, not a
// result from the provider itself.
type ToolResultEvent struct {
	ID      string
	IsError bool
	Content string
}

// ResultEvent is the terminal success event.
type ResultEvent struct {
	Text           string
	Tokens         TokenCount
	Turns          int
	ConversationID string
}

type TokenCount struct {
	Input  int
	Output int
}

// ErrorKind classifies an LLM failure for the worker's retry policy
// (rate-limit vs other).
type ErrorKind string

const (
	ErrorRateLimit ErrorKind = "rate_limit"
	ErrorOverload  ErrorKind = "overload"
	ErrorOther     ErrorKind = "other"
)

type ErrorEvent struct {
	Message   string
	Kind      ErrorKind
	Retryable bool
}

func (e *ContentBlockStartEvent) Kind() EventKind  { return KindContentBlockStart }
func (e *AssistantTextChunkEvent) Kind() EventKind { return KindAssistantTextChunk }
func (e *ToolUseRequestEvent) Kind() EventKind     { return KindToolUseRequest }
func (e *ToolResultEvent) Kind() EventKind         { return KindToolResult }
func (e *ResultEvent) Kind() EventKind             { return KindResult }
func (e *ErrorEvent) Kind() EventKind              { return KindError }

// IsToolSuccess implements the worker's tool-result success predicate
//: successful iff not flagged as an error, and the content doesn't
// carry the provider's own error markers.
func IsToolSuccess(ev *ToolResultEvent) bool {
	if ev.IsError {
		return false
	}
	if strings.Contains(ev.Content, "<tool_use_error>") {
		return false
	}
	if strings.Contains(strings.ToLower(ev.Content), "no changes to make") {
		return false
	}
	return true
}
