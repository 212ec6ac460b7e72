package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Stop reasons reported by the model endpoint.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// Block is one content block of a message: a TextBlock, a ToolUseBlock or a
// ToolResultBlock. Blocks are decoded once at the endpoint boundary so callers
// never inspect raw JSON.
type Block interface {
	blockType() string
}

// TextBlock is free text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a structured tool invocation emitted by the model.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultBlock acknowledges a ToolUseBlock in the following user turn.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextBlock) blockType() string       { return "text" }
func (ToolUseBlock) blockType() string    { return "tool_use" }
func (ToolResultBlock) blockType() string { return "tool_result" }

// Message is a single conversation turn.
type Message struct {
	Role    string
	Content []Block
}

// UserText builds a user turn holding a single text block.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []Block{TextBlock{Text: text}}}
}

// ToolCalls returns the tool invocations in the message, in order.
func (m Message) ToolCalls() []ToolUseBlock {
	var calls []ToolUseBlock
	for _, b := range m.Content {
		if tu, ok := b.(ToolUseBlock); ok {
			calls = append(calls, tu)
		}
	}
	return calls
}

// Text joins all text blocks of the message.
func (m Message) Text() string {
	var parts []string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok && t.Text != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Conversation is an append-only message history. With returns a new slice and
// never mutates the receiver, so a conversation value can be handed to
// concurrent branches safely.
type Conversation []Message

// With returns the conversation extended by msgs.
func (c Conversation) With(msgs ...Message) Conversation {
	out := make(Conversation, 0, len(c)+len(msgs))
	out = append(out, c...)
	return append(out, msgs...)
}

// Tool describes a tool the model may call.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is one model invocation.
type Request struct {
	Model       string
	System      string
	Messages    Conversation
	Tools       []Tool
	MaxTokens   int
	Temperature *float64
	TopP        *float64
}

// Usage reports token counts for one invocation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the decoded result of one invocation.
type Response struct {
	StopReason string
	Message    Message
	Usage      Usage
}

// Endpoint is a hosted generative model.
type Endpoint interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Float is a helper for the optional inference parameters.
func Float(v float64) *float64 { return &v }
