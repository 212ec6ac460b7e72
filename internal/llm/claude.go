package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultClaudeURL = "https://api.anthropic.com/v1/messages"

// ClaudeClient calls the Anthropic Messages API. It implements Endpoint.
type ClaudeClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewClaudeClient(apiKey string) *ClaudeClient {
	return NewClaudeClientWithURL(apiKey, defaultClaudeURL, &http.Client{
		Timeout: 120 * time.Second,
	})
}

// NewClaudeClientWithURL points the client at a different Messages endpoint,
// e.g. a proxy or a test server.
func NewClaudeClientWithURL(apiKey, url string, httpClient *http.Client) *ClaudeClient {
	return &ClaudeClient{
		apiKey:     apiKey,
		url:        url,
		httpClient: httpClient,
	}
}

type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
}

type anthropicResponse struct {
	Content    []wireBlock `json:"content"`
	StopReason string      `json:"stop_reason"`
	Usage      Usage       `json:"usage"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke sends one request to the Messages API.
func (c *ClaudeClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(encodeRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if isThrottleStatus(resp.StatusCode) {
		return nil, &ThrottledError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		if isThrottleType(apiResp.Error.Type) {
			return nil, &ThrottledError{StatusCode: resp.StatusCode, Message: apiResp.Error.Message}
		}
		return nil, fmt.Errorf("claude error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	msg, err := decodeBlocks(apiResp.Content)
	if err != nil {
		return nil, err
	}
	return &Response{
		StopReason: apiResp.StopReason,
		Message:    Message{Role: RoleAssistant, Content: msg},
		Usage:      apiResp.Usage,
	}, nil
}

func encodeRequest(req Request) anthropicRequest {
	out := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	for _, m := range req.Messages {
		wm := anthropicMessage{Role: m.Role}
		for _, b := range m.Content {
			wm.Content = append(wm.Content, encodeBlock(b))
		}
		out.Messages = append(out.Messages, wm)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}

func encodeBlock(b Block) wireBlock {
	switch v := b.(type) {
	case TextBlock:
		return wireBlock{Type: "text", Text: v.Text}
	case ToolUseBlock:
		input := v.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return wireBlock{Type: "tool_use", ID: v.ID, Name: v.Name, Input: input}
	case ToolResultBlock:
		return wireBlock{Type: "tool_result", ToolUseID: v.ToolUseID, Content: v.Content, IsError: v.IsError}
	}
	return wireBlock{Type: b.blockType()}
}

func decodeBlocks(blocks []wireBlock) ([]Block, error) {
	out := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, TextBlock{Text: b.Text})
		case "tool_use":
			if b.ID == "" {
				return nil, fmt.Errorf("tool_use block without id")
			}
			out = append(out, ToolUseBlock{ID: b.ID, Name: b.Name, Input: b.Input})
		default:
			// thinking and other block types carry nothing the engine uses.
		}
	}
	return out, nil
}

// Close releases resources.
func (c *ClaudeClient) Close() {
	c.httpClient.CloseIdleConnections()
}
