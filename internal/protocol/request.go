package protocol

import (
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ChatRequest is a parsed chat-completions request body. Messages, tools and
// the stream flag get a typed view; every other top-level field is kept as raw
// JSON and reaches the upstream byte-for-byte.
type ChatRequest struct {
	Fields   map[string]json.RawMessage
	Messages []openai.ChatCompletionMessage
	Tools    []openai.Tool
	Stream   bool
}

// looseMessage decodes a single message without committing to a content type.
// Clients occasionally send non-string content (objects, arrays); those are
// kept as raw JSON and stringified by the caller.
type looseMessage struct {
	Role       string            `json:"role"`
	Content    json.RawMessage   `json:"content"`
	Name       string            `json:"name"`
	ToolCalls  []openai.ToolCall `json:"tool_calls"`
	ToolCallID string            `json:"tool_call_id"`
}

// ParseChatRequest decodes a chat-completions body. Message content that is
// not a JSON string is JSON-encoded into one, so downstream rewriting always
// works on plain text.
func ParseChatRequest(body []byte) (*ChatRequest, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}

	req := &ChatRequest{Fields: fields}

	if raw, ok := fields["messages"]; ok {
		var loose []looseMessage
		if err := json.Unmarshal(raw, &loose); err != nil {
			return nil, fmt.Errorf("invalid messages field: %w", err)
		}
		req.Messages = make([]openai.ChatCompletionMessage, len(loose))
		for i, lm := range loose {
			req.Messages[i] = openai.ChatCompletionMessage{
				Role:       lm.Role,
				Content:    stringifyContent(lm.Content),
				Name:       lm.Name,
				ToolCalls:  lm.ToolCalls,
				ToolCallID: lm.ToolCallID,
			}
		}
	}

	if raw, ok := fields["tools"]; ok {
		// A malformed tools list degrades to "no tools" rather than failing
		// the whole request.
		_ = json.Unmarshal(raw, &req.Tools)
	}
	if raw, ok := fields["stream"]; ok {
		_ = json.Unmarshal(raw, &req.Stream)
	}

	return req, nil
}

// HasTools reports whether the request declares a non-empty tool list.
func (r *ChatRequest) HasTools() bool {
	return len(r.Tools) > 0
}

// Marshal serializes the request with the current Messages slice and with the
// tools and tool_choice fields removed. All other fields pass through as
// originally received.
func (r *ChatRequest) Marshal() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = v
	}

	msgs, err := json.Marshal(r.Messages)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}
	out["messages"] = msgs

	delete(out, "tools")
	delete(out, "tool_choice")

	return json.Marshal(out)
}

// stringifyContent turns a raw content value into plain text: JSON strings
// are decoded, null becomes empty, anything else keeps its JSON encoding.
func stringifyContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
