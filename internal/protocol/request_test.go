package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseChatRequest(t *testing.T) {
	body := `{
		"model": "llama-3",
		"temperature": 0.5,
		"stream": true,
		"messages": [
			{"role": "system", "content": "Be brief."},
			{"role": "user", "content": "hi"}
		],
		"tools": [
			{"type": "function", "function": {"name": "add", "parameters": {"type": "object"}}}
		]
	}`

	req, err := ParseChatRequest([]byte(body))
	if err != nil {
		t.Fatalf("ParseChatRequest() error = %v", err)
	}

	if !req.Stream {
		t.Error("Stream = false, want true")
	}
	if !req.HasTools() {
		t.Error("HasTools() = false, want true")
	}
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(req.Messages))
	}
	if req.Messages[1].Role != "user" || req.Messages[1].Content != "hi" {
		t.Errorf("messages[1] = %+v", req.Messages[1])
	}
	if req.Tools[0].Function.Name != "add" {
		t.Errorf("tool name = %q, want add", req.Tools[0].Function.Name)
	}
	if _, ok := req.Fields["temperature"]; !ok {
		t.Error("passthrough field temperature lost")
	}
}

func TestParseChatRequestContentStringification(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"string", `"plain"`, "plain"},
		{"null", `null`, ""},
		{"object", `{"a":1}`, `{"a":1}`},
		{"array", `[1,2]`, `[1,2]`},
		{"number", `42`, `42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"messages":[{"role":"tool","name":"x","content":` + tt.content + `}]}`
			req, err := ParseChatRequest([]byte(body))
			if err != nil {
				t.Fatalf("ParseChatRequest() error = %v", err)
			}
			if got := req.Messages[0].Content; got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseChatRequestMissingContentField(t *testing.T) {
	body := `{"messages":[{"role":"assistant","tool_calls":[{"id":"c1","type":"function","function":{"name":"f","arguments":"{}"}}]}]}`
	req, err := ParseChatRequest([]byte(body))
	if err != nil {
		t.Fatalf("ParseChatRequest() error = %v", err)
	}
	if req.Messages[0].Content != "" {
		t.Errorf("content = %q, want empty", req.Messages[0].Content)
	}
	if len(req.Messages[0].ToolCalls) != 1 {
		t.Fatalf("tool_calls = %d, want 1", len(req.Messages[0].ToolCalls))
	}
	if req.Messages[0].ToolCalls[0].Function.Arguments != "{}" {
		t.Errorf("arguments = %q", req.Messages[0].ToolCalls[0].Function.Arguments)
	}
}

func TestParseChatRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `hello`},
		{"array body", `[1,2]`},
		{"messages not a list", `{"messages": "nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseChatRequest([]byte(tt.body)); err == nil {
				t.Error("ParseChatRequest() expected error")
			}
		})
	}
}

func TestParseChatRequestMalformedToolsDegrades(t *testing.T) {
	body := `{"messages":[],"tools":{"bad":"shape"}}`
	req, err := ParseChatRequest([]byte(body))
	if err != nil {
		t.Fatalf("ParseChatRequest() error = %v", err)
	}
	if req.HasTools() {
		t.Error("HasTools() = true for malformed tools")
	}
}

func TestMarshalRemovesToolFields(t *testing.T) {
	body := `{
		"model": "m",
		"tool_choice": "auto",
		"messages": [{"role":"user","content":"hi"}],
		"tools": [{"type":"function","function":{"name":"f"}}]
	}`
	req, err := ParseChatRequest([]byte(body))
	if err != nil {
		t.Fatalf("ParseChatRequest() error = %v", err)
	}

	out, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if _, ok := decoded["tools"]; ok {
		t.Error("tools survived Marshal")
	}
	if _, ok := decoded["tool_choice"]; ok {
		t.Error("tool_choice survived Marshal")
	}
	if string(decoded["model"]) != `"m"` {
		t.Errorf("model = %s, want \"m\"", decoded["model"])
	}

	var msgs []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(decoded["messages"], &msgs); err != nil {
		t.Fatalf("messages not JSON: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Errorf("messages = %+v", msgs)
	}
}
