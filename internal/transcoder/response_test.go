package transcoder

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestRewriteResponseExtractsToolCalls(t *testing.T) {
	p := NewParser(testMarkers)

	content := "Sure.\n༒龘ᐅ\n࿇▸add◂࿇\n࿇▹{\"a\":1,\"b\":2}◃࿇\nᐊ龘༒"
	body, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-123",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"total_tokens": 42},
	})

	out := p.RewriteResponse(body)

	var resp struct {
		ID      string `json:"id"`
		Choices []struct {
			Message struct {
				Content   *string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Type     string `json:"type"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("invalid output JSON: %v", err)
	}

	if resp.ID != "chatcmpl-123" {
		t.Errorf("id = %q, top-level fields must pass through", resp.ID)
	}
	if resp.Usage.TotalTokens != 42 {
		t.Errorf("usage lost in rewrite")
	}

	choice := resp.Choices[0]
	if choice.FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %q, want tool_calls", choice.FinishReason)
	}
	if choice.Message.Content == nil || *choice.Message.Content != "Sure." {
		t.Errorf("content = %v, want \"Sure.\"", choice.Message.Content)
	}
	if len(choice.Message.ToolCalls) != 1 {
		t.Fatalf("tool_calls = %d, want 1", len(choice.Message.ToolCalls))
	}
	tc := choice.Message.ToolCalls[0]
	if tc.Function.Name != "add" || tc.Function.Arguments != `{"a":1,"b":2}` {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestRewriteResponseNullContentWhenFullyConsumed(t *testing.T) {
	p := NewParser(testMarkers)

	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{
			"message":       map[string]any{"role": "assistant", "content": envelope("add", `{"a":1}`)},
			"finish_reason": "stop",
		}},
	})

	out := p.RewriteResponse(body)

	var resp struct {
		Choices []struct {
			Message map[string]json.RawMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("invalid output JSON: %v", err)
	}
	if got := string(resp.Choices[0].Message["content"]); got != "null" {
		t.Errorf("content = %s, want null", got)
	}
}

func TestRewriteResponsePassthrough(t *testing.T) {
	p := NewParser(testMarkers)

	tests := []struct {
		name string
		body string
	}{
		{"no tool calls", `{"choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`},
		{"malformed envelope stays put", `{"choices":[{"message":{"content":"` + "༒龘ᐅ broken" + `"}}]}`},
		{"empty choices", `{"choices":[]}`},
		{"no choices field", `{"object":"list"}`},
		{"not json", `<html>upstream error</html>`},
		{"non-string content", `{"choices":[{"message":{"content":[{"type":"text","text":"hi"}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.RewriteResponse([]byte(tt.body))
			if !bytes.Equal(out, []byte(tt.body)) {
				t.Errorf("RewriteResponse() changed a body it should pass through:\n got %s\nwant %s", out, tt.body)
			}
		})
	}
}
