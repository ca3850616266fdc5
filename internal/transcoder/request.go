package transcoder

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/toolbridge-go/proxy-api/internal/markers"
)

// EncodeToolCall renders one tool call as a delimited text block.
func EncodeToolCall(m markers.Set, tc openai.ToolCall) string {
	return m.TCStart + "\n" +
		m.NameStart + tc.Function.Name + m.NameEnd + "\n" +
		m.ArgsStart + tc.Function.Arguments + m.ArgsEnd + "\n" +
		m.TCEnd
}

// RewriteMessages rewrites a chat history so it is consistent with the
// delimited-text tool protocol. When the request declares tools, prior
// assistant tool calls become delimited blocks and tool results become
// marker-wrapped user messages; without tools the history is cleansed into
// plain text so no markers leak to an upstream that was never given the
// protocol contract.
func RewriteMessages(m markers.Set, msgs []openai.ChatCompletionMessage, tools []openai.Tool) []openai.ChatCompletionMessage {
	hasTools := len(tools) > 0
	sawSystem := false

	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)

	for _, msg := range msgs {
		switch msg.Role {
		case openai.ChatMessageRoleSystem:
			if hasTools && !sawSystem {
				msg.Content = msg.Content + "\n\n" + ToolSystemPrompt(m, tools)
			}
			sawSystem = true
			out = append(out, msg)

		case openai.ChatMessageRoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, msg)
				break
			}
			content := msg.Content
			if hasTools {
				for _, tc := range msg.ToolCalls {
					content += "\n" + EncodeToolCall(m, tc)
				}
			} else {
				names := make([]string, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					names[i] = tc.Function.Name
				}
				content += "\n\n[Called tools: " + strings.Join(names, ", ") + "]"
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			})

		case openai.ChatMessageRoleTool:
			var content string
			if hasTools {
				content = m.ResultStart + "[" + msg.Name + "]\n" + msg.Content + m.ResultEnd
			} else {
				content = "[Result from " + msg.Name + "]:\n" + msg.Content
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: content,
			})

		default:
			out = append(out, msg)
		}
	}

	if hasTools && !sawSystem {
		out = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: ToolSystemPrompt(m, tools),
		}}, out...)
	}

	return mergeAdjacentRoles(out)
}

// mergeAdjacentRoles collapses consecutive same-role messages into one.
// Some upstreams (notably Gemini-compatible endpoints) reject histories
// whose user/assistant roles do not alternate.
func mergeAdjacentRoles(msgs []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	if len(msgs) < 2 {
		return msgs
	}
	merged := msgs[:1]
	for _, msg := range msgs[1:] {
		last := &merged[len(merged)-1]
		if msg.Role == last.Role {
			last.Content = last.Content + "\n\n" + msg.Content
			continue
		}
		merged = append(merged, msg)
	}
	return merged
}
