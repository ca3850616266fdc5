package transcoder

import (
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/toolbridge-go/proxy-api/internal/markers"
)

// ToolSystemPrompt renders the natural-language contract that teaches the
// model to emit tool calls as delimited text blocks. The markers in the
// exemplar are the live process markers, so the model's output is parseable
// by the response transcoders.
func ToolSystemPrompt(m markers.Set, tools []openai.Tool) string {
	var b strings.Builder

	b.WriteString("## Tool Invocation Protocol\n\n")
	b.WriteString("You can call the following tools:\n\n")

	exampleName := "tool_name"
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		if exampleName == "tool_name" {
			exampleName = tool.Function.Name
		}
		fmt.Fprintf(&b, "- %s", tool.Function.Name)
		if tool.Function.Description != "" {
			fmt.Fprintf(&b, ": %s", tool.Function.Description)
		}
		if tool.Function.Parameters != nil {
			if params, err := json.Marshal(tool.Function.Parameters); err == nil {
				fmt.Fprintf(&b, "\n  Parameters: %s", params)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("\nTo call a tool, emit a block in exactly this form:\n\n")
	fmt.Fprintf(&b, "%s\n%s%s%s\n%s{\"argument\": \"value\"}%s\n%s\n",
		m.TCStart,
		m.NameStart, exampleName, m.NameEnd,
		m.ArgsStart, m.ArgsEnd,
		m.TCEnd,
	)

	b.WriteString("\nRules:\n")
	b.WriteString("1. Tool calls must appear at the END of your response, after any explanatory text.\n")
	b.WriteString("2. Copy the delimiter characters verbatim; do not alter or translate them.\n")
	b.WriteString("3. Arguments must be valid JSON matching the tool's parameter schema.\n")
	b.WriteString("4. Emit exactly one tool per block; use separate blocks for multiple calls.\n")

	return b.String()
}
