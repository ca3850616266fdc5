package transcoder

import (
	"encoding/json"
)

// RewriteResponse runs the parser over choices[0].message.content of a
// complete upstream response. When delimited tool calls are present it
// attaches them as structured tool_calls, replaces the content with the
// residual text (null when empty) and sets finish_reason to "tool_calls".
// Responses without tool calls, and bodies the proxy cannot make sense of,
// pass through byte-identically.
func (p *Parser) RewriteResponse(body []byte) []byte {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return body
	}

	var choices []json.RawMessage
	if err := json.Unmarshal(top["choices"], &choices); err != nil || len(choices) == 0 {
		return body
	}

	var choice map[string]json.RawMessage
	if err := json.Unmarshal(choices[0], &choice); err != nil {
		return body
	}

	var message map[string]json.RawMessage
	if err := json.Unmarshal(choice["message"], &message); err != nil {
		return body
	}

	var content string
	if err := json.Unmarshal(message["content"], &content); err != nil {
		return body
	}

	calls, residual := p.Extract(content)
	if len(calls) == 0 {
		return body
	}

	callsJSON, err := json.Marshal(calls)
	if err != nil {
		return body
	}
	message["tool_calls"] = callsJSON
	if residual == "" {
		message["content"] = json.RawMessage("null")
	} else {
		contentJSON, err := json.Marshal(residual)
		if err != nil {
			return body
		}
		message["content"] = contentJSON
	}

	messageJSON, err := json.Marshal(message)
	if err != nil {
		return body
	}
	choice["message"] = messageJSON
	choice["finish_reason"] = json.RawMessage(`"tool_calls"`)

	choiceJSON, err := json.Marshal(choice)
	if err != nil {
		return body
	}
	choices[0] = choiceJSON

	choicesJSON, err := json.Marshal(choices)
	if err != nil {
		return body
	}
	top["choices"] = choicesJSON

	out, err := json.Marshal(top)
	if err != nil {
		return body
	}
	return out
}
