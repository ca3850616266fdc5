package transcoder

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/toolbridge-go/proxy-api/internal/markers"
	"github.com/toolbridge-go/proxy-api/internal/protocol"
)

// Parser extracts delimited tool-call blocks from complete text blobs.
// A Parser is immutable after construction and safe for concurrent use.
type Parser struct {
	m  markers.Set
	re *regexp.Regexp
}

// NewParser compiles the envelope pattern for the given marker set. Name and
// arguments match non-greedily and may span multiple lines.
func NewParser(m markers.Set) *Parser {
	pattern := "(?s)" +
		regexp.QuoteMeta(m.TCStart) + `\s*` +
		regexp.QuoteMeta(m.NameStart) + `(.*?)` + regexp.QuoteMeta(m.NameEnd) + `\s*` +
		regexp.QuoteMeta(m.ArgsStart) + `(.*?)` + regexp.QuoteMeta(m.ArgsEnd) + `\s*` +
		regexp.QuoteMeta(m.TCEnd)
	return &Parser{m: m, re: regexp.MustCompile(pattern)}
}

// Markers returns the marker set the parser was built for.
func (p *Parser) Markers() markers.Set {
	return p.m
}

// Extract finds all well-formed tool-call blocks in text. It returns the
// calls in order of appearance and the residual text with every accepted
// block removed and trimmed. Blocks whose arguments are not valid JSON are
// not tool calls: they stay in the residual text verbatim.
func (p *Parser) Extract(text string) ([]protocol.ToolCall, string) {
	matches := p.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, strings.TrimSpace(text)
	}

	now := time.Now().UnixMilli()
	var calls []protocol.ToolCall
	var clean strings.Builder
	last := 0

	for i, loc := range matches {
		name := strings.TrimSpace(text[loc[2]:loc[3]])
		args := strings.TrimSpace(text[loc[4]:loc[5]])

		if !json.Valid([]byte(args)) {
			continue
		}

		calls = append(calls, protocol.ToolCall{
			ID:   fmt.Sprintf("call_%d_%d", now, i),
			Type: "function",
			Function: protocol.ToolCallFunction{
				Name:      name,
				Arguments: args,
			},
		})

		clean.WriteString(text[last:loc[0]])
		last = loc[1]
	}

	clean.WriteString(text[last:])
	return calls, strings.TrimSpace(clean.String())
}
