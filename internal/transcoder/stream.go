package transcoder

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/toolbridge-go/proxy-api/internal/protocol"
)

const ssePrefix = "data: "

// StreamTranscoder incrementally rewrites an upstream SSE token stream into
// a downstream chat.completion.chunk stream with structured tool-call
// deltas. Clean text is forwarded immediately unless the text held so far
// contains the first rune of TC_START; from then on it is held until a full
// TC_START appears or the stream ends. Once a delimiter opens, the block is buffered
// until the stream ends and then re-emitted as tool-call events.
//
// A StreamTranscoder serves exactly one request and is not safe for
// concurrent use.
type StreamTranscoder struct {
	parser    *Parser
	w         io.Writer
	flush     func()
	firstRune rune

	id      string
	created int64

	lineBuf   string
	pending   string
	buf       strings.Builder
	buffering bool
	ended     bool
	sentRole  bool
}

// NewStreamTranscoder creates a transcoder writing rewritten SSE frames to w.
// flush is called after every emitted frame; pass a no-op when the writer
// does not buffer.
func NewStreamTranscoder(p *Parser, w io.Writer, flush func()) *StreamTranscoder {
	if flush == nil {
		flush = func() {}
	}
	first, _ := utf8.DecodeRuneInString(p.m.TCStart)
	return &StreamTranscoder{
		parser:    p,
		w:         w,
		flush:     flush,
		firstRune: first,
		id:        "chatcmpl-" + strconv.FormatInt(time.Now().UnixMilli(), 10),
		created:   time.Now().Unix(),
	}
}

// Ended reports whether the terminal frames have been written.
func (t *StreamTranscoder) Ended() bool {
	return t.ended
}

// Feed consumes a chunk of upstream bytes. Complete lines are processed;
// the unterminated tail is carried into the next call.
func (t *StreamTranscoder) Feed(p []byte) error {
	t.lineBuf += string(p)
	for !t.ended {
		idx := strings.IndexByte(t.lineBuf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSuffix(t.lineBuf[:idx], "\r")
		t.lineBuf = t.lineBuf[idx+1:]
		if err := t.processLine(line); err != nil {
			return err
		}
	}
	return nil
}

// Finish handles upstream EOF. Any trailing partial line is processed, then
// the terminal sequence is emitted unless [DONE] already triggered it.
func (t *StreamTranscoder) Finish() error {
	if t.ended {
		return nil
	}
	if t.lineBuf != "" {
		line := strings.TrimSuffix(t.lineBuf, "\r")
		t.lineBuf = ""
		if err := t.processLine(line); err != nil {
			return err
		}
		if t.ended {
			return nil
		}
	}
	return t.terminal()
}

func (t *StreamTranscoder) processLine(line string) error {
	if line == "" {
		return nil
	}
	// Comments and keepalives pass silently.
	if !strings.HasPrefix(line, ssePrefix) {
		return nil
	}
	payload := line[len(ssePrefix):]
	if payload == "[DONE]" {
		return t.terminal()
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	// Only textual content participates in tool detection; other delta
	// fields are dropped.
	content := chunk.Choices[0].Delta.Content
	if content == "" {
		return nil
	}
	return t.consume(content)
}

// consume routes a content delta through the buffering state machine.
func (t *StreamTranscoder) consume(content string) error {
	if t.buffering {
		t.buf.WriteString(content)
		return nil
	}

	combined := t.pending + content
	if k := strings.Index(combined, t.parser.m.TCStart); k >= 0 {
		t.pending = ""
		t.buffering = true
		t.buf.WriteString(combined[k:])
		if k > 0 {
			return t.emitText(combined[:k])
		}
		return nil
	}

	// The combined text might still be the beginning of an in-progress
	// marker. Holding everything back whenever the first marker rune shows
	// up trades a little latency for never splitting a delimiter.
	if strings.ContainsRune(combined, t.firstRune) {
		t.pending = combined
		return nil
	}

	t.pending = ""
	if combined == "" {
		return nil
	}
	return t.emitText(combined)
}

// terminal flushes held text, parses any buffered block into tool-call
// deltas, emits the finish chunk and the [DONE] sentinel.
func (t *StreamTranscoder) terminal() error {
	t.ended = true

	if t.pending != "" && !t.buffering {
		if err := t.emitText(t.pending); err != nil {
			return err
		}
		t.pending = ""
	}

	finishReason := "stop"
	if buffered := t.buf.String(); buffered != "" {
		calls, residual := t.parser.Extract(buffered)
		if len(calls) > 0 {
			for i := range calls {
				idx := i
				calls[i].Index = &idx
				if err := t.emitDelta(protocol.Delta{ToolCalls: calls[i : i+1]}); err != nil {
					return err
				}
			}
			finishReason = "tool_calls"
		} else if residual != "" {
			if err := t.emitText(residual); err != nil {
				return err
			}
		}
	}

	if err := t.emitFinish(finishReason); err != nil {
		return err
	}

	if _, err := io.WriteString(t.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write [DONE]: %w", err)
	}
	t.flush()
	return nil
}

func (t *StreamTranscoder) emitText(text string) error {
	return t.emitDelta(protocol.Delta{Content: text})
}

func (t *StreamTranscoder) emitDelta(delta protocol.Delta) error {
	if !t.sentRole {
		delta.Role = "assistant"
		t.sentRole = true
	}
	return t.writeChunk(protocol.StreamChunk{
		ID:      t.id,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Choices: []protocol.StreamChoice{{Index: 0, Delta: delta}},
	})
}

func (t *StreamTranscoder) emitFinish(reason string) error {
	return t.writeChunk(protocol.StreamChunk{
		ID:      t.id,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Choices: []protocol.StreamChoice{{Index: 0, FinishReason: &reason}},
	})
}

func (t *StreamTranscoder) writeChunk(chunk protocol.StreamChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	t.flush()
	return nil
}
