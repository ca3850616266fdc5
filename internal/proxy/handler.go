package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/toolbridge-go/proxy-api/internal/config"
	"github.com/toolbridge-go/proxy-api/internal/logging"
	"github.com/toolbridge-go/proxy-api/internal/protocol"
	"github.com/toolbridge-go/proxy-api/internal/reqlog"
	"github.com/toolbridge-go/proxy-api/internal/transcoder"
)

// Headers copied from the inbound request to the upstream call.
var forwardedHeaders = []string{"Authorization", "x-api-key", "anthropic-version"}

const traceContentLimit = 32 * 1024

// Handler is the HTTP edge: it extracts the upstream URL from the request
// path, validates it, rewrites chat-completions bodies through the request
// transcoder and pipes the response back through the matching response
// transcoder.
type Handler struct {
	cfg    *config.Config
	parser *transcoder.Parser
	client *http.Client
	traces *reqlog.Logger
}

func NewHandler(cfg *config.Config, parser *transcoder.Parser, traces *reqlog.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		parser: parser,
		traces: traces,
		client: &http.Client{
			// No overall timeout: response bodies may stream for minutes.
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: cfg.Proxy.UpstreamTimeout,
				}).DialContext,
				ResponseHeaderTimeout: cfg.Proxy.UpstreamTimeout,
				ForceAttemptHTTP2:     true,
			},
		},
	}
}

// Proxy handles every request of the form /<absolute-upstream-url>.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	trace := h.traces.Begin()
	defer trace.Flush()

	upstream := extractUpstream(r)
	if upstream == "" {
		writeError(w, http.StatusForbidden, protocol.ErrTypeSecurity, "Access denied: Invalid upstream URL")
		return
	}
	if err := ValidateUpstream(r.Context(), upstream, h.cfg.Proxy.AllowLocalNet); err != nil {
		writeError(w, http.StatusForbidden, protocol.ErrTypeSecurity, "Access denied: "+err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.Proxy.MaxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrTypeServer, "Failed to read request body")
		return
	}
	if int64(len(body)) > h.cfg.Proxy.MaxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, protocol.ErrTypeServer, "Request body too large")
		return
	}
	trace.Phase("request_in", truncate(string(body)))

	isChat := strings.Contains(upstream, "/chat/completions")
	hasTools := false
	streaming := false

	if isChat && len(body) > 0 {
		if req, perr := protocol.ParseChatRequest(body); perr == nil {
			hasTools = req.HasTools()
			streaming = req.Stream
			req.Messages = transcoder.RewriteMessages(h.parser.Markers(), req.Messages, req.Tools)
			if rewritten, merr := req.Marshal(); merr == nil {
				body = rewritten
				trace.Phase("request_rewritten", truncate(string(body)))
			}
		}
		// Unparseable chat bodies pass through untouched; the upstream
		// produces the authoritative error.
	}

	resp, err := h.dispatch(r, upstream, body)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		logging.Error("upstream request failed", err, "upstream", upstream)
		writeError(w, http.StatusBadGateway, protocol.ErrTypeProxy, "Upstream request failed: "+err.Error())
		return
	}
	defer resp.Body.Close()
	trace.Phase("upstream_status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.mirrorUpstreamError(w, resp, trace)
		return
	}

	switch {
	case isChat && hasTools && streaming:
		h.streamTranscoded(r.Context(), w, resp, trace)
	case isChat && !streaming:
		h.respondTranscoded(w, resp, trace)
	default:
		h.pipe(w, resp)
	}
}

// dispatch sends the rewritten request upstream with the whitelisted header
// set.
func (h *Handler) dispatch(r *http.Request, upstream string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstream, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.client.Do(req)
}

// streamTranscoded runs the SSE stream through the streaming transcoder.
// Upstream errors or client disconnects mid-stream end the response without
// a synthetic finish chunk.
func (h *Handler) streamTranscoded(ctx context.Context, w http.ResponseWriter, resp *http.Response, trace *reqlog.Trace) {
	flusher, _ := w.(http.Flusher)
	flush := func() {}
	if flusher != nil {
		flush = flusher.Flush
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	st := transcoder.NewStreamTranscoder(h.parser, w, flush)
	buf := make([]byte, 32*1024)

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if ferr := st.Feed(buf[:n]); ferr != nil {
				logging.Debug("client write failed mid-stream", "error", ferr)
				return
			}
			if st.Ended() {
				break
			}
		}
		if err == io.EOF {
			if !st.Ended() {
				if ferr := st.Finish(); ferr != nil {
					logging.Debug("client write failed at stream end", "error", ferr)
				}
			}
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				logging.Warn("upstream stream broke", "error", err)
			}
			return
		}
	}
	trace.Phase("stream_complete", nil)
}

// respondTranscoded buffers a non-streaming chat response and runs the
// delimiter parser over it before answering the client.
func (h *Handler) respondTranscoded(w http.ResponseWriter, resp *http.Response, trace *reqlog.Trace) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, http.StatusBadGateway, protocol.ErrTypeProxy, "Failed to read upstream response")
		return
	}

	out := h.parser.RewriteResponse(body)
	trace.Phase("response_out", truncate(string(out)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(out)
}

// pipe copies upstream bytes through unchanged, flushing as they arrive so
// raw SSE passthrough stays incremental.
func (h *Handler) pipe(w http.ResponseWriter, resp *http.Response) {
	copyHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// mirrorUpstreamError relays a non-2xx upstream response verbatim.
func (h *Handler) mirrorUpstreamError(w http.ResponseWriter, resp *http.Response, trace *reqlog.Trace) {
	body, _ := io.ReadAll(resp.Body)
	trace.Phase("upstream_error", truncate(string(body)))

	copyHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

// extractUpstream pulls the absolute upstream URL out of the request URI.
// The query string belongs to the upstream and is preserved.
func extractUpstream(r *http.Request) string {
	raw := strings.TrimPrefix(r.RequestURI, "/")
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return ""
}

func copyHeaders(w http.ResponseWriter, resp *http.Response) {
	for name, values := range resp.Header {
		switch name {
		case "Content-Length", "Transfer-Encoding", "Connection":
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: protocol.ErrorDetail{Message: message, Type: errType},
	})
}

func truncate(s string) string {
	if len(s) <= traceContentLimit {
		return s
	}
	return s[:traceContentLimit] + "…[truncated]"
}
