// Package sse consumes server-sent event streams from the MCP server's
// streaming endpoints. A Reader opens streams; each Stream decodes the
// wire into Event records, dispatches them to registered handlers, and
// reconnects with exponential backoff until its attempt budget runs out.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	gosse "github.com/tmaxmax/go-sse"

	"mcpagent/internal/httpkit"
)

const (
	defaultReconnectDelay = time.Second
	defaultMaxReconnects  = 5
	defaultMaxEventSize   = 1 << 20
)

// Handler consumes one decoded event. Handlers run on the stream's
// reader goroutine; a panic is logged and does not abort the stream.
type Handler func(Event)

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	// BaseURL is the MCP server root; stream endpoints are appended.
	BaseURL string

	// ReconnectDelay is the backoff base. The wait before attempt n is
	// ReconnectDelay * 2^n. Zero means one second.
	ReconnectDelay time.Duration

	// MaxReconnects bounds reconnection attempts per stream. Zero means
	// the default of five.
	MaxReconnects int

	// CallTimeout bounds the whole stream including reconnects. Zero
	// means no overall bound beyond the caller's context.
	CallTimeout time.Duration

	// MaxEventSize bounds a single wire event. Zero means 1 MiB.
	MaxEventSize int

	// Logger is the structured logger for stream diagnostics.
	Logger *slog.Logger
}

// Reader opens SSE streams against the MCP server. It carries the
// process-wide handler sets; per-stream handlers are passed to Open.
type Reader struct {
	baseURL        string
	httpClient     *http.Client
	reconnectDelay time.Duration
	maxReconnects  int
	callTimeout    time.Duration
	maxEventSize   int
	logger         *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewReader creates a Reader for the given config. The underlying HTTP
// client has no response timeout since streams stay open indefinitely.
func NewReader(cfg ReaderConfig) *Reader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	maxReconnects := cfg.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = defaultMaxReconnects
	}
	maxEventSize := cfg.MaxEventSize
	if maxEventSize <= 0 {
		maxEventSize = defaultMaxEventSize
	}

	return &Reader{
		baseURL:        trimSlash(cfg.BaseURL),
		httpClient:     httpkit.NewClient(httpkit.WithTimeout(0)),
		reconnectDelay: delay,
		maxReconnects:  maxReconnects,
		callTimeout:    cfg.CallTimeout,
		maxEventSize:   maxEventSize,
		logger:         logger,
		handlers:       make(map[string][]Handler),
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// RegisterHandler adds a process-wide handler for the given event type.
// It applies to every stream opened after (and concurrently with) the
// registration.
func (r *Reader) RegisterHandler(eventType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = append(r.handlers[eventType], h)
}

// Stream is one open SSE subscription. Events arrive on the Events
// channel; the channel closes when the stream completes, exhausts its
// reconnection budget, or is closed.
type Stream struct {
	sctx     *StreamContext
	params   url.Values
	handlers map[string][]Handler
	events   chan Event
	cancel   context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// Events returns the channel of decoded records.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Context returns the stream's bookkeeping: state, last event id,
// attempt counters.
func (s *Stream) Context() *StreamContext {
	return s.sctx
}

// Err returns the terminal error, if any. It is meaningful once the
// Events channel has closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the stream. It is idempotent and safe to call from any
// goroutine; the reader goroutine closes the underlying response body
// on its way out.
func (s *Stream) Close() {
	s.closeOnce.Do(s.cancel)
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Stream) deliver(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Open starts a stream against the given endpoint. The returned Stream
// is live immediately; consume its Events channel. handlers, if
// non-nil, are invoked for matching event types on this stream only.
func (r *Reader) Open(ctx context.Context, endpoint string, params url.Values, handlers map[string]Handler) *Stream {
	var cancel context.CancelFunc
	if r.callTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	perStream := make(map[string][]Handler, len(handlers))
	for eventType, h := range handlers {
		perStream[eventType] = []Handler{h}
	}

	st := &Stream{
		sctx: &StreamContext{
			id:            uuid.NewString(),
			endpoint:      endpoint,
			maxReconnects: r.maxReconnects,
		},
		params:   params,
		handlers: perStream,
		events:   make(chan Event, 16),
		cancel:   cancel,
	}

	go r.run(ctx, st)
	return st
}

// StreamTool opens a stream for a single tool execution with live
// progress events via GET /stream/tools/{name}. Arguments are carried
// as query parameters; non-string values are JSON encoded.
func (r *Reader) StreamTool(ctx context.Context, name string, args map[string]any, handlers map[string]Handler) *Stream {
	params := url.Values{}
	for k, v := range args {
		switch vv := v.(type) {
		case string:
			params.Set(k, vv)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				params.Set(k, fmt.Sprint(v))
			} else {
				params.Set(k, string(data))
			}
		}
	}
	return r.Open(ctx, "/stream/tools/"+name, params, handlers)
}

// run drives the connect/consume/reconnect loop until the stream
// completes, the context ends, or the attempt budget is exhausted.
func (r *Reader) run(ctx context.Context, st *Stream) {
	defer st.cancel()
	defer close(st.events)

	sctx := st.sctx
	for {
		err := r.consume(ctx, st)
		if err == nil {
			sctx.setState(StreamCompleted)
			return
		}
		if ctx.Err() != nil {
			sctx.setState(StreamError)
			st.setErr(ctx.Err())
			return
		}

		sctx.setState(StreamError)
		r.logger.Warn("stream interrupted",
			"stream_id", sctx.ID(),
			"endpoint", sctx.Endpoint(),
			"attempt", sctx.Attempts(),
			"error", err,
		)

		// One error record per failed attempt, then either backoff or
		// the terminal exhaustion record.
		st.deliver(ctx, Event{
			Type:     "error",
			Data:     map[string]any{"error": err.Error(), "reconnect_attempt": sctx.Attempts()},
			StreamID: sctx.ID(),
		})

		if !sctx.bumpAttempts() {
			exhausted := &StreamExhaustedError{Endpoint: sctx.Endpoint(), Attempts: sctx.Attempts()}
			st.setErr(exhausted)
			st.deliver(ctx, Event{Type: "error", Data: exhausted, StreamID: sctx.ID()})
			r.logger.Error("stream reconnection budget exhausted",
				"stream_id", sctx.ID(),
				"endpoint", sctx.Endpoint(),
				"attempts", sctx.Attempts(),
			)
			return
		}

		delay := r.reconnectDelay * (1 << sctx.Attempts())
		r.logger.Debug("stream reconnecting", "stream_id", sctx.ID(), "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			st.setErr(ctx.Err())
			return
		}
	}
}

// consume performs one connection attempt and drains events until the
// stream ends or fails.
func (r *Reader) consume(ctx context.Context, st *Stream) error {
	sctx := st.sctx
	sctx.setState(StreamConnecting)

	u := r.baseURL + sctx.Endpoint()
	if len(st.params) > 0 {
		u += "?" + st.params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if id := sctx.LastEventID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 8<<10)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}

	sctx.setState(StreamConnected)
	if id := resp.Header.Get("X-Stream-ID"); id != "" {
		sctx.setID(id)
	}

	cfg := &gosse.ReadConfig{MaxEventSize: r.maxEventSize}
	for ev, err := range gosse.Read(resp.Body, cfg) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", err)
		}

		if ev.LastEventID != "" {
			sctx.setLastEventID(ev.LastEventID)
		}
		sctx.setState(StreamStreaming)
		sctx.countEvent()

		record := Event{
			Type:     eventType(ev.Type),
			Data:     decodeData(ev.Data),
			ID:       ev.LastEventID,
			StreamID: sctx.ID(),
		}

		r.dispatch(st, record)
		if !st.deliver(ctx, record) {
			return ctx.Err()
		}
	}

	return nil
}

// dispatch delivers a record to the stream's handlers, then the
// process-wide ones. A panicking handler never stops delivery.
func (r *Reader) dispatch(st *Stream, ev Event) {
	for _, h := range st.handlers[ev.Type] {
		r.invoke(h, ev, "stream")
	}

	r.mu.RLock()
	global := r.handlers[ev.Type]
	r.mu.RUnlock()
	for _, h := range global {
		r.invoke(h, ev, "global")
	}
}

func (r *Reader) invoke(h Handler, ev Event, scope string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("event handler panicked",
				"scope", scope,
				"event", ev.Type,
				"panic", p,
			)
		}
	}()
	h(ev)
}

// eventType maps the wire's default (empty) type to "message".
func eventType(t string) string {
	if t == "" {
		return "message"
	}
	return t
}

// decodeData parses structured payloads and falls back to the raw
// string. Malformed JSON is never an error on this path.
func decodeData(data string) any {
	if data == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return data
	}
	return v
}
