package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/haasonsaas/agentrt/internal/agent/stream"
	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// traceEvent is the flattened wire shape every StreamEvent is reduced to
// before it hits the trace file, mirroring the teacher's flat AgentEvent
// struct (with its optional Tool/Stream sub-records) rather than carrying
// the full discriminated-union nesting of StreamEvent/stream.ProviderEvent
// into the trace format.
type traceEvent struct {
	Kind     StreamEventKind `json:"kind"`
	Sequence uint64          `json:"sequence"`
	Time     time.Time       `json:"time"`
	RunID    string          `json:"run_id,omitempty"`

	Messages   []blocks.Message `json:"messages,omitempty"`
	Message    *blocks.Message  `json:"message,omitempty"`
	StopReason blocks.StopReason `json:"stop_reason,omitempty"`

	ToolResult        json.RawMessage `json:"tool_result,omitempty"`
	ToolResultMessage *blocks.Message `json:"tool_result_message,omitempty"`

	ProviderEventKind stream.EventKind `json:"provider_event_kind,omitempty"`
	ProviderDeltaText string           `json:"provider_delta_text,omitempty"`

	Err string `json:"error,omitempty"`
}

// providerDeltaText extracts the human-legible text fragment of a
// ProviderEvent, when it carries one, for the trace's flattened view.
func providerDeltaText(ev stream.ProviderEvent) string {
	d, ok := ev.(stream.ContentBlockDeltaEvent)
	if !ok {
		return ""
	}
	switch delta := d.Delta.(type) {
	case stream.TextDelta:
		return delta.Text
	case stream.ReasoningDelta:
		return delta.Text
	case stream.ToolUseInputDelta:
		return delta.Input
	default:
		return ""
	}
}

func newTraceEvent(ev StreamEvent) (traceEvent, error) {
	t := traceEvent{Kind: ev.StreamKind()}

	switch e := ev.(type) {
	case BeforeInvocationStreamEvent:
		t.RunID = e.RunID
	case BeforeModelStreamEvent:
		t.Messages = e.Messages
	case ProviderStreamEvent:
		t.ProviderEventKind = e.Event.Kind()
		t.ProviderDeltaText = providerDeltaText(e.Event)
	case AfterModelStreamEvent:
		msg := e.Message
		t.Message = &msg
		t.StopReason = e.StopReason
	case BeforeToolsStreamEvent:
		msg := e.AssistantMessage
		t.Message = &msg
	case ToolResultStreamEvent:
		raw, err := json.Marshal(e.Result)
		if err != nil {
			return traceEvent{}, fmt.Errorf("trace: marshal tool result: %w", err)
		}
		t.ToolResult = raw
	case AfterToolsStreamEvent:
		msg := e.ToolResultMessage
		t.ToolResultMessage = &msg
	case AfterInvocationStreamEvent:
		t.RunID = e.RunID
		if e.Err != nil {
			t.Err = e.Err.Error()
		}
	default:
		return traceEvent{}, fmt.Errorf("trace: unknown stream event kind %q", ev.StreamKind())
	}

	return t, nil
}

// toStreamEvent reconstructs enough of the original StreamEvent for replay
// and validation; a ProviderStreamEvent round-trips as a MetadataEvent shell
// carrying only the original kind, since the trace never stored the full
// provider delta payload.
func (t traceEvent) toStreamEvent() (StreamEvent, error) {
	switch t.Kind {
	case SEKindBeforeInvocation:
		return BeforeInvocationStreamEvent{RunID: t.RunID}, nil
	case SEKindBeforeModel:
		return BeforeModelStreamEvent{Messages: t.Messages}, nil
	case SEKindProvider:
		return ProviderStreamEvent{Event: stream.MetadataEvent{}}, nil
	case SEKindAfterModel:
		var msg blocks.Message
		if t.Message != nil {
			msg = *t.Message
		}
		return AfterModelStreamEvent{Message: msg, StopReason: t.StopReason}, nil
	case SEKindBeforeTools:
		var msg blocks.Message
		if t.Message != nil {
			msg = *t.Message
		}
		return BeforeToolsStreamEvent{AssistantMessage: msg}, nil
	case SEKindToolResult:
		if len(t.ToolResult) == 0 {
			return ToolResultStreamEvent{}, nil
		}
		result, err := blocks.UnmarshalToolResultBlock(t.ToolResult)
		if err != nil {
			return nil, fmt.Errorf("trace: unmarshal tool result: %w", err)
		}
		return ToolResultStreamEvent{Result: result}, nil
	case SEKindAfterTools:
		var msg blocks.Message
		if t.ToolResultMessage != nil {
			msg = *t.ToolResultMessage
		}
		return AfterToolsStreamEvent{ToolResultMessage: msg}, nil
	case SEKindAfterInvocation:
		var err error
		if t.Err != "" {
			err = fmt.Errorf("%s", t.Err)
		}
		return AfterInvocationStreamEvent{RunID: t.RunID, Err: err}, nil
	default:
		return nil, fmt.Errorf("trace: unknown stream event kind %q", t.Kind)
	}
}

// TracePlugin writes StreamEvents to a JSONL file for debugging and replay.
// Each event is written as a single line, flushed immediately for crash
// safety.
type TracePlugin struct {
	mu       sync.Mutex
	writer   io.Writer
	file     *os.File // non-nil if we opened the file ourselves
	redactor Redactor
	header   *TraceHeader
	started  bool
	seq      uint64
}

// TraceHeader is the first line of a trace file, carrying versioning and
// run context.
type TraceHeader struct {
	Version     int       `json:"version"`
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	AppVersion  string    `json:"app_version,omitempty"`
	Environment string    `json:"environment,omitempty"`
}

// Redactor strips sensitive data from a StreamEvent before it is written,
// returning the (possibly copied) event to write in its place.
type Redactor func(StreamEvent) StreamEvent

// TraceOption configures a TracePlugin using the functional-options pattern.
type TraceOption func(*TracePlugin)

// WithRedactor sets a custom redactor.
func WithRedactor(r Redactor) TraceOption {
	return func(p *TracePlugin) { p.redactor = r }
}

// WithAppVersion sets the application version recorded in the trace header.
func WithAppVersion(version string) TraceOption {
	return func(p *TracePlugin) {
		if p.header != nil {
			p.header.AppVersion = version
		}
	}
}

// WithEnvironment sets the environment name recorded in the trace header.
func WithEnvironment(env string) TraceOption {
	return func(p *TracePlugin) {
		if p.header != nil {
			p.header.Environment = env
		}
	}
}

// NewTracePlugin constructs a plugin that writes JSONL events to w.
func NewTracePlugin(w io.Writer, runID string, opts ...TraceOption) *TracePlugin {
	p := &TracePlugin{
		writer: w,
		header: &TraceHeader{Version: 1, RunID: runID, StartedAt: time.Now()},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewTracePluginFile constructs a plugin that writes to the file at path,
// creating or truncating it. The caller must call Close when done.
func NewTracePluginFile(path string, runID string, opts ...TraceOption) (*TracePlugin, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trace: create file: %w", err)
	}
	p := NewTracePlugin(f, runID, opts...)
	p.file = f
	return p, nil
}

// OnEvent implements EventSink, writing ev as one JSONL line. Marshal
// errors are swallowed — tracing must never block or fail the run it is
// observing.
func (p *TracePlugin) OnEvent(ctx context.Context, ev StreamEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.started = true
		p.writeHeader()
	}

	if p.redactor != nil {
		ev = p.redactor(ev)
	}

	wire, err := newTraceEvent(ev)
	if err != nil {
		return
	}
	p.seq++
	wire.Sequence = p.seq
	wire.Time = time.Now()

	p.writeLine(wire)
}

func (p *TracePlugin) writeHeader() {
	data, err := json.Marshal(p.header)
	if err != nil {
		return
	}
	p.writeRaw(data)
}

func (p *TracePlugin) writeLine(wire traceEvent) {
	data, err := json.Marshal(wire)
	if err != nil {
		return
	}
	p.writeRaw(data)
}

func (p *TracePlugin) writeRaw(data []byte) {
	if _, err := p.writer.Write(data); err != nil {
		return
	}
	if _, err := p.writer.Write([]byte("\n")); err != nil {
		return
	}
	if p.file != nil {
		_ = p.file.Sync()
	}
}

// Close closes the underlying file if NewTracePluginFile opened it.
func (p *TracePlugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// DefaultRedactor replaces every tool result's content with a fixed
// placeholder, leaving streamed text untouched since it is the primary
// debugging signal a trace exists to capture.
func DefaultRedactor(ev StreamEvent) StreamEvent {
	if tr, ok := ev.(ToolResultStreamEvent); ok {
		tr.Result.Content = blocks.ContentBlockList{blocks.ToolResultText{Text: "[REDACTED]"}}
		return tr
	}
	return ev
}

// TraceReader reads StreamEvents from a JSONL trace file for replay or
// analysis.
type TraceReader struct {
	decoder *json.Decoder
	header  *TraceHeader
}

// NewTraceReader reads and validates the header, then returns a reader
// positioned at the first event line.
func NewTraceReader(r io.Reader) (*TraceReader, error) {
	decoder := json.NewDecoder(r)

	var header TraceHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("trace: read header: %w", err)
	}
	if header.Version != 1 {
		return nil, fmt.Errorf("trace: unsupported version %d", header.Version)
	}

	return &TraceReader{decoder: decoder, header: &header}, nil
}

// Header returns the trace's run metadata.
func (r *TraceReader) Header() *TraceHeader { return r.header }

// ReadEvent reads the next event, returning io.EOF once exhausted.
func (r *TraceReader) ReadEvent() (StreamEvent, uint64, time.Time, error) {
	var wire traceEvent
	if err := r.decoder.Decode(&wire); err != nil {
		return nil, 0, time.Time{}, err
	}
	ev, err := wire.toStreamEvent()
	if err != nil {
		return nil, 0, time.Time{}, err
	}
	return ev, wire.Sequence, wire.Time, nil
}

// EventSink receives StreamEvents as a run progresses — TracePlugin and
// StatsCollector both implement it, and TraceReplayer emits to one during
// replay.
type EventSink interface {
	OnEvent(ctx context.Context, ev StreamEvent)
}

// CallbackSink adapts a plain function to EventSink.
type CallbackSink struct {
	fn func(context.Context, StreamEvent)
}

// NewCallbackSink wraps fn as an EventSink.
func NewCallbackSink(fn func(context.Context, StreamEvent)) *CallbackSink {
	return &CallbackSink{fn: fn}
}

// OnEvent implements EventSink.
func (s *CallbackSink) OnEvent(ctx context.Context, ev StreamEvent) { s.fn(ctx, ev) }

// RunStats tallies the events of one run, computed by StatsCollector or
// ReplayToStats.
type RunStats struct {
	RunID          string   `json:"run_id"`
	ModelCallCount int      `json:"model_call_count"`
	ToolCallCount  int      `json:"tool_call_count"`
	ToolErrorCount int      `json:"tool_error_count"`
	Interrupted    bool     `json:"interrupted"`
	Err            string   `json:"error,omitempty"`
	Errors         []string `json:"validation_errors,omitempty"`
}

// StatsCollector is an EventSink that accumulates RunStats from a live or
// replayed event stream.
type StatsCollector struct {
	mu    sync.Mutex
	stats RunStats
}

// NewStatsCollector constructs a collector bound to runID.
func NewStatsCollector(runID string) *StatsCollector {
	return &StatsCollector{stats: RunStats{RunID: runID}}
}

// OnEvent implements EventSink.
func (c *StatsCollector) OnEvent(ctx context.Context, ev StreamEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case AfterModelStreamEvent:
		c.stats.ModelCallCount++
	case ToolResultStreamEvent:
		c.stats.ToolCallCount++
		if e.Result.Status == blocks.ToolResultError {
			c.stats.ToolErrorCount++
		}
	case AfterInvocationStreamEvent:
		if e.Err != nil {
			c.stats.Err = e.Err.Error()
		}
	}
}

// Stats returns a snapshot of the accumulated counters.
func (c *StatsCollector) Stats() *RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	return &s
}

// ReplayOption configures a TraceReplayer using the functional-options
// pattern.
type ReplayOption func(*TraceReplayer)

// WithSpeed sets the replay speed multiplier; 1.0 is real-time, 0 (the
// default) replays as fast as possible.
func WithSpeed(speed float64) ReplayOption {
	return func(r *TraceReplayer) { r.speed = speed }
}

// WithSequenceRange limits replay to events within [from, to] inclusive;
// zero means unbounded on that side.
func WithSequenceRange(from, to uint64) ReplayOption {
	return func(r *TraceReplayer) { r.fromSeq, r.toSeq = from, to }
}

// TraceReplayer replays a trace file's events into an EventSink, honoring
// an optional speed and sequence-range filter.
type TraceReplayer struct {
	reader  *TraceReader
	sink    EventSink
	speed   float64
	fromSeq uint64
	toSeq   uint64
}

// NewTraceReplayer constructs a replayer reading from reader and emitting
// to sink.
func NewTraceReplayer(reader *TraceReader, sink EventSink, opts ...ReplayOption) *TraceReplayer {
	r := &TraceReplayer{reader: reader, sink: sink}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayStats summarizes one Replay call.
type ReplayStats struct {
	Header        *TraceHeader
	EventCount    int
	FirstSequence uint64
	LastSequence  uint64
	Errors        []string
}

// Valid reports whether the trace passed structural validation.
func (s *ReplayStats) Valid() bool { return len(s.Errors) == 0 }

// Replay plays every event within the configured range to the sink,
// pacing them per Speed, and returns validation stats over the full
// replayed sequence.
func (r *TraceReplayer) Replay(ctx context.Context) (*ReplayStats, error) {
	stats := &ReplayStats{Header: r.reader.Header()}

	var firstKind, lastKind StreamEventKind
	var lastTime time.Time
	seen := 0

	for {
		ev, seq, t, err := r.reader.ReadEvent()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}

		if r.fromSeq > 0 && seq < r.fromSeq {
			continue
		}
		if r.toSeq > 0 && seq > r.toSeq {
			break
		}

		if r.speed > 0 && !lastTime.IsZero() && !t.IsZero() {
			delay := t.Sub(lastTime)
			if delay > 0 {
				scaled := time.Duration(float64(delay) / r.speed)
				select {
				case <-time.After(scaled):
				case <-ctx.Done():
					return stats, ctx.Err()
				}
			}
		}
		lastTime = t

		r.sink.OnEvent(ctx, ev)
		stats.EventCount++
		if seen == 0 {
			firstKind = ev.StreamKind()
			stats.FirstSequence = seq
		}
		lastKind = ev.StreamKind()
		stats.LastSequence = seq
		seen++
	}

	stats.Errors = validateTrace(seen, firstKind, lastKind)
	return stats, nil
}

// validateTrace checks the structural invariants a well-formed trace must
// satisfy: it opens with a before_invocation event and closes with an
// after_invocation event.
func validateTrace(count int, first, last StreamEventKind) []string {
	var errs []string
	if count == 0 {
		return append(errs, "trace has no events")
	}
	if first != SEKindBeforeInvocation {
		errs = append(errs, "first event should be before_invocation")
	}
	if last != SEKindAfterInvocation {
		errs = append(errs, "last event should be after_invocation")
	}
	return errs
}

// ReplayToStats replays a trace through a StatsCollector and returns the
// computed statistics.
func ReplayToStats(reader *TraceReader) (*RunStats, error) {
	collector := NewStatsCollector(reader.Header().RunID)
	replayer := NewTraceReplayer(reader, collector)
	if _, err := replayer.Replay(context.Background()); err != nil {
		return nil, err
	}
	return collector.Stats(), nil
}
