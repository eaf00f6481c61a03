// Package interrupt implements the pause/resume protocol that lets a tool
// or hook pause the agent loop with a named question and later resume it
// deterministically with a response. Grounded on the teacher's
// internal/agent/approval.go request/store/decision shape, re-purposed from
// "human approval of one tool call" to the fuller general-purpose pause
// primitive: any tool or BeforeToolCallEvent hook can raise one.
package interrupt

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/haasonsaas/agentrt/pkg/blocks"
)

// ErrInterruptRaised is the sentinel the loop catches to pause a cycle,
// analogous to context.Canceled — a control-flow signal, not a fault.
var ErrInterruptRaised = errors.New("interrupt: raised")

// ErrUnknownInterruptID is returned by Resume when a response references an
// ID the state has never seen.
var ErrUnknownInterruptID = errors.New("interrupt: unknown id in resume response")

// ErrResumeWithStructuredOutput is returned by Resume when the agent has a
// structured-output schema configured; the two features are mutually
// exclusive per the protocol.
var ErrResumeWithStructuredOutput = errors.New("interrupt: resume is incompatible with a structured-output schema")

// ErrNoInterruptFunc is returned by a Func obtained from FromContext when no
// loop attached one — e.g. a tool invoked directly in a unit test.
var ErrNoInterruptFunc = errors.New("interrupt: no interrupt function in context")

// RaisedError carries the ID of the interrupt that paused the loop.
type RaisedError struct {
	ID string
}

func (e *RaisedError) Error() string { return fmt.Sprintf("interrupt: raised %s", e.ID) }
func (e *RaisedError) Is(target error) bool { return target == ErrInterruptRaised }

// Interrupt is one named pause point awaiting (or holding) a response.
type Interrupt struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Reason   string          `json:"reason,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Resolved reports whether a response has been written for this interrupt.
func (i *Interrupt) Resolved() bool { return i != nil && i.Response != nil }

// State is the pause/resume state an Agent owns across a cycle and its
// eventual resume. Guarded by a mutex even though §5 assigns it to a single
// scheduling unit, mirroring the defensive guarding the teacher applies to
// ApprovalChecker.
type State struct {
	mu         sync.Mutex
	Activated  bool
	Interrupts map[string]*Interrupt
	// Context holds tool results already collected for the in-flight turn,
	// keyed by tool-use ID, so a resumed cycle can skip re-running them.
	Context map[string]json.RawMessage
	// pendingAssistant is the model message that requested the tool uses
	// which raised the interrupt. A resumed cycle replays against it
	// instead of calling the model again, per the replay contract.
	pendingAssistant *blocks.Message
}

// NewState constructs an empty, non-activated interrupt state.
func NewState() *State {
	return &State{
		Interrupts: make(map[string]*Interrupt),
		Context:    make(map[string]json.RawMessage),
	}
}

// DeriveID computes the deterministic `v1:<origin>:<stableKey>:<hex(sha256(...))>`
// ID from DESIGN NOTES. The hash folds in ordinal and input so repeated calls
// at the same logical pause point (same origin/stableKey/ordinal/input)
// always yield the same ID, which is what makes replay idempotent.
func DeriveID(origin, stableKey string, ordinal int, input []byte) string {
	h := sha256.New()
	h.Write([]byte(origin))
	h.Write([]byte(stableKey))
	var ordBuf [8]byte
	binary.BigEndian.PutUint64(ordBuf[:], uint64(ordinal))
	h.Write(ordBuf[:])
	h.Write(input)
	sum := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("v1:%s:%s:%s", origin, stableKey, sum)
}

// Raise computes the ID for this pause point and either returns the stored
// response (idempotent replay on a resumed cycle) or records a fresh
// interrupt and returns a *RaisedError for the caller to propagate.
func (s *State) Raise(origin, name, reason, stableKey string, ordinal int, input []byte) (json.RawMessage, error) {
	id := DeriveID(origin, stableKey, ordinal, input)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.Interrupts[id]; ok && existing.Resolved() {
		return existing.Response, nil
	}
	if _, ok := s.Interrupts[id]; !ok {
		s.Interrupts[id] = &Interrupt{ID: id, Name: name, Reason: reason}
	}
	s.Activated = true
	return nil, &RaisedError{ID: id}
}

// ResumeItem is one entry of the caller-supplied resume payload.
type ResumeItem struct {
	InterruptID string
	Response    json.RawMessage
}

// Resume validates and applies a batch of responses. It never clears state
// itself — the loop clears it only once the replayed cycle fully succeeds.
func (s *State) Resume(items []ResumeItem, structuredOutputConfigured bool) error {
	if structuredOutputConfigured {
		return ErrResumeWithStructuredOutput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if _, ok := s.Interrupts[item.InterruptID]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInterruptID, item.InterruptID)
		}
	}
	for _, item := range items {
		s.Interrupts[item.InterruptID].Response = item.Response
	}
	return nil
}

// Clear resets the state to its zero-value condition, called by the loop
// after a resumed cycle completes without raising again.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Activated = false
	s.Interrupts = make(map[string]*Interrupt)
	s.Context = make(map[string]json.RawMessage)
	s.pendingAssistant = nil
}

// SaveToolResult records a tool result collected during a turn that later
// paused, so a resumed cycle can reuse it instead of re-running the tool.
func (s *State) SaveToolResult(toolUseID string, result json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Context[toolUseID] = result
}

// ToolResult returns a previously saved tool result, if any.
func (s *State) ToolResult(toolUseID string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Context[toolUseID]
	return r, ok
}

// SavePendingAssistant records the assistant message whose tool uses raised
// the interrupt, so a resumed cycle can replay against it without a second
// model call.
func (s *State) SavePendingAssistant(msg blocks.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := msg
	s.pendingAssistant = &m
}

// PendingAssistant returns the assistant message saved by SavePendingAssistant,
// if any.
func (s *State) PendingAssistant() (blocks.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingAssistant == nil {
		return blocks.Message{}, false
	}
	return *s.pendingAssistant, true
}

// Snapshot returns a point-in-time, read-only copy of the pending interrupts
// suitable for AgentResult.Interrupts.
func (s *State) Snapshot() []Interrupt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Interrupt, 0, len(s.Interrupts))
	for _, i := range s.Interrupts {
		out = append(out, *i)
	}
	return out
}
