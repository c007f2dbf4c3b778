package scan

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Source is the scanner delivering raw decoded strings. Pause must be
// effective before the next callback; Resume lifts it. Device lifecycle
// (start/stop/camera selection) is not this package's concern.
type Source interface {
	Pause()
	Resume()
}

// Feedback receives the outcome of every processed scan, for operator
// audio/visual cues.
type Feedback interface {
	ScanOutcome(accepted bool, result Result)
}

// Session states.
const (
	StateIdle int32 = iota
	StateAwaitingScan
	StateProcessing
	StateClosed
)

// Outcome reports what HandleScan did with one callback invocation.
type Outcome struct {
	// Dropped is true when the re-entrancy gate rejected the callback
	// before any parsing or validation.
	Dropped bool
	Result  Result
	Event   *Event
}

// Session owns one scanning workflow: the session id, the append-only scan
// log, and the gate between a high-frequency scan source and the pure
// validation path. A scanner can fire overlapping callbacks faster than one
// is processed; the state gate is checked-and-set atomically in the same
// call so a physical code can never be admitted twice.
type Session struct {
	id       uuid.UUID
	snapshot *DemandSnapshot
	source   Source
	feedback Feedback

	state atomic.Int32

	mu     sync.Mutex
	events []Event

	now func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithSource attaches the scan source to pause around processing.
func WithSource(src Source) Option {
	return func(s *Session) { s.source = src }
}

// WithFeedback attaches an outcome sink.
func WithFeedback(fb Feedback) Option {
	return func(s *Session) { s.feedback = fb }
}

// WithClock overrides the event timestamp clock.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates an idle session with a fresh id. A nil snapshot puts
// the session in custom mode. Call Start before delivering scans.
func NewSession(snapshot *DemandSnapshot, opts ...Option) *Session {
	s := &Session{
		id:       uuid.New(),
		snapshot: snapshot,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier. It changes only on Reset.
func (s *Session) ID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current state.
func (s *Session) State() int32 { return s.state.Load() }

// CustomMode reports whether the session runs without a demand snapshot.
func (s *Session) CustomMode() bool { return s.snapshot == nil }

// Snapshot returns the demand snapshot the session validates against, or
// nil in custom mode.
func (s *Session) Snapshot() *DemandSnapshot { return s.snapshot }

// Start makes the session accept scans.
func (s *Session) Start() {
	s.state.CompareAndSwap(StateIdle, StateAwaitingScan)
}

// HandleScan processes one raw callback from the source.
//
// The gate transition must happen synchronously, before anything that could
// yield: an overlapping callback arriving while one is in flight is dropped
// outright, with no parsing and no validation. The source is paused before
// parsing begins and resumed unconditionally on the way out, whatever the
// outcome, so a rejected scan never leaves the scanner stalled.
func (s *Session) HandleScan(raw string) Outcome {
	if !s.state.CompareAndSwap(StateAwaitingScan, StateProcessing) {
		return Outcome{Dropped: true}
	}

	if s.source != nil {
		s.source.Pause()
	}
	defer func() {
		if s.source != nil {
			s.source.Resume()
		}
		s.state.CompareAndSwap(StateProcessing, StateAwaitingScan)
	}()

	payload, err := DecodePayload(raw)
	if err != nil {
		result := invalid(ReasonMalformedFormat, "Invalid QR code format")
		s.report(false, result)
		return Outcome{Result: result}
	}

	// Validate against the log as it is right now, not a slice captured at
	// session construction.
	s.mu.Lock()
	result := Validate(payload, s.snapshot, s.events)
	if !result.Valid {
		s.mu.Unlock()
		s.report(false, result)
		return Outcome{Result: result}
	}

	ev := Event{
		Design:           payload.Design,
		Lot:              payload.Lot,
		UniqueIdentifier: payload.UniqueIdentifier,
		ScannedAt:        s.now().UnixMilli(),
	}
	s.events = append(s.events, ev)
	s.mu.Unlock()

	s.report(true, result)
	return Outcome{Result: result, Event: &ev}
}

// Events returns a copy of the scan log in admission order.
func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Aggregated returns the per-(design, lot) rollup of the current log.
func (s *Session) Aggregated() []AggregatedLine {
	return Aggregate(s.Events())
}

// Count returns the number of accepted scans.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Clear empties the log. The session id is unchanged and the session keeps
// accepting scans. Callers confirm destructive intent before calling.
func (s *Session) Clear() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

// Reset empties the log and assigns a fresh session id, for abandoning and
// restarting the whole workflow.
func (s *Session) Reset() {
	s.mu.Lock()
	s.events = nil
	s.id = uuid.New()
	s.mu.Unlock()
	s.state.CompareAndSwap(StateClosed, StateAwaitingScan)
}

// Close stops accepting scans. It waits for an in-flight HandleScan to
// finish before returning, so a caller that closes and then reads the log
// sees every accepted scan. The log stays readable for the submission steps
// that follow.
func (s *Session) Close() {
	for {
		st := s.state.Load()
		if st == StateClosed {
			return
		}
		if st == StateProcessing {
			runtime.Gosched()
			continue
		}
		if s.state.CompareAndSwap(st, StateClosed) {
			return
		}
	}
}

func (s *Session) report(accepted bool, result Result) {
	if s.feedback != nil {
		s.feedback.ScanOutcome(accepted, result)
	}
}
