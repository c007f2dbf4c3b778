package scan

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource records pause/resume calls and can run a hook inside Pause to
// simulate the scanner firing again mid-processing.
type fakeSource struct {
	mu      sync.Mutex
	paused  int
	resumed int
	onPause func()
}

func (f *fakeSource) Pause() {
	f.mu.Lock()
	f.paused++
	hook := f.onPause
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (f *fakeSource) Resume() {
	f.mu.Lock()
	f.resumed++
	f.mu.Unlock()
}

func (f *fakeSource) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused, f.resumed
}

type recordingFeedback struct {
	accepted []bool
	results  []Result
}

func (r *recordingFeedback) ScanOutcome(accepted bool, result Result) {
	r.accepted = append(r.accepted, accepted)
	r.results = append(r.results, result)
}

func rawPayload(design, lot, id string) string {
	return fmt.Sprintf(`{"Design":%q,"Lot":%q,"Unique Identifier":%q}`, design, lot, id)
}

func startedSession(snapshot *DemandSnapshot, opts ...Option) *Session {
	s := NewSession(snapshot, opts...)
	s.Start()
	return s
}

func TestSessionLifecycleStates(t *testing.T) {
	s := NewSession(nil)
	assert.Equal(t, StateIdle, s.State())

	// Scans before Start are dropped.
	out := s.HandleScan(rawPayload("A", "L1", "U1"))
	assert.True(t, out.Dropped)
	assert.Zero(t, s.Count())

	s.Start()
	assert.Equal(t, StateAwaitingScan, s.State())

	out = s.HandleScan(rawPayload("A", "L1", "U1"))
	require.False(t, out.Dropped)
	assert.True(t, out.Result.Valid)
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, StateAwaitingScan, s.State())

	s.Close()
	assert.Equal(t, StateClosed, s.State())
	out = s.HandleScan(rawPayload("A", "L1", "U2"))
	assert.True(t, out.Dropped)
	// Log stays readable after close.
	assert.Equal(t, 1, s.Count())
}

func TestSessionAcceptsAndAggregates(t *testing.T) {
	snapshot := &DemandSnapshot{Lines: []DemandLine{
		{Design: "A", Lot: "L1", OrderedQuantity: 3, FulfilledQuantity: 1},
	}}
	s := startedSession(snapshot)

	require.True(t, s.HandleScan(rawPayload("A", "L1", "U1")).Result.Valid)
	require.True(t, s.HandleScan(rawPayload("A", "L1", "U2")).Result.Valid)

	dup := s.HandleScan(rawPayload("A", "L1", "U1"))
	require.False(t, dup.Result.Valid)
	assert.Equal(t, ReasonDuplicate, dup.Result.Reason)

	over := s.HandleScan(rawPayload("A", "L1", "U3"))
	require.False(t, over.Result.Valid)
	assert.Equal(t, ReasonQuantityExceeded, over.Result.Reason)
	assert.Equal(t, 2, over.Result.Current)
	assert.Equal(t, 2, over.Result.Max)

	lines := s.Aggregated()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Count)
	assert.Equal(t, []string{"U1", "U2"}, lines[0].UniqueIdentifiers)
}

func TestSessionMalformedPayload(t *testing.T) {
	fb := &recordingFeedback{}
	s := startedSession(nil, WithFeedback(fb))

	out := s.HandleScan("definitely not json")
	require.False(t, out.Dropped)
	require.False(t, out.Result.Valid)
	assert.Equal(t, ReasonMalformedFormat, out.Result.Reason)
	assert.Zero(t, s.Count())

	// Missing fields are malformed too, distinct from the parse failure
	// only in how they are detected.
	out = s.HandleScan(`{"Design":"A","Lot":"","Unique Identifier":"U1"}`)
	require.False(t, out.Result.Valid)
	assert.Equal(t, ReasonMalformedFormat, out.Result.Reason)

	require.Len(t, fb.accepted, 2)
	assert.Equal(t, []bool{false, false}, fb.accepted)
}

func TestSessionPausesBeforeParsingAndAlwaysResumes(t *testing.T) {
	src := &fakeSource{}
	s := startedSession(nil, WithSource(src))

	s.HandleScan(rawPayload("A", "L1", "U1")) // valid
	s.HandleScan(rawPayload("A", "L1", "U1")) // duplicate
	s.HandleScan("garbage")                   // malformed

	paused, resumed := src.counts()
	assert.Equal(t, 3, paused)
	assert.Equal(t, 3, resumed, "every outcome must resume the source")
	assert.Equal(t, StateAwaitingScan, s.State())
}

func TestSessionReentrantCallbackIsDropped(t *testing.T) {
	src := &fakeSource{}
	s := startedSession(nil, WithSource(src))

	// The source hook fires a second callback while the first is still
	// being processed, before its pause-then-validate sequence resolves.
	var overlapped Outcome
	src.onPause = func() {
		hook := src.onPause
		src.onPause = nil
		defer func() { src.onPause = hook }()
		overlapped = s.HandleScan(rawPayload("A", "L1", "U-overlap"))
	}

	first := s.HandleScan(rawPayload("A", "L1", "U1"))

	require.False(t, first.Dropped)
	assert.True(t, first.Result.Valid)
	assert.True(t, overlapped.Dropped, "overlapping callback must be dropped, not queued")
	assert.Equal(t, 1, s.Count(), "exactly one of the two callbacks appends an event")

	// The dropped callback performed no validation and touched no state:
	// its payload is still acceptable afterwards.
	after := s.HandleScan(rawPayload("A", "L1", "U-overlap"))
	assert.True(t, after.Result.Valid)
}

func TestSessionValidatesAgainstCurrentLog(t *testing.T) {
	// Events admitted after session construction must be visible to later
	// validations; the validator sees the live log, not a stale capture.
	s := startedSession(nil)
	require.True(t, s.HandleScan(rawPayload("A", "L1", "U1")).Result.Valid)
	require.True(t, s.HandleScan(rawPayload("B", "L2", "U2")).Result.Valid)

	out := s.HandleScan(rawPayload("C", "L3", "U2"))
	require.False(t, out.Result.Valid)
	assert.Equal(t, ReasonDuplicate, out.Result.Reason)
}

func TestSessionClearKeepsID(t *testing.T) {
	s := startedSession(nil)
	require.True(t, s.HandleScan(rawPayload("A", "L1", "U1")).Result.Valid)

	id := s.ID()
	s.Clear()

	assert.Equal(t, id, s.ID())
	assert.Zero(t, s.Count())
	assert.Empty(t, s.Aggregated())

	// Cleared identifiers may be scanned again.
	assert.True(t, s.HandleScan(rawPayload("A", "L1", "U1")).Result.Valid)
}

func TestSessionResetAssignsNewID(t *testing.T) {
	s := startedSession(nil)
	require.True(t, s.HandleScan(rawPayload("A", "L1", "U1")).Result.Valid)

	id := s.ID()
	s.Reset()

	assert.NotEqual(t, id, s.ID())
	assert.Zero(t, s.Count())
}

func TestSessionCloseWaitsForInFlightScan(t *testing.T) {
	src := &fakeSource{}
	s := startedSession(nil, WithSource(src))

	inFlight := make(chan struct{})
	release := make(chan struct{})
	src.onPause = func() {
		close(inFlight)
		<-release
	}

	done := make(chan Outcome, 1)
	go func() { done <- s.HandleScan(rawPayload("A", "L1", "U1")) }()

	<-inFlight
	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	// Close must block while the scan is still in Processing.
	select {
	case <-closed:
		t.Fatal("Close returned while a scan was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	out := <-done
	<-closed

	require.False(t, out.Dropped)
	assert.True(t, out.Result.Valid)
	assert.Equal(t, StateClosed, s.State())

	// A log read after Close contains the scan the operator saw accepted.
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "U1", s.Events()[0].UniqueIdentifier)
}

func TestSessionIDConcurrentWithReset(t *testing.T) {
	s := startedSession(nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = s.ID()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Reset()
		}
	}()
	wg.Wait()

	assert.NotEqual(t, uuid.Nil, s.ID())
}

func TestSessionEventTimestamps(t *testing.T) {
	at := time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)
	s := startedSession(nil, WithClock(func() time.Time { return at }))

	out := s.HandleScan(rawPayload("A", "L1", "U1"))
	require.NotNil(t, out.Event)
	assert.Equal(t, at.UnixMilli(), out.Event.ScannedAt)
}

func TestSessionEventsReturnsCopy(t *testing.T) {
	s := startedSession(nil)
	require.True(t, s.HandleScan(rawPayload("A", "L1", "U1")).Result.Valid)

	events := s.Events()
	events[0].UniqueIdentifier = "tampered"

	assert.Equal(t, "U1", s.Events()[0].UniqueIdentifier)
}
