package services

import (
	"context"
	"sync"
	"time"

	"example.com/distribution/services/stockout/config"
	"example.com/distribution/services/stockout/internal/metrics"
	"example.com/distribution/services/stockout/internal/scan"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("scan session not found")

// SnapshotProvider loads the demand snapshot for an order.
type SnapshotProvider interface {
	DemandSnapshotForOrder(ctx context.Context, id uuid.UUID) (*scan.DemandSnapshot, error)
}

// LiveSession is one registered scan session plus the request-scoped
// context it was started with.
type LiveSession struct {
	Session    *scan.Session
	OrderID    *uuid.UUID
	UserID     uuid.UUID
	StartedAt  time.Time
	LastActive time.Time
}

// SessionService keeps the live scan sessions in memory, keyed by session
// id. The scan log is authoritative here until submission; nothing touches
// the database per scan.
type SessionService struct {
	snapshots SnapshotProvider
	metrics   *metrics.Metrics

	idleTTL       time.Duration
	sweepInterval time.Duration

	mu       sync.RWMutex
	sessions map[uuid.UUID]*LiveSession

	now func() time.Time
}

// NewSessionService creates a session registry.
func NewSessionService(snapshots SnapshotProvider, cfg config.SessionConfig, m *metrics.Metrics) *SessionService {
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}

	return &SessionService{
		snapshots:     snapshots,
		metrics:       m,
		idleTTL:       idleTTL,
		sweepInterval: sweepInterval,
		sessions:      make(map[uuid.UUID]*LiveSession),
		now:           time.Now,
	}
}

// StartSession creates and starts a session. A nil orderID starts a custom
// session with no demand snapshot.
func (s *SessionService) StartSession(ctx context.Context, orderID *uuid.UUID, userID uuid.UUID) (*LiveSession, error) {
	var snapshot *scan.DemandSnapshot
	if orderID != nil {
		var err error
		snapshot, err = s.snapshots.DemandSnapshotForOrder(ctx, *orderID)
		if err != nil {
			return nil, err
		}
	}

	session := scan.NewSession(snapshot)
	session.Start()

	now := s.now()
	live := &LiveSession{
		Session:    session,
		OrderID:    orderID,
		UserID:     userID,
		StartedAt:  now,
		LastActive: now,
	}

	s.mu.Lock()
	s.sessions[session.ID()] = live
	s.publishGauge()
	s.mu.Unlock()

	log.Info().
		Str("session_id", session.ID().String()).
		Bool("custom_mode", session.CustomMode()).
		Msg("scan session started")
	return live, nil
}

// Get returns a live session by id.
func (s *SessionService) Get(id uuid.UUID) (*LiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return live, nil
}

// HandleScan feeds one raw QR string into a session.
func (s *SessionService) HandleScan(id uuid.UUID, raw string) (scan.Outcome, error) {
	live, err := s.touch(id)
	if err != nil {
		return scan.Outcome{}, err
	}

	if s.metrics != nil {
		defer s.metrics.Timed(metrics.TimerScanValidation, time.Now())
	}
	outcome := live.Session.HandleScan(raw)

	if s.metrics != nil {
		switch {
		case outcome.Dropped:
			s.metrics.IncrementCounter(metrics.CounterScansDropped)
		case outcome.Result.Valid:
			s.metrics.IncrementCounter(metrics.CounterScansAccepted)
		default:
			s.metrics.IncrementCounter(metrics.CounterScansRejected)
		}
	}

	return outcome, nil
}

// Items returns the flat scan log and its aggregated lines.
func (s *SessionService) Items(id uuid.UUID) ([]scan.Event, []scan.AggregatedLine, error) {
	live, err := s.touch(id)
	if err != nil {
		return nil, nil, err
	}
	return live.Session.Events(), live.Session.Aggregated(), nil
}

// Clear empties a session's log, keeping the session id.
func (s *SessionService) Clear(id uuid.UUID) error {
	live, err := s.touch(id)
	if err != nil {
		return err
	}
	live.Session.Clear()
	log.Info().Str("session_id", id.String()).Msg("scan session cleared")
	return nil
}

// Reset empties a session's log and assigns a fresh session id. The
// registry is re-keyed and the new id returned.
func (s *SessionService) Reset(id uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sessions[id]
	if !ok {
		return uuid.Nil, ErrSessionNotFound
	}

	live.Session.Reset()
	live.LastActive = s.now()

	newID := live.Session.ID()
	delete(s.sessions, id)
	s.sessions[newID] = live

	log.Info().
		Str("session_id", id.String()).
		Str("new_session_id", newID.String()).
		Msg("scan session reset")
	return newID, nil
}

// Remove closes a session and drops it from the registry. Used after a
// successful submission.
func (s *SessionService) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sessions[id]
	if !ok {
		return
	}
	live.Session.Close()
	delete(s.sessions, id)
	s.publishGauge()
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunJanitor evicts idle sessions until the context is cancelled.
func (s *SessionService) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := s.Sweep(s.now())
			if evicted > 0 {
				log.Info().Int("evicted", evicted).Msg("idle scan sessions evicted")
			}
		}
	}
}

// Sweep evicts sessions idle past the TTL and returns how many went.
func (s *SessionService) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted int
	for id, live := range s.sessions {
		if now.Sub(live.LastActive) > s.idleTTL {
			live.Session.Close()
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.publishGauge()
	}
	return evicted
}

// touch returns the session and refreshes its idle clock.
func (s *SessionService) touch(id uuid.UUID) (*LiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	live.LastActive = s.now()
	return live, nil
}

// publishGauge reports the live session count. Callers hold s.mu.
func (s *SessionService) publishGauge() {
	if s.metrics != nil {
		s.metrics.SetGauge(metrics.GaugeActiveSessions, int64(len(s.sessions)))
	}
}
