package polls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livepoll/backend/internal/clock"
	"github.com/livepoll/backend/internal/ledger"
	"github.com/livepoll/backend/internal/models"
)

// Realtime event names pushed to connected clients.
const (
	EventResults   = "poll_results"
	EventClosed    = "poll_closed"
	EventCountdown = "countdown"
)

// HubBroadcaster is implemented by realtime.Hub.
type HubBroadcaster interface {
	BroadcastAndPublish(event string, payload interface{})
}

// SimulatedVote describes a vote recorded on behalf of a simulated external voter.
type SimulatedVote struct {
	Identity string              `json:"identity"`
	OptionID string              `json:"option_id"`
	Snapshot models.PollSnapshot `json:"snapshot"`
}

// Engine owns one poll and is the only writer of its counts. All mutations run under
// mu, so a ledger write and the matching count increment are never interleaved with
// another vote.
type Engine struct {
	mu      sync.Mutex
	poll    *models.Poll
	ledger  ledger.Ledger
	clock   clock.Clock
	hub     HubBroadcaster
	logger  *zap.Logger
	metrics *Metrics
	onClose []func()
}

// NewEngine creates an engine for poll. hub may be nil.
func NewEngine(poll *models.Poll, l ledger.Ledger, c clock.Clock, hub HubBroadcaster, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.System{}
	}
	return &Engine{
		poll:   poll,
		ledger: l,
		clock:  c,
		hub:    hub,
		logger: logger.With(zap.String("poll_id", poll.ID)),
	}
}

// SetMetrics attaches metrics. Call before the engine is shared.
func (e *Engine) SetMetrics(m *Metrics) {
	e.metrics = m
	m.setOpen(e.IsActive())
}

// OnClose registers fn to run once the poll closes, whatever closed it. fn runs
// outside the engine lock and must not block.
func (e *Engine) OnClose(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClose = append(e.onClose, fn)
}

// PollID returns the ID of the poll this engine owns.
func (e *Engine) PollID() string {
	return e.poll.ID
}

// LoadSession probes the ledger for an existing vote by identity. It never writes.
func (e *Engine) LoadSession(ctx context.Context, identity, pollID string) (models.VotingSession, error) {
	if identity == "" {
		return models.VotingSession{}, ErrNoIdentity
	}
	if pollID != e.poll.ID {
		return models.VotingSession{}, ErrPollNotFound
	}
	session := models.VotingSession{Identity: identity, PollID: pollID}
	rec, err := e.ledger.Get(ctx, identity, pollID)
	if err != nil {
		return session, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if rec != nil {
		session.HasVoted = true
		session.OptionID = rec.OptionID
	}
	return session, nil
}

// SubmitVote records session's vote for optionID. Checks run in a fixed order:
// already voted, poll closed, unknown option. The ledger write comes before the count
// increment; if the write fails nothing is counted.
func (e *Engine) SubmitVote(ctx context.Context, session *models.VotingSession, pollID, optionID string) (models.PollSnapshot, error) {
	snap, closed, err := e.submitVote(ctx, session, pollID, optionID)
	var identity string
	if session != nil {
		identity = session.Identity
	}
	if closed {
		e.afterClose(snap)
	}
	if err != nil {
		e.metrics.rejected(err)
		if errors.Is(err, ErrUnknownOption) {
			e.logger.Warn("vote for unknown option", zap.String("option_id", optionID), zap.String("identity", identity))
		}
		if errors.Is(err, ErrPersistence) {
			e.logger.Error("vote ledger write failed", zap.Error(err), zap.String("identity", identity))
		}
		return models.PollSnapshot{}, err
	}

	e.metrics.accepted()
	e.logger.Debug("vote accepted", zap.String("identity", identity), zap.String("option_id", optionID))
	e.broadcast(EventResults, ComputeResults(snap))
	return snap, nil
}

func (e *Engine) submitVote(ctx context.Context, session *models.VotingSession, pollID, optionID string) (models.PollSnapshot, bool, error) {
	if session == nil || session.Identity == "" {
		return models.PollSnapshot{}, false, ErrNoIdentity
	}
	if pollID != e.poll.ID {
		return models.PollSnapshot{}, false, ErrPollNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if session.HasVoted {
		return models.PollSnapshot{}, false, ErrAlreadyVoted
	}
	now := e.clock.Now()
	closed := e.expireLocked(now)
	if !e.poll.IsActive {
		return e.poll.Snapshot(), closed, ErrPollClosed
	}
	if !e.poll.HasOption(optionID) {
		return models.PollSnapshot{}, closed, ErrUnknownOption
	}

	rec := models.VoteRecord{PollID: pollID, OptionID: optionID, VotedAt: now}
	if err := e.ledger.Put(ctx, session.Identity, pollID, rec); err != nil {
		if errors.Is(err, ledger.ErrVoteExists) {
			// Another client of the same identity won the race; refresh the session.
			session.HasVoted = true
			if existing, getErr := e.ledger.Get(ctx, session.Identity, pollID); getErr == nil && existing != nil {
				session.OptionID = existing.OptionID
			}
			return models.PollSnapshot{}, closed, ErrAlreadyVoted
		}
		return models.PollSnapshot{}, closed, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := e.poll.RecordVote(optionID); err != nil {
		// Unreachable: the option was checked under the same lock.
		return models.PollSnapshot{}, closed, err
	}

	session.HasVoted = true
	session.OptionID = optionID
	return e.poll.Snapshot(), closed, nil
}

// Tick closes the poll once now reaches its end time. It returns true only on the call
// that performed the close.
func (e *Engine) Tick(now time.Time) bool {
	e.mu.Lock()
	closed := e.expireLocked(now)
	snap := e.poll.Snapshot()
	e.mu.Unlock()

	if closed {
		e.afterClose(snap)
	}
	return closed
}

// Close closes the poll ahead of its deadline. It returns true if this call closed it.
func (e *Engine) Close() bool {
	e.mu.Lock()
	closed := e.poll.Close()
	snap := e.poll.Snapshot()
	e.mu.Unlock()

	if closed {
		e.logger.Info("poll closed by administrator")
		e.afterClose(snap)
	}
	return closed
}

// SimulateExternalVote counts a vote from a fresh simulated identity. selector picks an
// option index in [0, n). The ledger is not consulted.
func (e *Engine) SimulateExternalVote(selector func(n int) int) (SimulatedVote, error) {
	e.mu.Lock()
	closed := e.expireLocked(e.clock.Now())
	if !e.poll.IsActive {
		snap := e.poll.Snapshot()
		e.mu.Unlock()
		if closed {
			e.afterClose(snap)
		}
		return SimulatedVote{}, ErrPollClosed
	}
	idx := selector(len(e.poll.Options))
	if idx < 0 || idx >= len(e.poll.Options) {
		e.mu.Unlock()
		return SimulatedVote{}, ErrUnknownOption
	}
	optionID := e.poll.Options[idx].ID
	_ = e.poll.RecordVote(optionID)
	snap := e.poll.Snapshot()
	e.mu.Unlock()

	e.metrics.simulated()
	e.broadcast(EventResults, ComputeResults(snap))
	return SimulatedVote{Identity: "sim-" + uuid.NewString(), OptionID: optionID, Snapshot: snap}, nil
}

// Snapshot returns a copy of the current poll state.
func (e *Engine) Snapshot() models.PollSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.poll.Snapshot()
}

// Results returns the ranked results for the current state.
func (e *Engine) Results() RankedResults {
	return ComputeResults(e.Snapshot())
}

// IsActive reports whether the poll still accepts votes.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.poll.IsActive
}

// Remaining returns the signed time left until the end time.
func (e *Engine) Remaining(now time.Time) time.Duration {
	return e.poll.EndTime.Sub(now)
}

// expireLocked closes the poll if now is at or past the end time. Callers hold mu.
func (e *Engine) expireLocked(now time.Time) bool {
	if !e.poll.IsActive || now.Before(e.poll.EndTime) {
		return false
	}
	return e.poll.Close()
}

func (e *Engine) afterClose(snap models.PollSnapshot) {
	e.metrics.setOpen(false)
	e.logger.Info("poll closed", zap.Int("total_votes", snap.TotalVotes))
	e.broadcast(EventClosed, ComputeResults(snap))

	e.mu.Lock()
	hooks := make([]func(), len(e.onClose))
	copy(hooks, e.onClose)
	e.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (e *Engine) broadcast(event string, payload interface{}) {
	if e.hub != nil {
		e.hub.BroadcastAndPublish(event, payload)
	}
}
