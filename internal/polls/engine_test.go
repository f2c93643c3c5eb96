package polls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/livepoll/backend/internal/clock"
	"github.com/livepoll/backend/internal/ledger"
	"github.com/livepoll/backend/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type recordedEvent struct {
	name    string
	payload interface{}
}

type recordingHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *recordingHub) BroadcastAndPublish(event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{name: event, payload: payload})
}

func (h *recordingHub) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.name == name {
			n++
		}
	}
	return n
}

func (h *recordingHub) last(name string) (recordedEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].name == name {
			return h.events[i], true
		}
	}
	return recordedEvent{}, false
}

type failingLedger struct {
	err error
}

func (f failingLedger) Get(context.Context, string, string) (*models.VoteRecord, error) {
	return nil, nil
}

func (f failingLedger) Put(context.Context, string, string, models.VoteRecord) error {
	return f.err
}

type fixture struct {
	engine *Engine
	clock  *clock.Manual
	ledger *ledger.Memory
	hub    *recordingHub
}

func newFixture(t *testing.T, end time.Duration, texts ...string) fixture {
	t.Helper()
	if len(texts) == 0 {
		texts = []string{"React", "Vue"}
	}
	created := t0
	if end <= 0 {
		created = t0.Add(end - time.Hour)
	}
	poll, err := models.NewPoll("poll1", "Which JavaScript framework do you prefer?", texts, created, t0.Add(end))
	require.NoError(t, err)

	c := clock.NewManual(t0)
	l := ledger.NewMemory()
	hub := &recordingHub{}
	return fixture{engine: NewEngine(poll, l, c, hub, nil), clock: c, ledger: l, hub: hub}
}

func sumVotes(snap models.PollSnapshot) int {
	sum := 0
	for _, o := range snap.Options {
		sum += o.Votes
	}
	return sum
}

func TestNewVoterVotesForVue(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	session, err := f.engine.LoadSession(ctx, "visitor-1", "poll1")
	require.NoError(err)
	require.False(session.HasVoted)
	require.Zero(f.engine.Snapshot().TotalVotes)

	snap, err := f.engine.SubmitVote(ctx, &session, "poll1", "opt2")
	require.NoError(err)
	require.Equal(1, snap.TotalVotes)
	require.Equal(1, snap.Options[1].Votes)
	require.True(session.HasVoted)
	require.Equal("opt2", session.OptionID)

	r := ComputeResults(snap)
	require.Equal(0, r.Options[0].Percentage)
	require.Equal(100, r.Options[1].Percentage)

	rec, err := f.ledger.Get(ctx, "visitor-1", "poll1")
	require.NoError(err)
	require.Equal("opt2", rec.OptionID)
	require.Equal(t0, rec.VotedAt)

	ev, ok := f.hub.last(EventResults)
	require.True(ok)
	require.Equal(1, ev.payload.(RankedResults).TotalVotes)
}

func TestReturningVoterIsRejected(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	first, err := f.engine.LoadSession(ctx, "visitor-1", "poll1")
	require.NoError(err)
	_, err = f.engine.SubmitVote(ctx, &first, "poll1", "opt1")
	require.NoError(err)

	// a fresh page load restores the session from the ledger
	session, err := f.engine.LoadSession(ctx, "visitor-1", "poll1")
	require.NoError(err)
	require.True(session.HasVoted)
	require.Equal("opt1", session.OptionID)

	before := f.engine.Snapshot()
	_, err = f.engine.SubmitVote(ctx, &session, "poll1", "opt2")
	require.ErrorIs(err, ErrAlreadyVoted)
	require.Equal(before, f.engine.Snapshot())
}

func TestStaleSessionIsCaughtByLedger(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	tabA, err := f.engine.LoadSession(ctx, "visitor-1", "poll1")
	require.NoError(err)
	tabB, err := f.engine.LoadSession(ctx, "visitor-1", "poll1")
	require.NoError(err)

	_, err = f.engine.SubmitVote(ctx, &tabA, "poll1", "opt1")
	require.NoError(err)
	_, err = f.engine.SubmitVote(ctx, &tabB, "poll1", "opt2")
	require.ErrorIs(err, ErrAlreadyVoted)

	require.True(tabB.HasVoted)
	require.Equal("opt1", tabB.OptionID)
	require.Equal(1, f.engine.Snapshot().TotalVotes)
}

func TestExpiredPollRejectsVotes(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, -time.Minute)
	ctx := context.Background()

	require.True(f.engine.Tick(f.clock.Now()))
	require.False(f.engine.IsActive())

	session, err := f.engine.LoadSession(ctx, "visitor-1", "poll1")
	require.NoError(err)
	for _, opt := range []string{"opt1", "opt2"} {
		_, err = f.engine.SubmitVote(ctx, &session, "poll1", opt)
		require.ErrorIs(err, ErrPollClosed)
	}
	require.False(session.HasVoted)
	require.Zero(f.engine.Snapshot().TotalVotes)
	require.Zero(f.ledger.Len())
}

func TestVoteAfterDeadlineClosesWithoutTick(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	f.clock.Set(t0.Add(time.Minute))
	session, err := f.engine.LoadSession(ctx, "visitor-1", "poll1")
	require.NoError(err)
	_, err = f.engine.SubmitVote(ctx, &session, "poll1", "opt1")
	require.ErrorIs(err, ErrPollClosed)
	require.False(f.engine.IsActive())
	require.Equal(1, f.hub.count(EventClosed))

	require.False(f.engine.Tick(f.clock.Now()), "close already happened")
	require.Equal(1, f.hub.count(EventClosed))
}

func TestUnknownOptionChangesNothing(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	session, err := f.engine.LoadSession(ctx, "visitor-1", "poll1")
	require.NoError(err)
	_, err = f.engine.SubmitVote(ctx, &session, "poll1", "opt42")
	require.ErrorIs(err, ErrUnknownOption)
	require.False(session.HasVoted)
	require.Zero(f.engine.Snapshot().TotalVotes)
	require.Zero(f.ledger.Len())

	// the rejection is not final for the identity
	_, err = f.engine.SubmitVote(ctx, &session, "poll1", "opt1")
	require.NoError(err)
}

func TestAlreadyVotedWinsOverClosed(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour)

	f.engine.Close()
	session := models.VotingSession{Identity: "visitor-1", PollID: "poll1", HasVoted: true, OptionID: "opt1"}
	_, err := f.engine.SubmitVote(context.Background(), &session, "poll1", "opt2")
	require.ErrorIs(err, ErrAlreadyVoted)
}

func TestPersistenceFailureCountsNothing(t *testing.T) {
	require := require.New(t)

	poll, err := models.NewPoll("poll1", "q", []string{"A", "B"}, t0, t0.Add(time.Hour))
	require.NoError(err)
	cause := errors.New("connection refused")
	engine := NewEngine(poll, failingLedger{err: cause}, clock.NewManual(t0), nil, nil)

	session, err := engine.LoadSession(context.Background(), "visitor-1", "poll1")
	require.NoError(err)
	_, err = engine.SubmitVote(context.Background(), &session, "poll1", "opt1")
	require.ErrorIs(err, ErrPersistence)
	require.ErrorIs(err, cause)
	require.False(session.HasVoted)
	require.Zero(engine.Snapshot().TotalVotes)
}

func TestForeignPollAndMissingIdentity(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	_, err := f.engine.LoadSession(ctx, "visitor-1", "poll2")
	require.ErrorIs(err, ErrPollNotFound)
	_, err = f.engine.LoadSession(ctx, "", "poll1")
	require.ErrorIs(err, ErrNoIdentity)

	session := models.VotingSession{Identity: "visitor-1", PollID: "poll2"}
	_, err = f.engine.SubmitVote(ctx, &session, "poll2", "opt1")
	require.ErrorIs(err, ErrPollNotFound)
	_, err = f.engine.SubmitVote(ctx, nil, "poll1", "opt1")
	require.ErrorIs(err, ErrNoIdentity)
}

func TestTickClosesExactlyOnce(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 10*time.Second)

	var hooks atomic.Int32
	f.engine.OnClose(func() { hooks.Add(1) })

	require.False(f.engine.Tick(t0.Add(9 * time.Second)))
	require.True(f.engine.IsActive())

	require.True(f.engine.Tick(t0.Add(10 * time.Second)))
	for i := 0; i < 5; i++ {
		require.False(f.engine.Tick(t0.Add(time.Duration(11+i) * time.Second)))
		require.False(f.engine.IsActive())
	}
	// a tick with an earlier time never re-opens the poll
	require.False(f.engine.Tick(t0))
	require.False(f.engine.IsActive())

	require.Equal(int32(1), hooks.Load())
	require.Equal(1, f.hub.count(EventClosed))
}

func TestAdminCloseIsMonotonic(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour)

	require.True(f.engine.Close())
	require.False(f.engine.Close())
	require.False(f.engine.Tick(t0.Add(2 * time.Hour)))
	require.False(f.engine.IsActive())
	require.Equal(1, f.hub.count(EventClosed))
}

func TestSimulateExternalVote(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour, "A", "B", "C")

	vote, err := f.engine.SimulateExternalVote(func(n int) int {
		require.Equal(3, n)
		return 2
	})
	require.NoError(err)
	require.Equal("opt3", vote.OptionID)
	require.NotEmpty(vote.Identity)
	require.Equal(1, vote.Snapshot.Options[2].Votes)
	require.Zero(f.ledger.Len(), "simulated votes bypass the ledger")

	other, err := f.engine.SimulateExternalVote(func(int) int { return 2 })
	require.NoError(err)
	require.NotEqual(vote.Identity, other.Identity)

	_, err = f.engine.SimulateExternalVote(func(int) int { return 7 })
	require.ErrorIs(err, ErrUnknownOption)

	f.engine.Close()
	_, err = f.engine.SimulateExternalVote(func(int) int { return 0 })
	require.ErrorIs(err, ErrPollClosed)
	require.Equal(2, f.engine.Snapshot().TotalVotes)
}

func TestConcurrentVotesKeepTotalEqualToSum(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour, "A", "B", "C", "D")
	ctx := context.Background()

	const voters = 64
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			session, err := f.engine.LoadSession(ctx, fmt.Sprintf("visitor-%d", i), "poll1")
			if err != nil {
				return
			}
			_, _ = f.engine.SubmitVote(ctx, &session, "poll1", fmt.Sprintf("opt%d", i%4+1))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = f.engine.SimulateExternalVote(func(n int) int { return i % n })
		}(i)
	}
	wg.Wait()

	snap := f.engine.Snapshot()
	require.Equal(2*voters, snap.TotalVotes)
	require.Equal(snap.TotalVotes, sumVotes(snap))
	require.Equal(voters, f.ledger.Len())
}

func TestConcurrentVotesFromOneIdentityCountOnce(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	const tabs = 32
	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < tabs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := models.VotingSession{Identity: "visitor-1", PollID: "poll1"}
			_, err := f.engine.SubmitVote(ctx, &session, "poll1", fmt.Sprintf("opt%d", i%2+1))
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, ErrAlreadyVoted):
				rejected.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(int32(1), accepted.Load())
	require.Equal(int32(tabs-1), rejected.Load())
	require.Equal(1, f.engine.Snapshot().TotalVotes)
}

func TestMetricsTrackOutcomes(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(err)
	f.engine.SetMetrics(m)
	require.Equal(1.0, testutil.ToFloat64(m.pollOpen))

	session, _ := f.engine.LoadSession(ctx, "visitor-1", "poll1")
	_, err = f.engine.SubmitVote(ctx, &session, "poll1", "opt1")
	require.NoError(err)
	_, err = f.engine.SubmitVote(ctx, &session, "poll1", "opt1")
	require.ErrorIs(err, ErrAlreadyVoted)
	_, err = f.engine.SimulateExternalVote(func(int) int { return 0 })
	require.NoError(err)
	f.engine.Close()

	require.Equal(1.0, testutil.ToFloat64(m.votesAccepted))
	require.Equal(1.0, testutil.ToFloat64(m.votesRejected.WithLabelValues("already_voted")))
	require.Equal(1.0, testutil.ToFloat64(m.simulatedVotes))
	require.Equal(0.0, testutil.ToFloat64(m.pollOpen))
}

func TestErrorCode(t *testing.T) {
	require.Equal(t, "already_voted", ErrorCode(ErrAlreadyVoted))
	require.Equal(t, "persistence_failure", ErrorCode(fmt.Errorf("%w: %w", ErrPersistence, errors.New("x"))))
	require.Equal(t, "unknown_option", ErrorCode(models.ErrUnknownOption))
	require.Equal(t, "internal", ErrorCode(errors.New("boom")))
	require.Equal(t, "", ErrorCode(nil))
}
