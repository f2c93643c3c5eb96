package polls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task to stop")
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestLifecycleClosesAtDeadline(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3*time.Second)

	lc := NewLifecycle(f.engine, f.clock, time.Second, f.hub, nil)
	lc.Start()
	t.Cleanup(lc.Stop)

	ev, ok := f.hub.last(EventCountdown)
	require.True(ok, "first countdown is sent on start")
	require.Equal("00:00:03", ev.payload.(Countdown).Remaining)
	require.True(ev.payload.(Countdown).IsActive)

	require.Eventually(func() bool {
		f.clock.Advance(time.Second)
		return isClosed(lc.Done())
	}, 2*time.Second, 5*time.Millisecond)

	require.False(f.engine.IsActive())
	require.Equal(1, f.hub.count(EventClosed))

	ev, _ = f.hub.last(EventCountdown)
	cd := ev.payload.(Countdown)
	require.Equal(EndedLabel, cd.Remaining)
	require.False(cd.IsActive)
	require.Zero(cd.SecondsLeft)

	// no ticks are processed once the timer stopped
	sent := f.hub.count(EventCountdown)
	f.clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	require.Equal(sent, f.hub.count(EventCountdown))
}

func TestLifecycleClosesExpiredPollImmediately(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, -time.Minute)

	lc := NewLifecycle(f.engine, f.clock, time.Second, f.hub, nil)
	lc.Start()
	t.Cleanup(lc.Stop)

	require.True(isClosed(lc.Done()))
	require.False(f.engine.IsActive())
	require.Equal(1, f.hub.count(EventClosed))
}

func TestLifecycleStopsOnAdminClose(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour)

	lc := NewLifecycle(f.engine, f.clock, time.Second, f.hub, nil)
	f.engine.OnClose(lc.Cancel)
	lc.Start()
	t.Cleanup(lc.Stop)
	require.False(isClosed(lc.Done()))

	require.True(f.engine.Close())
	waitClosed(t, lc.Done())
	require.Equal(1, f.hub.count(EventClosed))
}

func TestLifecycleDoneBeforeStart(t *testing.T) {
	f := newFixture(t, time.Hour)
	lc := NewLifecycle(f.engine, f.clock, 0, nil, nil)
	require.False(t, isClosed(lc.Done()))
	lc.Stop()
	lc.Cancel()
}

func TestSimulatorVotesUntilClosed(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, time.Hour, "A", "B", "C")

	sim := NewSimulator(f.engine, f.clock, 3*time.Second, func(int) int { return 1 }, nil)
	sim.Start()
	t.Cleanup(sim.Stop)

	require.Eventually(func() bool {
		f.clock.Advance(3 * time.Second)
		return f.engine.Snapshot().TotalVotes >= 2
	}, 2*time.Second, 5*time.Millisecond)

	snap := f.engine.Snapshot()
	require.Equal(snap.TotalVotes, snap.Options[1].Votes)
	require.Positive(f.hub.count(EventResults))

	f.engine.Close()
	require.Eventually(func() bool {
		f.clock.Advance(3 * time.Second)
		return isClosed(sim.Done())
	}, 2*time.Second, 5*time.Millisecond)

	final := f.engine.Snapshot().TotalVotes
	f.clock.Advance(3 * time.Second)
	require.Equal(final, f.engine.Snapshot().TotalVotes)
}

func TestSimulatorSkipsClosedPoll(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.engine.Close()

	sim := NewSimulator(f.engine, f.clock, 0, nil, nil)
	sim.Start()
	require.Nil(t, sim.Done())
	sim.Stop()
}
