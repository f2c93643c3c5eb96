package polls

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/livepoll/backend/internal/clock"
)

// Countdown is the payload of the countdown event.
type Countdown struct {
	PollID      string `json:"poll_id"`
	Remaining   string `json:"remaining"`
	SecondsLeft int64  `json:"seconds_left"`
	IsActive    bool   `json:"is_active"`
}

// Lifecycle drives Engine.Tick on a fixed cadence and pushes the countdown. It stops
// scheduling once the poll is closed.
type Lifecycle struct {
	engine   *Engine
	clock    clock.Clock
	interval time.Duration
	hub      HubBroadcaster
	logger   *zap.Logger
	mu       sync.Mutex
	task     *clock.Task
	started  bool
	finished bool
}

// NewLifecycle creates the countdown timer for engine. hub may be nil.
func NewLifecycle(engine *Engine, c clock.Clock, interval time.Duration, hub HubBroadcaster, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Lifecycle{engine: engine, clock: c, interval: interval, hub: hub, logger: logger}
}

// Start runs one tick immediately and then schedules the rest. A poll that is already
// past its end time is closed by the first tick and nothing is scheduled.
func (l *Lifecycle) Start() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	// The first step may fire close hooks that call Cancel, so it runs unlocked.
	if !l.step(l.clock.Now()) {
		l.mu.Lock()
		l.finished = true
		l.mu.Unlock()
		return
	}
	task := clock.Every("poll-lifecycle", l.clock, l.interval, l.step, l.logger)
	l.mu.Lock()
	l.task = task
	l.mu.Unlock()
}

// Cancel stops scheduling without waiting. Safe from any goroutine.
func (l *Lifecycle) Cancel() {
	l.mu.Lock()
	task := l.task
	l.mu.Unlock()
	if task != nil {
		task.Cancel()
	}
}

// Stop stops scheduling and waits for an in-flight tick to finish.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	task := l.task
	l.mu.Unlock()
	if task != nil {
		task.Stop()
	}
}

// Done is closed when the timer no longer schedules ticks.
func (l *Lifecycle) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.task != nil {
		return l.task.Done()
	}
	ch := make(chan struct{})
	if l.finished {
		close(ch)
	}
	return ch
}

func (l *Lifecycle) step(now time.Time) bool {
	l.engine.Tick(now)
	active := l.engine.IsActive()
	remaining := l.engine.Remaining(now)
	if !active && remaining > 0 {
		// closed early by an administrator
		remaining = 0
	}
	if l.hub != nil {
		l.hub.BroadcastAndPublish(EventCountdown, Countdown{
			PollID:      l.engine.PollID(),
			Remaining:   FormatRemaining(remaining),
			SecondsLeft: int64(max(remaining, 0) / time.Second),
			IsActive:    active,
		})
	}
	return active
}

// Simulator records a simulated external vote every interval while the poll is open.
type Simulator struct {
	engine   *Engine
	clock    clock.Clock
	interval time.Duration
	selector func(n int) int
	logger   *zap.Logger
	mu       sync.Mutex
	task     *clock.Task
}

// NewSimulator creates a vote simulator. A nil selector picks options uniformly at random.
func NewSimulator(engine *Engine, c clock.Clock, interval time.Duration, selector func(n int) int, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if selector == nil {
		selector = rand.Intn
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Simulator{engine: engine, clock: c, interval: interval, selector: selector, logger: logger}
}

// Start begins simulating. It does nothing if the poll is already closed.
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task != nil || !s.engine.IsActive() {
		return
	}
	s.task = clock.Every("vote-simulator", s.clock, s.interval, s.step, s.logger)
}

// Cancel stops simulating without waiting.
func (s *Simulator) Cancel() {
	s.mu.Lock()
	task := s.task
	s.mu.Unlock()
	if task != nil {
		task.Cancel()
	}
}

// Stop stops simulating and waits for the loop to exit.
func (s *Simulator) Stop() {
	s.mu.Lock()
	task := s.task
	s.mu.Unlock()
	if task != nil {
		task.Stop()
	}
}

// Done is closed once the simulator loop has exited. It is nil before Start.
func (s *Simulator) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task == nil {
		return nil
	}
	return s.task.Done()
}

func (s *Simulator) step(time.Time) bool {
	vote, err := s.engine.SimulateExternalVote(s.selector)
	if errors.Is(err, ErrPollClosed) {
		return false
	}
	if err != nil {
		s.logger.Warn("simulated vote rejected", zap.Error(err))
		return true
	}
	s.logger.Debug("simulated vote", zap.String("identity", vote.Identity), zap.String("option_id", vote.OptionID))
	return true
}
