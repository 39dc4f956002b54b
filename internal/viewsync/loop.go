package viewsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// LoopState is the observable state of a PollingLoop.
type LoopState int

const (
	LoopIdle LoopState = iota
	LoopScheduled
	LoopInFlight
	LoopTerminated
)

func (s LoopState) String() string {
	switch s {
	case LoopScheduled:
		return "scheduled"
	case LoopInFlight:
		return "in-flight"
	case LoopTerminated:
		return "terminated"
	}
	return "idle"
}

// PollingLoop runs tick on a fixed interval until stopped. Starting a loop
// that is already running cancels the previous run first. At most one tick
// is in flight at a time, across restarts; a tick that fires while another
// is in flight is skipped.
type PollingLoop struct {
	name     string
	interval time.Duration
	clock    clock.WithTicker
	tick     func(ctx context.Context)
	log      *logrus.Entry

	inFlight atomic.Bool
	wg       sync.WaitGroup

	mu            sync.Mutex
	run           *loopRun
	state         LoopState
	cancellations int
	skipped       int
}

type loopRun struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPollingLoop creates a stopped loop.
func NewPollingLoop(name string, interval time.Duration, clk clock.WithTicker, log *logrus.Entry, tick func(ctx context.Context)) *PollingLoop {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PollingLoop{
		name:     name,
		interval: interval,
		clock:    clk,
		tick:     tick,
		log:      log.WithField("loop", name),
	}
}

// Name returns the loop name used in logs.
func (l *PollingLoop) Name() string { return l.name }

// Start begins a new run bound to parent. When immediate is set the first
// tick fires right away instead of after one interval.
func (l *PollingLoop) Start(parent context.Context, immediate bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.run != nil {
		l.run.cancel()
		l.cancellations++
		l.log.Debug("restarting polling loop")
	}

	ctx, cancel := context.WithCancel(parent)
	run := &loopRun{ctx: ctx, cancel: cancel}
	l.run = run
	l.state = LoopScheduled

	ticker := l.clock.NewTicker(l.interval)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				l.fire(run)
			}
		}
	}()

	if immediate {
		l.fireLocked(run)
	}
}

func (l *PollingLoop) fire(run *loopRun) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fireLocked(run)
}

func (l *PollingLoop) fireLocked(run *loopRun) {
	if l.run != run || run.ctx.Err() != nil {
		return
	}
	if !l.inFlight.CompareAndSwap(false, true) {
		l.skipped++
		l.log.Debug("skipping tick, previous request still in flight")
		return
	}
	l.state = LoopInFlight

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.tick(run.ctx)
		l.inFlight.Store(false)

		l.mu.Lock()
		if l.run == run {
			l.state = LoopScheduled
		}
		l.mu.Unlock()
	}()
}

// Stop cancels the current run. Stopping a stopped loop is a no-op.
// Stop does not wait for an in-flight tick; use Wait for that.
func (l *PollingLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.run == nil {
		return
	}
	l.run.cancel()
	l.run = nil
	l.cancellations++
	l.state = LoopTerminated
}

// Running reports whether the loop has an active run.
func (l *PollingLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run != nil
}

// State returns the loop's current state.
func (l *PollingLoop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Cancellations counts runs cancelled by Stop or by a restart.
func (l *PollingLoop) Cancellations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancellations
}

// Skipped counts ticks dropped because a request was still in flight.
func (l *PollingLoop) Skipped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.skipped
}

// Wait blocks until every goroutine started by the loop has returned.
// Call it only after Stop.
func (l *PollingLoop) Wait() {
	l.wg.Wait()
}
