package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/thetooth/pinggraph/config"
	"github.com/thetooth/pinggraph/probe"
	"github.com/thetooth/pinggraph/sample"
	"github.com/thetooth/pinggraph/stats"
)

// updateBacklog is how many updates the consumer may lag behind before the
// oldest are dropped.
const updateBacklog = 1024

// Update pairs a finalized sample with the aggregates as of that sample.
// Both halves are immutable once delivered.
type Update struct {
	Sample sample.Sample  `json:"sample"`
	Stats  stats.Snapshot `json:"stats"`
}

// Prober runs a single bounded probe attempt. Satisfied by
// probe.Executor.
type Prober interface {
	Probe(done <-chan interface{}) (probe.Result, error)
}

// Session owns a probing run: the tick loop, the executor, the statistics
// tracker and the consumer channel. One session per target, created at
// start and discarded at shutdown.
type Session struct {
	ID  uuid.UUID
	cfg config.Config

	clock    clockwork.Clock
	executor Prober
	tracker  *stats.Tracker

	updates chan Update

	// Next sequence number, touched only by the run loop
	sequence uint64

	done chan interface{}
	lock sync.Mutex
}

// New validates the configuration and resolves the probe backend. A
// missing backend binary surfaces here, before any probing begins.
func New(cfg config.Config) (*Session, error) {
	return NewWithClock(cfg, clockwork.NewRealClock())
}

func NewWithClock(cfg config.Config, clock clockwork.Clock) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := probe.NewBackend(cfg.Target, cfg.IPv6, cfg.SoftTimeout.Duration)
	if err != nil {
		return nil, err
	}

	return newSession(cfg, clock, probe.NewExecutor(backend, cfg.DeadTimeout.Duration)), nil
}

func newSession(cfg config.Config, clock clockwork.Clock, prober Prober) *Session {
	return &Session{
		ID:       uuid.New(),
		cfg:      cfg,
		clock:    clock,
		executor: prober,
		tracker:  stats.NewTracker(),
		updates:  make(chan Update, updateBacklog),
		done:     make(chan interface{}),
	}
}

// Updates is the live sequence of classified samples, delivered in
// sequence order. The channel closes once the session has quiesced.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Snapshot reads the current aggregates on demand.
func (s *Session) Snapshot() stats.Snapshot {
	return s.tracker.Snapshot()
}

// Run drives the probe loop until Stop is called or the backend fails to
// spawn. It blocks, returning once no probe is in flight and the updates
// channel is closed.
func (s *Session) Run() error {
	var g errgroup.Group

	results := make(chan sample.Sample, updateBacklog)

	g.Go(func() error {
		defer close(results)
		return s.runLoop(results)
	})

	g.Go(func() error {
		defer close(s.updates)
		s.publish(results)
		return nil
	})

	logrus.Info("[ SESSION_START ] id: ", s.ID, " target: ", s.cfg.Target)
	err := g.Wait()
	logrus.Info("[ SESSION_STOP ] id: ", s.ID)

	return err
}

// Stop signals shutdown: no new probes are dispatched and any in-flight
// backend process is killed. Safe to call more than once.
func (s *Session) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// runLoop dispatches one probe per tick. Probes are serialized: a tick
// that fires while a probe is still in flight is dropped and counted, so
// worst case pacing is max(interval, deadTimeout).
func (s *Session) runLoop(out chan<- sample.Sample) error {
	var tick <-chan time.Time
	if s.cfg.ProbeRate.Duration > 0 {
		ticker := s.clock.NewTicker(s.cfg.ProbeRate.Duration)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	for {
		if tick == nil {
			// No pacing, probe back to back
			select {
			case <-s.done:
				return nil
			default:
			}
		} else {
			select {
			case <-s.done:
				return nil
			case <-tick:
			}
		}

		issuedAt := s.clock.Now()
		res, err := s.executor.Probe(s.done)
		if err != nil {
			return err
		}
		if res.Canceled {
			return nil
		}

		out <- sample.New(s.sequence, issuedAt, res, s.cfg.SoftTimeout.Duration, s.cfg.DeadTimeout.Duration)
		s.sequence++

	drain:
		for {
			select {
			case <-tick:
				s.tracker.NoteSkippedTick()
				logrus.Trace("Tick skipped while probe in flight")
			default:
				break drain
			}
		}
	}
}

// publish is the single statistics writer. It folds each sample into the
// tracker and pushes the (sample, snapshot) pair to the consumer, dropping
// the oldest update instead of ever blocking the probe path.
func (s *Session) publish(results <-chan sample.Sample) {
	for smp := range results {
		s.tracker.Record(smp)
		u := Update{Sample: smp, Stats: s.tracker.Snapshot()}

		select {
		case s.updates <- u:
		default:
			select {
			case <-s.updates:
				logrus.Trace("Consumer lagging, dropped oldest update")
			default:
			}
			// Room is guaranteed, publish is the only sender
			s.updates <- u
		}
	}
}
