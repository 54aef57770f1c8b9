package probe

import (
	"bytes"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// killGrace is the second bounded window after a forced kill. A backend
// that survives it is escalated but never stalls the scheduler.
const killGrace = 200 * time.Millisecond

// Result is the raw outcome of one probe attempt, before classification.
type Result struct {
	// Latency is the round trip time reported by the backend. Only
	// meaningful when Replied is set.
	Latency time.Duration

	// Replied is set when the backend returned a latency before the
	// hard deadline.
	Replied bool

	// Killed is set when the watchdog terminated the backend.
	Killed bool

	// Canceled is set when shutdown terminated the backend. The attempt
	// produces no sample.
	Canceled bool
}

// Executor runs one probe attempt at a time under a hard deadline.
type Executor struct {
	backend Backend
	dead    time.Duration
}

func NewExecutor(backend Backend, deadTimeout time.Duration) *Executor {
	return &Executor{backend: backend, dead: deadTimeout}
}

// Probe spawns the backend and blocks until it exits, the watchdog fires,
// or done closes. The wait and the watchdog race on a single outcome; the
// watchdog and cancellation are the only paths that kill the process. The
// returned error means the backend could not be spawned at all, which is
// fatal for the session.
func (e *Executor) Probe(done <-chan interface{}) (Result, error) {
	cmd := exec.Command(e.backend.Binary, e.backend.Args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("spawn %v: %w", e.backend.Binary, err)
	}

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	watchdog := time.NewTimer(e.dead)
	defer watchdog.Stop()

	select {
	case err := <-waitCh:
		if err != nil {
			// Backend signalled no reply within its own timeout
			return Result{}, nil
		}
		if rtt, ok := ParseLatency(out.String()); ok {
			return Result{Latency: rtt, Replied: true}, nil
		}
		logrus.Trace("Backend exited clean without a latency: ", out.String())
		return Result{}, nil

	case <-watchdog.C:
		e.kill(cmd, waitCh)
		return Result{Killed: true}, nil

	case <-done:
		e.kill(cmd, waitCh)
		return Result{Canceled: true}, nil
	}
}

func (e *Executor) kill(cmd *exec.Cmd, waitCh <-chan error) {
	if err := cmd.Process.Kill(); err != nil {
		logrus.Error("[ KILL_FAIL ] backend pid ", cmd.Process.Pid, ": ", err)
	}

	grace := time.NewTimer(killGrace)
	defer grace.Stop()
	select {
	case <-waitCh:
	case <-grace.C:
		logrus.Error("[ KILL_TIMEOUT ] backend pid ", cmd.Process.Pid, " survived forced kill")
	}
}
