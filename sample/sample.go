package sample

import (
	"encoding/json"
	"time"

	"github.com/thetooth/pinggraph/config"
	"github.com/thetooth/pinggraph/probe"
)

// Class is the outcome category of a probe attempt.
type Class int

const (
	// OK: the reply arrived within the soft timeout.
	OK Class = iota
	// Slow: the reply arrived, but after the soft timeout.
	Slow
	// Timeout: the backend reported no reply before the hard deadline.
	Timeout
	// Dead: the backend had to be killed at the hard deadline.
	Dead
)

// Success reports whether the class carries a real measured latency.
func (c Class) Success() bool {
	return c == OK || c == Slow
}

func (c Class) String() string {
	switch c {
	case OK:
		return "ok"
	case Slow:
		return "slow"
	case Timeout:
		return "timeout"
	case Dead:
		return "dead"
	}
	return "unknown"
}

func (c Class) MarshalJSON() (data []byte, err error) {
	return json.Marshal(c.String())
}

// Sample is one classified probe outcome. It is never mutated after
// classification. For timeout and dead samples Latency holds the timeout
// sentinel rather than a measurement, keeping plots continuous.
type Sample struct {
	Sequence uint64          `json:"seq"`
	IssuedAt time.Time       `json:"issued_at"`
	Latency  config.Interval `json:"latency"`
	Class    Class           `json:"class"`
}

// New classifies a raw probe result against the dual timeouts.
func New(seq uint64, issuedAt time.Time, res probe.Result, soft, dead time.Duration) Sample {
	class, latency := Classify(res, soft, dead)
	return Sample{
		Sequence: seq,
		IssuedAt: issuedAt,
		Latency:  config.Interval{Duration: latency},
		Class:    class,
	}
}

// Classify maps a raw result to its class and recorded latency value.
// Replies at or past the hard deadline count as dead, the edge the
// watchdog may lose by a scheduling hair.
func Classify(res probe.Result, soft, dead time.Duration) (Class, time.Duration) {
	switch {
	case res.Killed:
		return Dead, dead
	case !res.Replied:
		return Timeout, soft
	case res.Latency <= soft:
		return OK, res.Latency
	case res.Latency < dead:
		return Slow, res.Latency
	default:
		return Dead, dead
	}
}
