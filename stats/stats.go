package stats

import (
	"math"
	"sync"
	"time"

	"github.com/thetooth/pinggraph/config"
	"github.com/thetooth/pinggraph/sample"
)

// Tracker folds classified samples into running aggregates. There is a
// single writer, the session's publisher; snapshots may be taken from any
// goroutine.
type Tracker struct {
	count        int
	successCount int
	lossCount    int

	currentStreak int
	maxStreak     int
	skippedTicks  int

	// Round trip time statistics over successful samples
	latest    time.Duration
	minRtt    time.Duration
	maxRtt    time.Duration
	avgRtt    time.Duration
	stdDevRtt time.Duration
	stddevm2  time.Duration

	// Jitter accumulators, mean absolute difference between consecutive
	// successful latencies
	prevRtt   time.Duration
	jitterSum time.Duration
	jitter    time.Duration

	statsMu sync.RWMutex
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Record updates every aggregate in O(1). Timeout and dead samples count
// as losses and extend the consecutive loss streak; a success resets it.
func (t *Tracker) Record(s sample.Sample) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()

	t.count++

	if !s.Class.Success() {
		t.lossCount++
		t.currentStreak++
		if t.currentStreak > t.maxStreak {
			t.maxStreak = t.currentStreak
		}
		return
	}

	rtt := s.Latency.Duration
	t.currentStreak = 0
	t.successCount++
	t.latest = rtt

	if t.successCount == 1 || rtt < t.minRtt {
		t.minRtt = rtt
	}
	if rtt > t.maxRtt {
		t.maxRtt = rtt
	}

	pktCount := time.Duration(t.successCount)
	// welford's online method for stddev, population variance
	// https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance#Welford's_online_algorithm
	delta := rtt - t.avgRtt
	t.avgRtt += delta / pktCount
	delta2 := rtt - t.avgRtt
	t.stddevm2 += delta * delta2

	t.stdDevRtt = time.Duration(math.Sqrt(float64(t.stddevm2 / pktCount)))

	if t.successCount > 1 {
		diff := rtt - t.prevRtt
		if diff < 0 {
			diff = -diff
		}
		t.jitterSum += diff
		t.jitter = t.jitterSum / time.Duration(t.successCount-1)
	}
	t.prevRtt = rtt
}

// NoteSkippedTick counts a tick that fired while a probe was still in
// flight under the serialize policy.
func (t *Tracker) NoteSkippedTick() {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()

	t.skippedTicks++
}

// Snapshot returns an immutable copy of the aggregates. Safe to call
// while recording continues.
func (t *Tracker) Snapshot() Snapshot {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	return Snapshot{
		Count:         t.count,
		SuccessCount:  t.successCount,
		LossCount:     t.lossCount,
		CurrentStreak: t.currentStreak,
		MaxStreak:     t.maxStreak,
		SkippedTicks:  t.skippedTicks,

		LastRTT:   config.Interval{Duration: t.latest},
		MinRtt:    config.Interval{Duration: t.minRtt},
		MaxRtt:    config.Interval{Duration: t.maxRtt},
		AvgRtt:    config.Interval{Duration: t.avgRtt},
		StdDevRtt: config.Interval{Duration: t.stdDevRtt},
		Jitter:    config.Interval{Duration: t.jitter},
	}
}

// Snapshot is a read-only view of the aggregates at one instant.
type Snapshot struct {
	Count         int `json:"count"`
	SuccessCount  int `json:"success_count"`
	LossCount     int `json:"loss_count"`
	CurrentStreak int `json:"current_loss_streak"`
	MaxStreak     int `json:"max_loss_streak"`
	SkippedTicks  int `json:"skipped_ticks"`

	LastRTT   config.Interval `json:"last_rtt"`
	MinRtt    config.Interval `json:"min_rtt"`
	MaxRtt    config.Interval `json:"max_rtt"`
	AvgRtt    config.Interval `json:"avg_rtt"`
	StdDevRtt config.Interval `json:"std_dev_rtt"`
	Jitter    config.Interval `json:"jitter"`
}
