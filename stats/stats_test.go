package stats_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thetooth/pinggraph/config"
	"github.com/thetooth/pinggraph/sample"
	"github.com/thetooth/pinggraph/stats"
)

func mk(seq uint64, class sample.Class, latency time.Duration) sample.Sample {
	return sample.Sample{
		Sequence: seq,
		IssuedAt: time.Now(),
		Latency:  config.Interval{Duration: latency},
		Class:    class,
	}
}

func TestRunningAggregates(t *testing.T) {
	tr := stats.NewTracker()
	tr.Record(mk(0, sample.OK, 10*time.Millisecond))
	tr.Record(mk(1, sample.OK, 20*time.Millisecond))
	tr.Record(mk(2, sample.OK, 15*time.Millisecond))

	s := tr.Snapshot()
	require.Equal(t, 3, s.Count)
	require.Equal(t, 3, s.SuccessCount)
	require.Equal(t, 0, s.LossCount)
	require.Equal(t, 10*time.Millisecond, s.MinRtt.Duration)
	require.Equal(t, 20*time.Millisecond, s.MaxRtt.Duration)
	require.Equal(t, 15*time.Millisecond, s.LastRTT.Duration)
	require.Equal(t, 15*time.Millisecond, s.AvgRtt.Duration)

	// Population stddev of {10, 20, 15} ms is sqrt(50/3) ms
	require.InDelta(t, 4.0825e6, float64(s.StdDevRtt.Duration), 1e4)
}

// Jitter after [10ms, 20ms, 15ms] is the running mean of |20-10| and
// |15-20|, which is 7.5ms.
func TestJitter(t *testing.T) {
	tr := stats.NewTracker()
	tr.Record(mk(0, sample.OK, 10*time.Millisecond))
	require.Equal(t, time.Duration(0), tr.Snapshot().Jitter.Duration)

	tr.Record(mk(1, sample.OK, 20*time.Millisecond))
	require.Equal(t, 10*time.Millisecond, tr.Snapshot().Jitter.Duration)

	tr.Record(mk(2, sample.OK, 15*time.Millisecond))
	require.Equal(t, 7500*time.Microsecond, tr.Snapshot().Jitter.Duration)
}

// Losses never contribute to latency aggregates or jitter, even though
// they carry a sentinel latency value.
func TestLossesExcludedFromLatency(t *testing.T) {
	tr := stats.NewTracker()
	tr.Record(mk(0, sample.OK, 10*time.Millisecond))
	tr.Record(mk(1, sample.Timeout, 150*time.Millisecond))
	tr.Record(mk(2, sample.Dead, 500*time.Millisecond))
	tr.Record(mk(3, sample.OK, 12*time.Millisecond))

	s := tr.Snapshot()
	require.Equal(t, 4, s.Count)
	require.Equal(t, 2, s.SuccessCount)
	require.Equal(t, 2, s.LossCount)
	require.Equal(t, s.Count, s.SuccessCount+s.LossCount)
	require.Equal(t, 12*time.Millisecond, s.MaxRtt.Duration)
	require.Equal(t, 11*time.Millisecond, s.AvgRtt.Duration)
	// Jitter bridges the loss gap: |12-10| over one pair
	require.Equal(t, 2*time.Millisecond, s.Jitter.Duration)
}

func TestLossStreaks(t *testing.T) {
	tr := stats.NewTracker()

	classes := []sample.Class{sample.Timeout, sample.Dead, sample.Timeout, sample.Dead, sample.Timeout}
	for i, class := range classes {
		tr.Record(mk(uint64(i), class, 150*time.Millisecond))
		s := tr.Snapshot()
		require.Equal(t, i+1, s.CurrentStreak)
		require.GreaterOrEqual(t, s.MaxStreak, s.CurrentStreak)
	}

	tr.Record(mk(5, sample.OK, 10*time.Millisecond))
	s := tr.Snapshot()
	require.Equal(t, 0, s.CurrentStreak)
	require.Equal(t, 5, s.MaxStreak)
	require.Equal(t, 5, s.LossCount)
	require.Equal(t, 1, s.SuccessCount)

	tr.Record(mk(6, sample.Dead, 500*time.Millisecond))
	s = tr.Snapshot()
	require.Equal(t, 1, s.CurrentStreak)
	require.Equal(t, 5, s.MaxStreak)
}

func TestSkippedTicks(t *testing.T) {
	tr := stats.NewTracker()
	tr.NoteSkippedTick()
	tr.NoteSkippedTick()
	require.Equal(t, 2, tr.Snapshot().SkippedTicks)
}

// Snapshots must stay consistent while the writer keeps recording.
func TestConcurrentSnapshot(t *testing.T) {
	tr := stats.NewTracker()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			class := sample.OK
			if i%5 == 0 {
				class = sample.Timeout
			}
			tr.Record(mk(uint64(i), class, time.Duration(i)*time.Microsecond))
		}
	}()

	for i := 0; i < 100; i++ {
		s := tr.Snapshot()
		require.Equal(t, s.Count, s.SuccessCount+s.LossCount)
		require.GreaterOrEqual(t, s.MaxStreak, s.CurrentStreak)
	}

	wg.Wait()
	require.Equal(t, 1000, tr.Snapshot().Count)
}
