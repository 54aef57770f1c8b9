package sample_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thetooth/pinggraph/probe"
	"github.com/thetooth/pinggraph/sample"
)

const (
	soft = 150 * time.Millisecond
	dead = 500 * time.Millisecond
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		res     probe.Result
		class   sample.Class
		latency time.Duration
	}{
		{"fast reply", probe.Result{Replied: true, Latency: 10 * time.Millisecond}, sample.OK, 10 * time.Millisecond},
		{"reply at soft boundary", probe.Result{Replied: true, Latency: soft}, sample.OK, soft},
		{"reply just past soft", probe.Result{Replied: true, Latency: soft + time.Millisecond}, sample.Slow, soft + time.Millisecond},
		{"reply just under deadline", probe.Result{Replied: true, Latency: dead - time.Millisecond}, sample.Slow, dead - time.Millisecond},
		{"reply at deadline", probe.Result{Replied: true, Latency: dead}, sample.Dead, dead},
		{"no reply", probe.Result{}, sample.Timeout, soft},
		{"killed", probe.Result{Killed: true}, sample.Dead, dead},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class, latency := sample.Classify(tc.res, soft, dead)
			require.Equal(t, tc.class, class)
			require.Equal(t, tc.latency, latency)
		})
	}
}

// A real measurement is carried only by ok and slow samples; losses carry
// the timeout sentinels instead.
func TestSentinelLatencies(t *testing.T) {
	s := sample.New(0, time.Now(), probe.Result{}, soft, dead)
	require.Equal(t, sample.Timeout, s.Class)
	require.False(t, s.Class.Success())
	require.Equal(t, soft, s.Latency.Duration)

	s = sample.New(1, time.Now(), probe.Result{Killed: true}, soft, dead)
	require.Equal(t, sample.Dead, s.Class)
	require.False(t, s.Class.Success())
	require.Equal(t, dead, s.Latency.Duration)

	s = sample.New(2, time.Now(), probe.Result{Replied: true, Latency: 42 * time.Millisecond}, soft, dead)
	require.True(t, s.Class.Success())
	require.Equal(t, 42*time.Millisecond, s.Latency.Duration)
}

func TestClassJSON(t *testing.T) {
	for class, want := range map[sample.Class]string{
		sample.OK:      `"ok"`,
		sample.Slow:    `"slow"`,
		sample.Timeout: `"timeout"`,
		sample.Dead:    `"dead"`,
	} {
		b, err := class.MarshalJSON()
		require.NoError(t, err)
		require.Equal(t, want, string(b))
	}
}
