package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// MaxDeadTimeout caps the hard deadline, matching the upper bound of the
// -D/--dead_timeout flag.
const MaxDeadTimeout = 10 * time.Second

// Default mirrors the command line defaults.
var Default = Config{
	SoftTimeout: Interval{Duration: 150 * time.Millisecond},
	ProbeRate:   Interval{Duration: 100 * time.Millisecond},
	DeadTimeout: Interval{Duration: 500 * time.Millisecond},
}

func Load(path string) (cfg *Config, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	c := Default
	err = json.Unmarshal(data, &c)
	if err != nil {
		return nil, err
	}
	cfg = &c

	return
}

type Config struct {
	// Target is the host or IP address handed to the probe backend.
	Target string `json:"target"`

	// IPv6 forces the IPv6 family flag on the backend. A literal IPv6
	// target implies it regardless.
	IPv6 bool `json:"ipv6"`

	// SoftTimeout is the threshold above which a reply is classified
	// slow. It is also the backend's per-reply timeout.
	SoftTimeout Interval `json:"timeout"`

	// ProbeRate is the scheduler tick period. Zero means no pacing.
	ProbeRate Interval `json:"interval"`

	// DeadTimeout is the hard deadline after which an in-flight probe
	// is killed and the sample recorded as dead.
	DeadTimeout Interval `json:"dead_timeout"`
}

// Validate rejects bad configurations before any probing begins.
func (c Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("target host is required")
	}
	if c.SoftTimeout.Duration <= 0 {
		return fmt.Errorf("timeout must be greater than 0, got %v", c.SoftTimeout.Duration)
	}
	if c.ProbeRate.Duration < 0 {
		return fmt.Errorf("interval must not be negative, got %v", c.ProbeRate.Duration)
	}
	if c.DeadTimeout.Duration < c.SoftTimeout.Duration {
		return fmt.Errorf("dead_timeout %v is below timeout %v", c.DeadTimeout.Duration, c.SoftTimeout.Duration)
	}
	if c.DeadTimeout.Duration > MaxDeadTimeout {
		return fmt.Errorf("dead_timeout %v exceeds maximum %v", c.DeadTimeout.Duration, MaxDeadTimeout)
	}
	return nil
}

type Interval struct {
	time.Duration
}

func (d *Interval) UnmarshalJSON(data []byte) (err error) {
	var pstr string
	err = json.Unmarshal(data, &pstr)
	if err != nil {
		return err
	}
	d.Duration, err = time.ParseDuration(pstr)
	return
}

func (d *Interval) MarshalJSON() (data []byte, err error) {
	s := d.Duration.String()
	data, err = json.Marshal(s)
	return
}
