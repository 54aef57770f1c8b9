package main

import (
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/thetooth/pinggraph/config"
	"github.com/thetooth/pinggraph/session"
)

var (
	timeoutMs   int
	intervalSec float64
	deadMs      int
	ipv6        bool
	cfgPath     string
	statPath    string
	logLevel    string
	renderRate  time.Duration
)

func main() {
	flag.IntVar(&timeoutMs, "W", 150, "Soft timeout in milliseconds, replies above it are classified slow")
	flag.IntVar(&timeoutMs, "timeout", 150, "Alias of -W")
	flag.Float64Var(&intervalSec, "i", 0.1, "Probe interval in seconds, 0 probes back to back")
	flag.Float64Var(&intervalSec, "interval", 0.1, "Alias of -i")
	flag.IntVar(&deadMs, "D", 500, "Hard deadline in milliseconds, in-flight probes are killed past it")
	flag.IntVar(&deadMs, "dead_timeout", 500, "Alias of -D")
	flag.BoolVar(&ipv6, "6", false, "Force the IPv6 family")
	flag.BoolVar(&ipv6, "ipv6", false, "Alias of -6")
	flag.StringVar(&cfgPath, "config", "", "Path to configuration file, takes precedence over flags and reloads on change")
	flag.StringVar(&statPath, "stats", "/tmp/pinggraph", "Path to statistics output")
	flag.StringVar(&logLevel, "loglevel", "info", "Log verbosity: trace, debug, info, warn or error")
	flag.DurationVar(&renderRate, "render", time.Second, "Statistics output refresh period")
	flag.Parse()

	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatal("Unable to parse log level: ", err)
	}
	logrus.SetLevel(lvl)

	cfg, err := buildConfig()
	if err != nil {
		logrus.Fatal("Unable to load configuration: ", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatal("Invalid configuration: ", err)
	}

	// Control signals
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	// Restart the session with fresh settings when the configuration
	// file changes
	reload := make(chan struct{}, 1)
	if cfgPath != "" {
		watchConfig(cfgPath, reload)
	}

	for {
		restart, err := runSession(cfg, c, reload)
		if err != nil {
			logrus.Fatal(err)
		}
		if !restart {
			return
		}

		next, err := buildConfig()
		if err == nil {
			err = next.Validate()
		}
		if err != nil {
			logrus.Error("[ CONFIG_RELOAD ] keeping previous settings: ", err)
		} else {
			cfg = next
		}
	}
}

// runSession owns one session lifetime: it consumes updates on its own
// cadence, renders the statistics file, and tears the session down on
// interrupt or reload.
func runSession(cfg config.Config, sig chan os.Signal, reload chan struct{}) (restart bool, err error) {
	sess, err := session.New(cfg)
	if err != nil {
		return false, err
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- sess.Run()
	}()

	render := time.NewTicker(renderRate)
	defer render.Stop()

	updates := sess.Updates()
	var latest *session.Update
	lastStreak := 0

	for {
		select {
		case <-sig:
			sess.Stop()
			return false, <-runErr

		case <-reload:
			logrus.Info("[ CONFIG_RELOAD ] restarting session")
			sess.Stop()
			return true, <-runErr

		case err := <-runErr:
			return false, err

		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			latest = &u

			if u.Stats.CurrentStreak == 1 {
				logrus.Warn("[ TARGET_LOSS ] target: ", cfg.Target, " seq: ", u.Sample.Sequence, " class: ", u.Sample.Class)
			} else if u.Stats.CurrentStreak == 0 && lastStreak > 0 {
				logrus.Info("[ TARGET_RECOVER ] target: ", cfg.Target, " after ", lastStreak, " losses")
			}
			lastStreak = u.Stats.CurrentStreak
			logrus.Trace("seq: ", u.Sample.Sequence, " class: ", u.Sample.Class, " latency: ", u.Sample.Latency)

		case <-render.C:
			if latest == nil {
				continue
			}
			writeStats(sess, cfg, *latest)
		}
	}
}

// writeStats marshals the latest update for whatever is plotting us.
func writeStats(sess *session.Session, cfg config.Config, latest session.Update) {
	out := struct {
		Session string         `json:"session"`
		Target  string         `json:"target"`
		Latest  session.Update `json:"latest"`
	}{
		Session: sess.ID.String(),
		Target:  cfg.Target,
		Latest:  latest,
	}

	b, err := json.Marshal(out)
	if err != nil {
		logrus.Error("Unable to marshal statistics: ", err)
		return
	}

	if err := os.WriteFile(statPath, b, 0644); err != nil {
		logrus.Error("Unable to write statistics: ", err)
	}
}

// buildConfig assembles settings from the configuration file when given,
// otherwise from the flag surface with the target as the sole positional
// argument.
func buildConfig() (config.Config, error) {
	if cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return config.Config{}, err
		}
		return *cfg, nil
	}

	cfg := config.Default
	cfg.Target = flag.Arg(0)
	cfg.IPv6 = ipv6
	cfg.SoftTimeout.Duration = time.Duration(timeoutMs) * time.Millisecond
	cfg.ProbeRate.Duration = time.Duration(intervalSec * float64(time.Second))
	cfg.DeadTimeout.Duration = time.Duration(deadMs) * time.Millisecond

	return cfg, nil
}

func watchConfig(path string, reload chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logrus.Fatal("Unable to watch configuration: ", err)
	}
	if err := watcher.Add(path); err != nil {
		logrus.Fatal("Unable to watch configuration: ", err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case reload <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.Warn("Configuration watcher: ", err)
			}
		}
	}()
}
