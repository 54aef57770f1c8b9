package probe

import (
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/thetooth/pinggraph/util"
)

// Backend describes the external ping invocation used for a single probe
// attempt. The command is resolved once at session start so a missing
// binary fails before any probing begins.
type Backend struct {
	Binary string
	Args   []string
}

// NewBackend builds the platform command line for one echo request against
// target, with the per-reply timeout expressed in the platform's native
// unit. A literal IPv6 target forces the IPv6 family.
func NewBackend(target string, ipv6 bool, replyTimeout time.Duration) (Backend, error) {
	b := buildBackend(runtime.GOOS, target, ipv6, replyTimeout)

	path, err := exec.LookPath(b.Binary)
	if err != nil {
		return Backend{}, fmt.Errorf("probe backend %q unavailable: %w", b.Binary, err)
	}
	b.Binary = path

	return b, nil
}

func buildBackend(goos, target string, ipv6 bool, replyTimeout time.Duration) (b Backend) {
	if util.IsIPv6(target) {
		ipv6 = true
	}

	b.Binary = "ping"

	switch goos {
	case "windows":
		// -w takes milliseconds
		family := "-4"
		if ipv6 {
			family = "-6"
		}
		b.Args = []string{"-n", "1", "-w", strconv.Itoa(int(replyTimeout.Milliseconds())), family, target}
	case "darwin":
		// -W takes milliseconds, IPv6 lives in a separate binary with no
		// per-reply timeout flag so the watchdog alone bounds it there
		if ipv6 {
			b.Binary = "ping6"
			b.Args = []string{"-n", "-c", "1", target}
		} else {
			b.Args = []string{"-n", "-c", "1", "-W", strconv.Itoa(int(replyTimeout.Milliseconds())), target}
		}
	default:
		// iputils: -W takes fractional seconds
		family := "-4"
		if ipv6 {
			family = "-6"
		}
		b.Args = []string{"-n", "-c", "1", "-W", strconv.FormatFloat(replyTimeout.Seconds(), 'f', 3, 64), family, target}
	}

	return
}

// Matches "time=12.3 ms" (iputils, macOS) as well as "time=23ms" and
// "time<1ms" (Windows).
var latencyPattern = regexp.MustCompile(`time[=<]([0-9]+(?:\.[0-9]+)?) ?ms`)

// ParseLatency extracts the round trip time from the backend's output.
func ParseLatency(output string) (time.Duration, bool) {
	m := latencyPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	ms, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}
