package main

import (
	"fmt"
	"time"

	"github.com/hako/durafmt"
)

// hashRateUnits are SI-prefixed hashes-per-second steps, matching the
// units miners expect in status output and logs.
var hashRateUnits = []struct {
	threshold HashRate
	suffix    string
}{
	{1e15, "PH/s"},
	{1e12, "TH/s"},
	{1e9, "GH/s"},
	{1e6, "MH/s"},
	{1e3, "kH/s"},
}

// String renders a HashRate with an appropriate SI suffix, e.g. "123.40 TH/s".
func (h HashRate) String() string {
	for _, u := range hashRateUnits {
		if h >= u.threshold {
			return fmt.Sprintf("%.2f %s", float64(h)/float64(u.threshold), u.suffix)
		}
	}
	return fmt.Sprintf("%.2f H/s", float64(h))
}

// humanizeUptime renders a duration the way status logs present session
// or pool uptime, e.g. "2 hours 14 minutes".
func humanizeUptime(d time.Duration) string {
	return durafmt.Parse(d).LimitFirstN(2).String()
}
