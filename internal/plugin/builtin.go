package plugin

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/host"
)

// Clock renders the wall clock
type Clock struct {
	Layout string
	now    time.Time
}

// NewClock returns a clock showing hours and minutes
func NewClock() Plugin {
	return &Clock{Layout: "15:04"}
}

func (c *Clock) Init(rec *Record) error {
	rec.Version = "1.0"
	rec.Kind = KindStatusBar
	c.now = time.Now()
	return nil
}

func (c *Clock) Update(_ *Record, now time.Time) {
	c.now = now
}

func (c *Clock) Render(*Record) string {
	return c.now.Format(c.Layout)
}

// Uptime renders host uptime
type Uptime struct {
	// Read returns uptime in seconds
	Read    func() (uint64, error)
	seconds uint64
	checked time.Time
}

// NewUptime returns an uptime segment backed by the host boot time
func NewUptime() Plugin {
	return &Uptime{Read: host.Uptime}
}

func (u *Uptime) Init(rec *Record) error {
	rec.Version = "1.0"
	rec.Kind = KindStatusBar
	secs, err := u.Read()
	if err != nil {
		return fmt.Errorf("failed to read uptime: %w", err)
	}
	u.seconds = secs
	return nil
}

// Update re-reads the uptime at most once a minute
func (u *Uptime) Update(_ *Record, now time.Time) {
	if !u.checked.IsZero() && now.Sub(u.checked) < time.Minute {
		return
	}
	u.checked = now
	if secs, err := u.Read(); err == nil {
		u.seconds = secs
	}
}

func (u *Uptime) Render(*Record) string {
	return "up " + FormatUptime(u.seconds)
}

// FormatUptime renders seconds as "3d 4h" or "4h 05m"
func FormatUptime(secs uint64) string {
	d := secs / 86400
	h := secs % 86400 / 3600
	m := secs % 3600 / 60
	if d > 0 {
		return fmt.Sprintf("%dd %dh", d, h)
	}
	return fmt.Sprintf("%dh %02dm", h, m)
}
