// Package sensors caches CPU, memory and network readings for the status
// line. Each sensor is refreshed at most once per its own interval.
package sensors

import (
	"fmt"
	"time"

	"github.com/vaultos/vaultwm/internal/logger"
)

// Default refresh intervals
const (
	DefaultCPUInterval = 2 * time.Second
	DefaultMemInterval = 5 * time.Second
	DefaultNetInterval = 2 * time.Second
)

// Source reads raw system counters
type Source interface {
	// CPUPercent returns total utilisation since the previous call
	CPUPercent() (float64, error)
	// Memory returns used and total bytes
	Memory() (used, total uint64, err error)
	// NetCounters returns cumulative received and sent bytes
	NetCounters() (rx, tx uint64, err error)
}

// Reading is the cached view handed to renderers
type Reading struct {
	CPUPercent float64 `json:"cpu_percent" yaml:"cpu_percent"`
	MemUsed    uint64  `json:"mem_used" yaml:"mem_used"`
	MemTotal   uint64  `json:"mem_total" yaml:"mem_total"`
	NetRxRate  float64 `json:"net_rx_rate" yaml:"net_rx_rate"`
	NetTxRate  float64 `json:"net_tx_rate" yaml:"net_tx_rate"`
}

// MemPercent returns used memory as a percentage of total
func (r Reading) MemPercent() float64 {
	if r.MemTotal == 0 {
		return 0
	}
	return float64(r.MemUsed) * 100 / float64(r.MemTotal)
}

// Intervals configures how often each sensor may be sampled
type Intervals struct {
	CPU time.Duration
	Mem time.Duration
	Net time.Duration
}

// DefaultIntervals returns the stock refresh intervals
func DefaultIntervals() Intervals {
	return Intervals{CPU: DefaultCPUInterval, Mem: DefaultMemInterval, Net: DefaultNetInterval}
}

// Cache holds the last reading of every sensor. It is owned by the
// control loop and is not safe for concurrent use.
type Cache struct {
	source    Source
	intervals Intervals
	reading   Reading

	cpuAt, memAt, netAt time.Time
	netPrimed           bool
	prevRx, prevTx      uint64
}

// NewCache creates a cache reading from source
func NewCache(source Source, intervals Intervals) *Cache {
	if intervals.CPU <= 0 {
		intervals.CPU = DefaultCPUInterval
	}
	if intervals.Mem <= 0 {
		intervals.Mem = DefaultMemInterval
	}
	if intervals.Net <= 0 {
		intervals.Net = DefaultNetInterval
	}
	return &Cache{source: source, intervals: intervals}
}

// SetIntervals changes the refresh intervals, e.g. after a reload
func (c *Cache) SetIntervals(intervals Intervals) {
	if intervals.CPU > 0 {
		c.intervals.CPU = intervals.CPU
	}
	if intervals.Mem > 0 {
		c.intervals.Mem = intervals.Mem
	}
	if intervals.Net > 0 {
		c.intervals.Net = intervals.Net
	}
}

func due(last, now time.Time, every time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= every
}

// Refresh samples every sensor whose interval has elapsed. A failed
// sample keeps the previous value.
func (c *Cache) Refresh(now time.Time) {
	log := logger.WithComponent("sensors")

	if due(c.cpuAt, now, c.intervals.CPU) {
		c.cpuAt = now
		if pct, err := c.source.CPUPercent(); err != nil {
			log.Warn().Err(err).Msg("CPU sample failed, keeping last value")
		} else {
			c.reading.CPUPercent = pct
		}
	}

	if due(c.memAt, now, c.intervals.Mem) {
		c.memAt = now
		if used, total, err := c.source.Memory(); err != nil {
			log.Warn().Err(err).Msg("Memory sample failed, keeping last value")
		} else {
			c.reading.MemUsed, c.reading.MemTotal = used, total
		}
	}

	if due(c.netAt, now, c.intervals.Net) {
		prev := c.netAt
		c.netAt = now
		rx, tx, err := c.source.NetCounters()
		if err != nil {
			log.Warn().Err(err).Msg("Network sample failed, keeping last value")
			return
		}
		if c.netPrimed {
			secs := now.Sub(prev).Seconds()
			c.reading.NetRxRate = rate(c.prevRx, rx, secs)
			c.reading.NetTxRate = rate(c.prevTx, tx, secs)
		}
		c.prevRx, c.prevTx, c.netPrimed = rx, tx, true
	}
}

// rate returns bytes per second, zero on counter reset
func rate(prev, cur uint64, secs float64) float64 {
	if cur < prev || secs <= 0 {
		return 0
	}
	return float64(cur-prev) / secs
}

// Reading returns the cached values without sampling
func (c *Cache) Reading() Reading {
	return c.reading
}

// FormatBytes renders a byte count with a binary unit suffix
func FormatBytes(n float64) string {
	const unit = 1024
	suffixes := []string{"B", "K", "M", "G", "T"}
	i := 0
	for n >= unit && i < len(suffixes)-1 {
		n /= unit
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%.0f%s", n, suffixes[i])
	}
	return fmt.Sprintf("%.1f%s", n, suffixes[i])
}
