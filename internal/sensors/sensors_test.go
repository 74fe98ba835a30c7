package sensors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	cpu      float64
	used     uint64
	total    uint64
	rx, tx   uint64
	fail     bool
	cpuCalls int
	memCalls int
	netCalls int
}

var errSample = errors.New("sample failed")

func (f *fakeSource) CPUPercent() (float64, error) {
	f.cpuCalls++
	if f.fail {
		return 0, errSample
	}
	return f.cpu, nil
}

func (f *fakeSource) Memory() (uint64, uint64, error) {
	f.memCalls++
	if f.fail {
		return 0, 0, errSample
	}
	return f.used, f.total, nil
}

func (f *fakeSource) NetCounters() (uint64, uint64, error) {
	f.netCalls++
	if f.fail {
		return 0, 0, errSample
	}
	return f.rx, f.tx, nil
}

func TestRefreshRespectsIntervals(t *testing.T) {
	src := &fakeSource{cpu: 10, used: 1, total: 4}
	c := NewCache(src, Intervals{CPU: 2 * time.Second, Mem: 5 * time.Second, Net: 2 * time.Second})
	start := time.Unix(1000, 0)

	c.Refresh(start)
	c.Refresh(start.Add(time.Second))
	require.Equal(t, 1, src.cpuCalls)
	require.Equal(t, 1, src.memCalls)

	c.Refresh(start.Add(2 * time.Second))
	require.Equal(t, 2, src.cpuCalls)
	require.Equal(t, 1, src.memCalls)

	c.Refresh(start.Add(5 * time.Second))
	require.Equal(t, 3, src.cpuCalls)
	require.Equal(t, 2, src.memCalls)
	require.InDelta(t, 25.0, c.Reading().MemPercent(), 0.001)
}

func TestReadingDoesNotSample(t *testing.T) {
	src := &fakeSource{cpu: 42}
	c := NewCache(src, DefaultIntervals())
	require.Zero(t, c.Reading().CPUPercent)
	require.Zero(t, src.cpuCalls)

	c.Refresh(time.Unix(0, 0))
	for i := 0; i < 5; i++ {
		require.Equal(t, 42.0, c.Reading().CPUPercent)
	}
	require.Equal(t, 1, src.cpuCalls)
}

func TestFailureKeepsLastValue(t *testing.T) {
	src := &fakeSource{cpu: 30, used: 512, total: 1024}
	c := NewCache(src, Intervals{CPU: time.Second, Mem: time.Second, Net: time.Second})
	now := time.Unix(0, 0)
	c.Refresh(now)

	src.fail = true
	src.cpu = 99
	c.Refresh(now.Add(time.Second))
	require.Equal(t, 30.0, c.Reading().CPUPercent)
	require.Equal(t, uint64(512), c.Reading().MemUsed)
}

func TestNetRate(t *testing.T) {
	src := &fakeSource{rx: 1000, tx: 100}
	c := NewCache(src, Intervals{Net: 2 * time.Second})
	now := time.Unix(0, 0)

	c.Refresh(now)
	require.Zero(t, c.Reading().NetRxRate)

	src.rx, src.tx = 5000, 300
	c.Refresh(now.Add(2 * time.Second))
	require.Equal(t, 2000.0, c.Reading().NetRxRate)
	require.Equal(t, 100.0, c.Reading().NetTxRate)

	// counter reset
	src.rx, src.tx = 10, 10
	c.Refresh(now.Add(4 * time.Second))
	require.Zero(t, c.Reading().NetRxRate)
	require.Zero(t, c.Reading().NetTxRate)
}

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "512B", FormatBytes(512))
	require.Equal(t, "1.5K", FormatBytes(1536))
	require.Equal(t, "2.0M", FormatBytes(2*1024*1024))
}

func TestMemPercentZeroTotal(t *testing.T) {
	require.Zero(t, Reading{MemUsed: 10}.MemPercent())
}
