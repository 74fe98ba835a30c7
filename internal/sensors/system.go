package sensors

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// System reads counters from the running host
type System struct{}

// NewSystem returns a Source backed by the host's /proc counters
func NewSystem() *System {
	return &System{}
}

func (System) CPUPercent() (float64, error) {
	pcts, err := cpu.Percent(0, false)
	if err != nil {
		return 0, fmt.Errorf("failed to read cpu times: %w", err)
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("no cpu data")
	}
	return pcts[0], nil
}

func (System) Memory() (uint64, uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read memory info: %w", err)
	}
	return vm.Used, vm.Total, nil
}

// NetCounters sums every interface except loopback
func (System) NetCounters() (uint64, uint64, error) {
	counters, err := net.IOCounters(true)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read network counters: %w", err)
	}
	var rx, tx uint64
	for _, c := range counters {
		if c.Name == "lo" {
			continue
		}
		rx += c.BytesRecv
		tx += c.BytesSent
	}
	return rx, tx, nil
}
