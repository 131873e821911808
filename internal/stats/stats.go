// Package stats samples the host load announced to mobile clients.
package stats

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot holds percentages in [0, 100].
type Snapshot struct {
	CPU     float64
	Memory  float64
	Battery float64
}

// FullBattery is reported by hosts without a battery.
const FullBattery = 100.0

const defaultPowerSupplyDir = "/sys/class/power_supply"

type Collector struct {
	// CPU sampling window
	Interval time.Duration
	// sysfs directory listing power supplies
	PowerSupplyDir string
}

func NewCollector() *Collector {
	return &Collector{Interval: 200 * time.Millisecond, PowerSupplyDir: defaultPowerSupplyDir}
}

func (c *Collector) Fetch(ctx context.Context) (Snapshot, error) {
	percents, err := cpu.PercentWithContext(ctx, c.Interval, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("could not sample cpu: %v", err)
	}
	if len(percents) == 0 {
		return Snapshot{}, fmt.Errorf("could not sample cpu: no data")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("could not read memory usage: %v", err)
	}
	return Snapshot{CPU: percents[0], Memory: vm.UsedPercent, Battery: c.battery()}, nil
}

// battery averages the capacity of every battery found under PowerSupplyDir.
func (c *Collector) battery() float64 {
	dirs, err := filepath.Glob(filepath.Join(c.PowerSupplyDir, "BAT*"))
	if err != nil || len(dirs) == 0 {
		return FullBattery
	}
	total, found := 0.0, 0
	for _, dir := range dirs {
		raw, err := os.ReadFile(filepath.Join(dir, "capacity"))
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			continue
		}
		total += v
		found++
	}
	if found == 0 {
		return FullBattery
	}
	return total / float64(found)
}
