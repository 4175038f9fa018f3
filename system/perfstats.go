package system

import (
	"sync"
	"time"

	"github.com/sarchlab/palmsim/coretiming"
)

// PerfStats accumulates emulation speed counters across scheduling slices.
type PerfStats struct {
	mu sync.Mutex

	emulatedTicks uint64
	wallTime      time.Duration
}

// PerfResults is one snapshot of the counters since the last reset.
type PerfResults struct {
	// EmulationSpeed is emulated time over wall time; 1.0 is full speed.
	EmulationSpeed float64
	// EmulatedUs is the emulated time accumulated, in microseconds.
	EmulatedUs uint64
	// WallTime is the host time spent emulating.
	WallTime time.Duration
}

// NewPerfStats creates zeroed counters.
func NewPerfStats() *PerfStats {
	return &PerfStats{}
}

// AddSlice records one scheduling slice: ticks of emulated progress against
// the wall time it took.
func (p *PerfStats) AddSlice(ticks uint64, wall time.Duration) {
	p.mu.Lock()
	p.emulatedTicks += ticks
	p.wallTime += wall
	p.mu.Unlock()
}

// GetAndReset returns the counters since the last reset and zeroes them.
func (p *PerfStats) GetAndReset() PerfResults {
	p.mu.Lock()
	defer p.mu.Unlock()

	emulatedUs := coretiming.TicksToUs(p.emulatedTicks)
	r := PerfResults{
		EmulatedUs: emulatedUs,
		WallTime:   p.wallTime,
	}
	if p.wallTime > 0 {
		emulated := time.Duration(emulatedUs) * time.Microsecond
		r.EmulationSpeed = float64(emulated) / float64(p.wallTime)
	}

	p.emulatedTicks = 0
	p.wallTime = 0
	return r
}
