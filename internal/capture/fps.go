package capture

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultFPSWindow is the number of frames averaged by FPSMeter.
const DefaultFPSWindow = 30

const minFrameInterval = 1e-6

// FPSMeter averages the instantaneous frame rate over the last N frames.
type FPSMeter struct {
	mu      sync.Mutex
	size    int
	samples []float64
	last    time.Time
	now     func() time.Time
}

// NewFPSMeter creates a meter averaging over window frames. The first
// interval is measured from the moment the meter is created.
func NewFPSMeter(window int) *FPSMeter {
	if window < 1 {
		window = DefaultFPSWindow
	}
	return &FPSMeter{
		size:    window,
		samples: make([]float64, 0, window),
		last:    time.Now(),
		now:     time.Now,
	}
}

// Tick records a frame and returns the updated average.
func (m *FPSMeter) Tick() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	dt := now.Sub(m.last).Seconds()
	if dt < minFrameInterval {
		dt = minFrameInterval
	}
	m.last = now

	if len(m.samples) == m.size {
		copy(m.samples, m.samples[1:])
		m.samples = m.samples[:m.size-1]
	}
	m.samples = append(m.samples, 1/dt)

	return m.fps()
}

// FPS returns the current average, 0 before the first tick.
func (m *FPSMeter) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps()
}

func (m *FPSMeter) fps() float64 {
	if len(m.samples) == 0 {
		return 0
	}
	return stat.Mean(m.samples, nil)
}
