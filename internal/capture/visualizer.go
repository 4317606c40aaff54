package capture

import (
	"math"
	"sync"
	"time"
)

// VisualizerBars is the number of level bars the UI renders.
const VisualizerBars = 16

const (
	visualizerMinInterval = 60 * time.Millisecond
	visualizerSensitivity = 2.5
	visualizerDecay       = 0.85
)

// Visualizer maintains a fixed-size array of normalized loudness levels for
// the UI. Levels are recomputed at most once per 60 ms from the latest frame
// RMS; each bar decays toward zero and is re-raised on new loudness input.
type Visualizer struct {
	mu          sync.Mutex
	levels      [VisualizerBars]float64
	minInterval time.Duration
	lastUpdate  time.Time
	now         func() time.Time
}

// NewVisualizer creates a visualizer with the default update throttle.
func NewVisualizer() *Visualizer {
	return &Visualizer{
		minInterval: visualizerMinInterval,
		now:         time.Now,
	}
}

// Observe feeds one frame's RMS energy into the level bars. Calls arriving
// faster than the throttle interval are dropped.
func (v *Visualizer) Observe(rms float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if now.Sub(v.lastUpdate) < v.minInterval {
		return
	}
	v.lastUpdate = now

	base := min(1, rms*visualizerSensitivity)
	t := float64(now.UnixMilli())

	for i := range v.levels {
		jitter := (math.Sin(t/120+float64(i)) + 1) / 12
		decayed := v.levels[i] * visualizerDecay
		v.levels[i] = max(decayed, min(1, base+jitter))
	}
}

// Levels returns a snapshot of the current bar levels, each in [0, 1].
func (v *Visualizer) Levels() []float64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]float64, VisualizerBars)
	copy(out, v.levels[:])

	return out
}
