// Package detect aggregates synthetic-voice scores into alert decisions.
package detect

import (
	"sync"

	"go.uber.org/zap"

	"github.com/voiceguard-app/voiceguard/internal/config"
)

// Alert is an aggregate spoof verdict over the recent window.
type Alert struct {
	// Mean is the average confidence of the samples at or above the
	// threshold, in [0, 1].
	Mean float64

	// Samples is how many window entries met the threshold.
	Samples int
}

// SpoofAggregator keeps a sliding window of spoof confidence scores and
// raises an alert when enough recent samples agree. Single scores are noisy
// (short utterances, line artifacts), so the quorum rule requires sustained
// evidence before alarming.
type SpoofAggregator struct {
	logger    *zap.Logger
	threshold float64
	quorum    int

	mu     sync.Mutex
	window []float64
	head   int
	size   int
}

// NewSpoofAggregator creates an aggregator with the configured window
// capacity, threshold, and quorum.
func NewSpoofAggregator(logger *zap.Logger, cfg *config.Config) *SpoofAggregator {
	return &SpoofAggregator{
		logger:    logger,
		threshold: cfg.Analysis.SpoofThreshold,
		quorum:    cfg.Analysis.SpoofQuorum,
		window:    make([]float64, cfg.Analysis.SpoofWindow),
	}
}

// Add records one spoof confidence score, evicting the oldest when the
// window is full, and evaluates the quorum rule. It returns the alert and
// true when at least quorum samples in the window meet the threshold.
func (s *SpoofAggregator) Add(confidence float64) (Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.window[s.head] = confidence
	s.head = (s.head + 1) % len(s.window)
	if s.size < len(s.window) {
		s.size++
	}

	var sum float64
	var count int

	for i := 0; i < s.size; i++ {
		v := s.window[(s.head-s.size+i+len(s.window))%len(s.window)]
		if v >= s.threshold {
			sum += v
			count++
		}
	}

	if count < s.quorum {
		return Alert{}, false
	}

	alert := Alert{Mean: sum / float64(count), Samples: count}

	s.logger.Debug("Spoof quorum reached",
		zap.Float64("mean", alert.Mean),
		zap.Int("samples", alert.Samples))

	return alert, true
}

// Window returns the current scores, oldest first.
func (s *SpoofAggregator) Window() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]float64, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.window[(s.head-s.size+i+len(s.window))%len(s.window)]
	}

	return out
}

// Reset clears the window, e.g. when a new call starts.
func (s *SpoofAggregator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.head = 0
	s.size = 0
}
