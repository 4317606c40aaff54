// Package playback renders inbound call audio to the local output device.
package playback

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"go.uber.org/zap"
)

// Player renders a block of mono PCM samples.
type Player interface {
	Play(samples []int16, sampleRate int)
}

// speakerPlayer plays audio through the default output device. The speaker
// is initialized once at the first block's sample rate; all call audio runs
// at the configured capture rate so no resampling is needed.
type speakerPlayer struct {
	logger   *zap.Logger
	initOnce sync.Once
	initErr  error
}

// NewSpeakerPlayer creates a player backed by the system speaker.
func NewSpeakerPlayer(logger *zap.Logger) Player {
	return &speakerPlayer{logger: logger}
}

func (p *speakerPlayer) Play(samples []int16, sampleRate int) {
	p.initOnce.Do(func() {
		rate := beep.SampleRate(sampleRate)
		// 100 ms of buffer keeps playback smooth without adding
		// noticeable latency on top of the relay interval.
		p.initErr = speaker.Init(rate, rate.N(time.Second/10))
		if p.initErr != nil {
			p.logger.Error("Failed to initialize speaker", zap.Error(p.initErr))
		}
	})

	if p.initErr != nil {
		return
	}

	speaker.Play(&pcmStreamer{samples: samples})
}

// pcmStreamer streams a fixed block of mono int16 samples as beep's
// float64 stereo frames.
type pcmStreamer struct {
	samples []int16
	pos     int
}

func (s *pcmStreamer) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}

	n := 0
	for i := range out {
		if s.pos >= len(s.samples) {
			break
		}

		v := float64(s.samples[s.pos]) / 0x8000
		out[i][0] = v
		out[i][1] = v
		s.pos++
		n++
	}

	return n, true
}

func (s *pcmStreamer) Err() error { return nil }

// NoopPlayer discards audio. Used when no output device is available or in
// tests.
type NoopPlayer struct{}

func (NoopPlayer) Play(samples []int16, sampleRate int) {}
