// Package level samples the live input volume of the microphone stream while
// a recording is in progress. Each scheduled frame reads the byte frequency
// data of an [Analyser] fed by the stream and publishes its mean as a single
// 0–255 level.
package level

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/papo/pkg/audio"
)

// ErrUnavailable is returned by [Sampler.Start] when the audio graph could
// not be built. Callers treat it as non-fatal: recognition proceeds without
// a volume meter.
var ErrUnavailable = errors.New("level: audio analysis unavailable")

// Option configures a [Sampler].
type Option func(*Sampler)

// WithScheduler replaces the default [TimerScheduler].
func WithScheduler(s Scheduler) Option {
	return func(sm *Sampler) { sm.sched = s }
}

// WithAnalyser sets the analyser parameters used for every started session.
func WithAnalyser(cfg AnalyserConfig) Option {
	return func(sm *Sampler) { sm.cfg = cfg }
}

// WithFFTSize is shorthand for overriding only the FFT size.
func WithFFTSize(n int) Option {
	return func(sm *Sampler) { sm.cfg.FFTSize = n }
}

// Sampler publishes the current input level through its callback at every
// scheduled frame between Start and Stop.
type Sampler struct {
	source  audio.Source
	onLevel func(uint8)
	sched   Scheduler
	cfg     AnalyserConfig

	// pubMu orders publications so a frame level never lands after the
	// zero published by Stop. onLevel must not call back into the sampler.
	pubMu sync.Mutex

	mu       sync.Mutex
	running  bool
	gen      uint64
	stream   audio.Stream
	analyser *Analyser
	cancel   func()
	bins     []byte
}

// New creates a sampler reading from source. onLevel may be nil.
func New(source audio.Source, onLevel func(uint8), opts ...Option) *Sampler {
	s := &Sampler{
		source:  source,
		onLevel: onLevel,
		sched:   TimerScheduler{Interval: FrameInterval},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Running reports whether a sampling session is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start opens a stream from the source and begins publishing levels. It is a
// no-op while already running. Any failure is wrapped in [ErrUnavailable].
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.source == nil {
		return fmt.Errorf("%w: no audio source", ErrUnavailable)
	}
	an, err := NewAnalyser(s.cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	stream, err := s.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.gen++
	gen := s.gen
	s.running = true
	s.stream = stream
	s.analyser = an
	s.bins = make([]byte, an.FrequencyBinCount())

	go feed(stream, an)
	s.cancel = s.sched.Request(func() { s.tick(gen) })
	return nil
}

// Stop cancels the pending frame, closes the stream, releases the analyser
// and publishes a final level of zero. It is safe to call at any time and
// more than once.
func (s *Sampler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.release()
	s.mu.Unlock()

	if wasRunning {
		s.pubMu.Lock()
		s.publish(0)
		s.pubMu.Unlock()
	}
}

// release tears down the current session. The caller must hold s.mu.
func (s *Sampler) release() {
	s.running = false
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
	s.analyser = nil
	s.bins = nil
}

func (s *Sampler) tick(gen uint64) {
	s.mu.Lock()
	if !s.running || gen != s.gen {
		s.mu.Unlock()
		return
	}
	n := s.analyser.ByteFrequencyData(s.bins)
	v := Mean(s.bins[:n])
	s.cancel = s.sched.Request(func() { s.tick(gen) })
	s.mu.Unlock()

	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	current := s.running && gen == s.gen
	s.mu.Unlock()
	if current {
		s.publish(uint8(v + 0.5))
	}
}

func (s *Sampler) publish(v uint8) {
	if s.onLevel != nil {
		s.onLevel(v)
	}
}

// feed copies stream frames into the analyser until the stream closes.
func feed(stream audio.Stream, an *Analyser) {
	for f := range stream.Frames() {
		data := f.Data
		if f.Channels == 2 {
			data = audio.StereoToMono(data)
		}
		an.Write(audio.ToFloat32(data))
	}
}
