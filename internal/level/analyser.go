package level

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyser computes byte frequency data the way a Web Audio AnalyserNode
// does: Blackman window, FFT, exponential smoothing over time, and a linear
// map from [MinDecibels, MaxDecibels] onto 0–255.
//
// Analyser is safe for concurrent use; Write and ByteFrequencyData are
// typically called from different goroutines.
type Analyser struct {
	fftSize   int
	smoothing float64
	minDB     float64
	maxDB     float64

	fft    *fourier.FFT
	window []float64

	mu     sync.Mutex
	ring   []float64
	pos    int
	filled int
	prev   []float64
	frame  []float64
	coeffs []complex128
}

// AnalyserConfig configures an [Analyser]. Zero values take the Web Audio
// defaults.
type AnalyserConfig struct {
	FFTSize     int     // power of two in [32, 32768]; default 256
	Smoothing   float64 // time constant in [0, 1); default 0.8
	MinDecibels float64 // default -100
	MaxDecibels float64 // default -30
}

// NewAnalyser validates cfg and builds an analyser.
func NewAnalyser(cfg AnalyserConfig) (*Analyser, error) {
	if cfg.FFTSize == 0 {
		cfg.FFTSize = 256
	}
	if cfg.FFTSize < 32 || cfg.FFTSize > 32768 || cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		return nil, fmt.Errorf("level: fft size %d is not a power of two in [32, 32768]", cfg.FFTSize)
	}
	if cfg.Smoothing == 0 {
		cfg.Smoothing = 0.8
	}
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		return nil, fmt.Errorf("level: smoothing %v out of range [0, 1)", cfg.Smoothing)
	}
	if cfg.MinDecibels == 0 && cfg.MaxDecibels == 0 {
		cfg.MinDecibels, cfg.MaxDecibels = -100, -30
	}
	if cfg.MinDecibels >= cfg.MaxDecibels {
		return nil, fmt.Errorf("level: min decibels %v must be below max %v", cfg.MinDecibels, cfg.MaxDecibels)
	}

	n := cfg.FFTSize
	window := make([]float64, n)
	for i := range window {
		x := 2 * math.Pi * float64(i) / float64(n)
		window[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return &Analyser{
		fftSize:   n,
		smoothing: cfg.Smoothing,
		minDB:     cfg.MinDecibels,
		maxDB:     cfg.MaxDecibels,
		fft:       fourier.NewFFT(n),
		window:    window,
		ring:      make([]float64, n),
		prev:      make([]float64, n/2),
		frame:     make([]float64, n),
		coeffs:    make([]complex128, n/2+1),
	}, nil
}

// FrequencyBinCount returns fftSize/2, the length of the byte data.
func (a *Analyser) FrequencyBinCount() int { return a.fftSize / 2 }

// Write appends time-domain samples in [-1, 1]. Only the most recent
// fftSize samples are kept.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.pos] = float64(s)
		a.pos = (a.pos + 1) % a.fftSize
		if a.filled < a.fftSize {
			a.filled++
		}
	}
}

// ByteFrequencyData fills dst (up to FrequencyBinCount entries) with the
// current spectrum and returns the number of bins written. Samples that
// have not arrived yet count as silence.
func (a *Analyser) ByteFrequencyData(dst []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.fftSize
	// Oldest sample first; missing samples are zero.
	missing := n - a.filled
	for i := range a.frame {
		if i < missing {
			a.frame[i] = 0
			continue
		}
		idx := (a.pos - a.filled + (i - missing) + n) % n
		a.frame[i] = a.ring[idx] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	bins := min(len(dst), n/2)
	scale := 255 / (a.maxDB - a.minDB)
	for k := range n / 2 {
		c := a.coeffs[k]
		mag := math.Hypot(real(c), imag(c)) / float64(n)
		a.prev[k] = a.smoothing*a.prev[k] + (1-a.smoothing)*mag
		if k >= bins {
			continue
		}
		db := math.Inf(-1)
		if a.prev[k] > 0 {
			db = 20 * math.Log10(a.prev[k])
		}
		v := math.Floor(scale * (db - a.minDB))
		switch {
		case math.IsNaN(v) || v < 0:
			dst[k] = 0
		case v > 255:
			dst[k] = 255
		default:
			dst[k] = byte(v)
		}
	}
	return bins
}

// Mean returns the arithmetic mean of data, or 0 for an empty slice.
func Mean(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum int
	for _, v := range data {
		sum += int(v)
	}
	return float64(sum) / float64(len(data))
}
