// Package flash implements the timed illumination burst: torch warm-up, the
// capture window opened by the first qualifying frame, and the forced close.
package flash

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/cardcapture/internal/inspect"
)

// Default burst timing.
const (
	DefaultWarmup     = 200 * time.Millisecond
	DefaultLightOff   = 600 * time.Millisecond
	DefaultCaptureEnd = 700 * time.Millisecond
)

// Default light-quality brightness thresholds.
const (
	DefaultThresholdLow  = 100
	DefaultThresholdHigh = 220
)

// State is the burst state.
type State int

const (
	StateArmed State = iota
	StateWarmup
	StateCapturing
	StateClosing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateWarmup:
		return "warmup"
	case StateCapturing:
		return "capturing"
	case StateClosing:
		return "closing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Config holds burst timing and capacity. Durations after the warm-up are
// measured from the capture start.
type Config struct {
	Warmup        time.Duration
	LightOff      time.Duration
	CaptureEnd    time.Duration
	MaxCandidates int
	Thresholds    inspect.Thresholds
}

// DefaultConfig returns the standard burst configuration.
func DefaultConfig() Config {
	return Config{
		Warmup:        DefaultWarmup,
		LightOff:      DefaultLightOff,
		CaptureEnd:    DefaultCaptureEnd,
		MaxCandidates: DefaultMaxCandidates,
		Thresholds:    inspect.Thresholds{Low: DefaultThresholdLow, High: DefaultThresholdHigh},
	}
}

// Window tracks one illumination burst. It is driven by the capture worker
// and may be observed from other goroutines.
type Window struct {
	cfg   Config
	torch inspect.Torch

	mu            sync.Mutex
	state         State
	openTime      time.Time
	captureStart  time.Time
	qualityPassed bool
	lightOn       bool

	candidates *Candidates
	progress   atomic.Int32
}

// NewWindow creates an armed window. A nil torch discards intents.
func NewWindow(cfg Config, torch inspect.Torch) *Window {
	if torch == nil {
		torch = inspect.TorchFunc(func(bool) {})
	}
	return &Window{
		cfg:        cfg,
		torch:      torch,
		state:      StateArmed,
		candidates: NewCandidates(cfg.MaxCandidates),
	}
}

// Config returns the window configuration.
func (w *Window) Config() Config { return w.cfg }

// State returns the current burst state.
func (w *Window) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// OpenTime returns when illumination was requested.
func (w *Window) OpenTime() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.openTime
}

// CaptureStart returns when the first qualifying frame arrived.
func (w *Window) CaptureStart() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.captureStart
}

// QualityPassed reports whether a light-quality check has succeeded.
func (w *Window) QualityPassed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.qualityPassed
}

// LightOn reports whether illumination is currently requested.
func (w *Window) LightOn() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lightOn
}

// Candidates returns the burst candidates.
func (w *Window) Candidates() *Candidates { return w.candidates }

// Progress returns the number of light-quality evaluations in flight.
func (w *Window) Progress() int { return int(w.progress.Load()) }

// Open requests illumination and starts the warm-up. It is a no-op unless the
// window is armed.
func (w *Window) Open(now time.Time) bool {
	w.mu.Lock()
	if w.state != StateArmed {
		w.mu.Unlock()
		return false
	}
	w.lightOn = true
	w.openTime = now
	w.state = StateWarmup
	w.mu.Unlock()

	w.torch.SetIllumination(true)
	return true
}

// Advance applies the close conditions for a frame arriving at now. off is
// true when this call issued the illumination-OFF intent; done is true when
// the window closed. OFF is always issued no later than the close.
func (w *Window) Advance(now time.Time) (off, done bool) {
	w.mu.Lock()
	if w.state == StateArmed || w.state == StateDone {
		w.mu.Unlock()
		return false, false
	}
	full := w.candidates.Full()
	started := !w.captureStart.IsZero()
	elapsed := now.Sub(w.captureStart)

	if w.state == StateCapturing && (full || (started && elapsed >= w.cfg.LightOff)) {
		w.state = StateClosing
	}
	if w.state == StateClosing && w.lightOn {
		w.lightOn = false
		off = true
	}
	if w.state == StateClosing && (full || (started && elapsed >= w.cfg.CaptureEnd)) {
		w.state = StateDone
		done = true
	}
	w.mu.Unlock()

	if off {
		w.torch.SetIllumination(false)
	}
	return off, done
}

// ReadyToEvaluate reports whether the warm-up has elapsed so frames should be
// light-checked.
func (w *Window) ReadyToEvaluate(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case StateWarmup, StateCapturing, StateClosing:
		return now.Sub(w.openTime) >= w.cfg.Warmup
	default:
		return false
	}
}

// Relaxed reports whether the next light check uses the relaxed bar.
func (w *Window) Relaxed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.qualityPassed
}

// BeginEvaluation marks a light-quality evaluation as in flight.
func (w *Window) BeginEvaluation() { w.progress.Add(1) }

// EndEvaluation marks a light-quality evaluation as finished.
func (w *Window) EndEvaluation() { w.progress.Add(-1) }

// Observe records a light-quality verdict. It returns true when this verdict
// started the capture window.
func (w *Window) Observe(now time.Time, v *inspect.QualityVerdict) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.qualityPassed || !v.Passed() {
		return false
	}
	if w.state != StateWarmup {
		return false
	}
	w.qualityPassed = true
	w.captureStart = now
	w.state = StateCapturing
	return true
}

// Accepting reports whether frames are being collected as candidates.
func (w *Window) Accepting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.accepting()
}

func (w *Window) accepting() bool {
	return w.qualityPassed && (w.state == StateCapturing || w.state == StateClosing)
}

// HasRoom reports whether another candidate would be kept. Callers check it
// before persisting a candidate image.
func (w *Window) HasRoom() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.accepting() && !w.candidates.Full()
}

// Accept stores a candidate subject to the capacity.
func (w *Window) Accept(c *Candidate) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.accepting() {
		return false
	}
	return w.candidates.Add(c)
}

// Abandon closes the window early, issuing illumination OFF if it is still
// requested. It returns true when OFF was issued.
func (w *Window) Abandon() bool {
	w.mu.Lock()
	w.state = StateDone
	wasOn := w.lightOn
	w.lightOn = false
	w.mu.Unlock()

	if wasOn {
		w.torch.SetIllumination(false)
	}
	return wasOn
}
