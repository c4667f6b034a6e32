// Package session implements the capture state machine: it turns the camera
// frame stream into a quality-validated image set for one identity card.
package session

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/cardcapture/internal/assemble"
	"github.com/ayusman/cardcapture/internal/capture"
	"github.com/ayusman/cardcapture/internal/flash"
	"github.com/ayusman/cardcapture/internal/inspect"
	"github.com/ayusman/cardcapture/internal/logger"
	"github.com/ayusman/cardcapture/internal/ocr"
	"github.com/ayusman/cardcapture/internal/quality"
	"github.com/ayusman/cardcapture/internal/scratch"
	"github.com/ayusman/cardcapture/internal/selector"
	"github.com/ayusman/cardcapture/internal/store"
)

// Hint messages.
const (
	MsgFlashStarted  = "starting flash capture"
	MsgCaptureBegins = "flash capture begins"
	MsgLightOn       = "illumination on"
	MsgLightOff      = "illumination off"
	MsgIdentifying   = "starting identification and OCR"
)

// CorrectedImageName is the file name of the saved pre-flash image.
const CorrectedImageName = "corrected_image_1.jpg"

// Clock supplies the time for burst timing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// StillFunc converts a canonical chroma buffer into a still image.
type StillFunc func(nv21 []byte, width, height, quality int) (image.Image, error)

// Recorder persists the attempt history.
type Recorder interface {
	Create(a *store.Attempt) error
	Finish(a *store.Attempt) error
}

// Terminal is delivered once for every session that completes assembly.
type Terminal struct {
	SessionID string
	Result    assemble.CardResult
	OCR       *ocr.Response
	OCRErr    error
}

// Config holds the tunables of the machine.
type Config struct {
	WarmupFrames  int
	Flash         flash.Config
	JPEGQuality   int
	SaveCorrected bool
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		WarmupFrames:  capture.DefaultWarmupFrames,
		Flash:         flash.DefaultConfig(),
		JPEGQuality:   capture.DefaultJPEGQuality,
		SaveCorrected: true,
	}
}

// Deps are the collaborators of the machine. Inspector, Edges, Scorer,
// Identifier and Storage are required.
type Deps struct {
	Inspector  inspect.Inspector
	Edges      inspect.EdgeDetector
	Scorer     inspect.LightScorer
	Identifier inspect.Identifier
	OCR        ocr.Transport
	Storage    scratch.Storage
	Torch      inspect.Torch
	Recorder   Recorder
	Publisher  assemble.Publisher
	Clock      Clock
	Still      StillFunc
	Hint       func(msg string)
	OnTerminal func(Terminal)
}

// Machine is the capture state machine. Frames enter through OnFrame and are
// processed one at a time by Run.
type Machine struct {
	cfg       Config
	deps      Deps
	gate      *quality.Gate
	selector  *selector.Selector
	assembler *assemble.Assembler
	admission *capture.Admission
	work      chan *capture.Frame
	log       *logger.Logger

	mu      sync.Mutex
	sess    *Session
	started bool
}

// New creates a Machine in the idle phase.
func New(cfg Config, deps Deps) *Machine {
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Still == nil {
		deps.Still = capture.ToStillImage
	}
	if deps.Hint == nil {
		deps.Hint = func(string) {}
	}
	if deps.OnTerminal == nil {
		deps.OnTerminal = func(Terminal) {}
	}
	if deps.Torch == nil {
		deps.Torch = inspect.TorchFunc(func(bool) {})
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = capture.DefaultJPEGQuality
	}

	m := &Machine{
		cfg:       cfg,
		deps:      deps,
		admission: capture.NewAdmission(cfg.WarmupFrames),
		work:      make(chan *capture.Frame, 1),
		log:       logger.Named("session"),
	}
	m.gate = quality.New(deps.Inspector, m.hint)
	m.selector = selector.New(deps.Storage, deps.Edges, deps.Scorer, m.gate)
	m.assembler = assemble.New(deps.Identifier, deps.OCR, deps.Publisher)
	m.sess = m.newSession()
	return m
}

func (m *Machine) newSession() *Session {
	s := newSession(m.deps.Clock.Now(), m.log)
	s.window = flash.NewWindow(m.cfg.Flash, &sessionTorch{m: m, s: s})
	return s
}

// sessionTorch forwards illumination intents of the active session only.
type sessionTorch struct {
	m *Machine
	s *Session
}

func (t *sessionTorch) SetIllumination(on bool) {
	if !t.m.current(t.s) {
		return
	}
	t.m.deps.Torch.SetIllumination(on)
	if on {
		t.m.hint(MsgLightOn)
	} else {
		t.m.hint(MsgLightOff)
	}
}

func (m *Machine) hint(msg string) {
	m.deps.Hint(msg)
}

// current reports whether s is still the active session.
func (m *Machine) current(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess == s
}

func (m *Machine) session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Start arms the machine with the document frame geometry and begins a fresh
// attempt.
func (m *Machine) Start(geo inspect.Geometry) {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	m.gate.SetGeometry(geo)
	m.Reset()
}

// Reset discards the current session and starts a fresh one. When the
// machine was started, the fresh session is armed immediately.
func (m *Machine) Reset() {
	m.reset("reset")
}

// Stop discards the active session and leaves the machine idle until the next
// Start.
func (m *Machine) Stop() {
	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
	m.admission.Disarm()
	m.reset("stopped")
}

func (m *Machine) reset(reason string) {
	m.mu.Lock()
	old := m.sess
	m.sess = m.newSession()
	fresh := m.sess
	started := m.started
	if started {
		fresh.fire(evArm)
	}
	m.mu.Unlock()

	if started {
		m.admission.Arm()
		m.record(fresh)
	}
	m.discard(old, reason)
}

// discard releases what an abandoned session still holds.
func (m *Machine) discard(s *Session, reason string) {
	s.stopAssembly()
	if s.window.Abandon() {
		// The session is no longer current, so the intent bypassed sessionTorch.
		m.deps.Torch.SetIllumination(false)
		m.hint(MsgLightOff)
	}
	if s.Phase() == PhaseFlashBurst {
		for _, h := range s.window.Candidates().Handles() {
			if err := m.deps.Storage.Delete(h); err != nil {
				m.log.Warn().Err(err).Str("handle", h).Msg("delete candidate failed")
			}
		}
	}
	if s.Phase() == PhaseIdle {
		return
	}
	m.finishAttempt(s, store.AttemptAborted, reason, nil)
	if !s.Succeeded() {
		if err := m.deps.Storage.RemoveDir(s.Dir); err != nil {
			m.log.Warn().Err(err).Str("session", s.ID).Msg("remove session directory failed")
		}
	}
}

// Phase returns the phase of the active session.
func (m *Machine) Phase() Phase {
	return m.session().Phase()
}

// Snapshot returns a consistent view of the active session.
func (m *Machine) Snapshot() Snapshot {
	snap := m.session().snapshot()
	snap.Armed = m.admission.Armed()
	snap.InFlight = m.admission.InFlight()
	snap.Frames = m.admission.Total()
	return snap
}

// OnFrame offers a frame to the machine. It never blocks: frames that are not
// admitted are dropped and false is returned.
func (m *Machine) OnFrame(f *capture.Frame) bool {
	if !m.admission.Admit() {
		return false
	}
	select {
	case m.work <- f:
		return true
	default:
		m.admission.Release()
		return false
	}
}

// Run processes admitted frames until ctx is done.
func (m *Machine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-m.work:
			m.Process(f)
			m.admission.Release()
		}
	}
}

// Process runs one frame through the active session. Run calls it for every
// admitted frame.
func (m *Machine) Process(f *capture.Frame) {
	s := m.session()

	nv21, err := capture.ToCanonicalChroma(f)
	if err != nil {
		m.log.Debug().Err(err).Uint64("seq", f.Seq).Msg("frame dropped")
		return
	}

	switch s.Phase() {
	case PhaseDetectingType, PhasePreFlashQuality:
		m.processPreFlash(s, f, nv21)
	case PhaseFlashBurst:
		m.processBurst(s, f, nv21)
	default:
		m.log.Trace().Str("phase", string(s.Phase())).Msg("frame ignored")
	}
}

func (m *Machine) processPreFlash(s *Session, f *capture.Frame, nv21 []byte) {
	img, err := m.deps.Still(nv21, f.Width, f.Height, m.cfg.JPEGQuality)
	if err != nil {
		m.log.Debug().Err(err).Uint64("seq", f.Seq).Msg("still conversion failed")
		return
	}
	if !m.current(s) {
		return
	}

	ct := m.gate.ClassifyCardType(img)
	s.setCardType(ct)
	if ct != inspect.CardType18 {
		s.fire(evCardLost)
		return
	}
	s.fire(evCardDetected)

	v := m.gate.CheckStatic(img)
	if !v.Passed() || !m.current(s) {
		return
	}

	s.setImage(0, inspect.CorrectedFrom(v.Corrected, v))
	if m.cfg.SaveCorrected && v.Corrected != nil {
		if _, err := m.deps.Storage.Write(s.Dir, CorrectedImageName, v.Corrected); err != nil {
			m.log.Warn().Err(err).Str("session", s.ID).Msg("save corrected image failed")
		}
	}

	if !s.fire(evFlash) {
		return
	}
	s.window.Open(m.deps.Clock.Now())
	s.advancePhoto(PhotoFlashWarmup)
	m.hint(MsgFlashStarted)
}

func (m *Machine) processBurst(s *Session, f *capture.Frame, nv21 []byte) {
	now := m.deps.Clock.Now()
	w := s.window

	if _, done := w.Advance(now); done {
		m.finishBurst(s)
		return
	}
	if !w.ReadyToEvaluate(now) {
		return
	}

	w.BeginEvaluation()
	defer w.EndEvaluation()

	v := m.gate.CheckLight(nv21, f.Width, f.Height, m.cfg.Flash.Thresholds, w.Relaxed())
	if w.Observe(now, v) {
		s.advancePhoto(PhotoFlashCapture)
		if m.current(s) {
			m.hint(MsgCaptureBegins)
		}
	}
	if v == nil || v.Cut == nil || !w.HasRoom() {
		return
	}

	name := fmt.Sprintf("%d_%s_light_cut.jpg", now.UnixMilli(), uuid.NewString()[:8])
	h, err := m.deps.Storage.Write(s.Dir, name, v.Cut)
	if err != nil {
		m.log.Warn().Err(err).Str("session", s.ID).Msg("persist candidate failed")
		return
	}
	if !w.Accept(&flash.Candidate{Handle: h, Score: v.Score}) {
		if err := m.deps.Storage.Delete(h); err != nil {
			m.log.Warn().Err(err).Str("handle", h).Msg("delete rejected candidate failed")
		}
	}
}

func (m *Machine) finishBurst(s *Session) {
	if !s.fire(evSelect) {
		return
	}
	res := m.selector.Select(s.window.Candidates())

	if !m.current(s) {
		m.log.Debug().Str("session", s.ID).Msg("selection finished for a discarded session")
		return
	}
	if res.Outcome != selector.OutcomeSelected {
		m.abort(s, res.Outcome.Message())
		return
	}

	s.setImage(1, res.Images[0])
	s.setImage(2, res.Images[1])
	m.hint(MsgIdentifying)
	m.hint(res.Outcome.Message())

	m.admission.Disarm()
	if !s.fire(evAssemble) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.setCancel(cancel)

	p := m.assembler.Assemble(ctx, assemble.Request{
		AttemptID: s.ID,
		CardType:  s.CardType(),
		Images:    s.takeImages(),
	})
	go m.await(s, p)
}

func (m *Machine) await(s *Session, p *assemble.Pending) {
	out, ok := <-p.Done()
	s.stopAssembly()
	if !ok || !m.current(s) {
		return
	}
	s.fire(evFinish)
	m.finishAttempt(s, store.AttemptSuccess, selector.MsgSelected, &out.Result)
	m.log.Info().
		Str("session", s.ID).
		Bool("all_passed", out.Result.AllPassed).
		Bool("hologram_passed", out.Result.HologramPassed).
		Msg("capture finished")
	m.deps.OnTerminal(Terminal{
		SessionID: s.ID,
		Result:    out.Result,
		OCR:       out.OCR,
		OCRErr:    out.OCRErr,
	})
}

// abort ends s, re-arms a fresh session, then reports msg.
func (m *Machine) abort(s *Session, msg string) {
	s.fire(evAbort)
	m.finishAttempt(s, store.AttemptAborted, msg, nil)
	m.log.Info().Str("session", s.ID).Str("reason", msg).Msg("capture aborted")
	m.Reset()
	m.hint(msg)
}

func (m *Machine) record(s *Session) {
	if m.deps.Recorder == nil {
		return
	}
	err := m.deps.Recorder.Create(&store.Attempt{
		ID:        s.ID,
		CardType:  int(inspect.CardTypeInvalid),
		Status:    store.AttemptRunning,
		StartedAt: s.StartedAt,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("session", s.ID).Msg("record attempt failed")
	}
}

func (m *Machine) finishAttempt(s *Session, status store.AttemptStatus, msg string, res *assemble.CardResult) {
	if !s.finish(status == store.AttemptSuccess) || m.deps.Recorder == nil {
		return
	}
	a := &store.Attempt{
		ID:         s.ID,
		CardType:   int(s.CardType()),
		Status:     status,
		Message:    msg,
		Candidates: s.window.Candidates().Len(),
	}
	if res != nil {
		a.AllPassed = res.AllPassed
		a.HologramPassed = res.HologramPassed
	}
	if err := m.deps.Recorder.Finish(a); err != nil {
		m.log.Warn().Err(err).Str("session", s.ID).Msg("finish attempt failed")
	}
}
