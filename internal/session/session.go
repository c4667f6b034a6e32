package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/ayusman/cardcapture/internal/flash"
	"github.com/ayusman/cardcapture/internal/inspect"
	"github.com/ayusman/cardcapture/internal/logger"
)

// Phase is the top-level state of a capture attempt.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseDetectingType   Phase = "detecting_type"
	PhasePreFlashQuality Phase = "pre_flash_quality"
	PhaseFlashBurst      Phase = "flash_burst"
	PhaseSelecting       Phase = "selecting"
	PhaseAssembling      Phase = "assembling"
	PhaseTerminal        Phase = "terminal"
)

// Phase events.
const (
	evArm          = "arm"
	evCardDetected = "card_detected"
	evCardLost     = "card_lost"
	evFlash        = "flash"
	evSelect       = "select"
	evAssemble     = "assemble"
	evFinish       = "finish"
	evAbort        = "abort"
)

// Photo indexes of a session.
const (
	PhotoPreFlash     = 0
	PhotoFlashWarmup  = 1
	PhotoFlashCapture = 2
)

func newPhaseFSM(id string, log *logger.Logger) *fsm.FSM {
	return fsm.NewFSM(
		string(PhaseIdle),
		fsm.Events{
			{Name: evArm, Src: []string{string(PhaseIdle)}, Dst: string(PhaseDetectingType)},
			{Name: evCardDetected, Src: []string{string(PhaseDetectingType)}, Dst: string(PhasePreFlashQuality)},
			{Name: evCardLost, Src: []string{string(PhasePreFlashQuality)}, Dst: string(PhaseDetectingType)},
			{Name: evFlash, Src: []string{string(PhasePreFlashQuality)}, Dst: string(PhaseFlashBurst)},
			{Name: evSelect, Src: []string{string(PhaseFlashBurst)}, Dst: string(PhaseSelecting)},
			{Name: evAssemble, Src: []string{string(PhaseSelecting)}, Dst: string(PhaseAssembling)},
			{Name: evFinish, Src: []string{string(PhaseAssembling)}, Dst: string(PhaseTerminal)},
			{Name: evAbort, Src: []string{string(PhaseFlashBurst), string(PhaseSelecting)}, Dst: string(PhaseTerminal)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug().
					Str("session", id).
					Str("from", e.Src).
					Str("to", e.Dst).
					Msg("phase transition")
			},
		},
	)
}

// Session is the mutable state of one capture attempt. A reset replaces the
// whole Session, so frames still running against an old Session cannot
// reach the new one.
type Session struct {
	ID        string
	Dir       string
	StartedAt time.Time

	phase  *fsm.FSM
	window *flash.Window

	mu         sync.Mutex
	cancel     context.CancelFunc
	cardType   inspect.CardType
	photoIndex int
	images     [3]inspect.Corrected
	finished   bool
	succeeded  bool
}

func newSession(now time.Time, log *logger.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:        id,
		Dir:       fmt.Sprintf("%d-%s", now.UnixMilli(), id),
		StartedAt: now,
		phase:     newPhaseFSM(id, log),
		cardType:  inspect.CardTypeInvalid,
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return Phase(s.phase.Current())
}

// Window returns the illumination burst of this session.
func (s *Session) Window() *flash.Window {
	return s.window
}

// fire moves the phase machine. Events not valid in the current phase are
// ignored and reported as false.
func (s *Session) fire(event string) bool {
	return s.phase.Event(context.Background(), event) == nil
}

func (s *Session) CardType() inspect.CardType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cardType
}

func (s *Session) setCardType(ct inspect.CardType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cardType = ct
}

func (s *Session) PhotoIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.photoIndex
}

// advancePhoto moves the photo index forward only.
func (s *Session) advancePhoto(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx > s.photoIndex {
		s.photoIndex = idx
	}
}

func (s *Session) setImage(slot int, c inspect.Corrected) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[slot] = c
}

// takeImages hands the corrected images over and clears the slots.
func (s *Session) takeImages() [3]inspect.Corrected {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.images
	s.images = [3]inspect.Corrected{}
	return out
}

func (s *Session) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

// stopAssembly cancels a running assembly.
func (s *Session) stopAssembly() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// finish marks the session as ended. It returns false if it already was.
func (s *Session) finish(success bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.finished = true
	s.succeeded = success
	return true
}

// Succeeded reports whether the session ended with a terminal result.
func (s *Session) Succeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.succeeded
}

// Snapshot is a consistent read-only view of a session.
type Snapshot struct {
	SessionID     string    `json:"session_id"`
	Phase         Phase     `json:"phase"`
	Burst         string    `json:"burst"`
	CardType      int       `json:"card_type"`
	PhotoIndex    int       `json:"photo_index"`
	Candidates    int       `json:"candidates"`
	Progress      int       `json:"progress"`
	QualityPassed bool      `json:"quality_passed"`
	Accepting     bool      `json:"accepting"`
	LightOn       bool      `json:"light_on"`
	OpenTime      time.Time `json:"open_time"`
	CaptureStart  time.Time `json:"capture_start"`
	StartedAt     time.Time `json:"started_at"`
	Armed         bool      `json:"armed"`
	InFlight      bool      `json:"in_flight"`
	Frames        uint64    `json:"frames"`
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		SessionID:  s.ID,
		CardType:   int(s.cardType),
		PhotoIndex: s.photoIndex,
		StartedAt:  s.StartedAt,
	}
	s.mu.Unlock()

	snap.Phase = s.Phase()
	snap.Burst = s.window.State().String()
	snap.Candidates = s.window.Candidates().Len()
	snap.Progress = s.window.Progress()
	snap.QualityPassed = s.window.QualityPassed()
	snap.Accepting = s.window.Accepting()
	snap.LightOn = s.window.LightOn()
	snap.OpenTime = s.window.OpenTime()
	snap.CaptureStart = s.window.CaptureStart()
	return snap
}
