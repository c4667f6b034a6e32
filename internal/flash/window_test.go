package flash

import (
	"fmt"
	"testing"
	"time"

	"github.com/ayusman/cardcapture/internal/inspect"
)

type torchEvent struct {
	on bool
	at time.Duration
}

type recordingTorch struct {
	now    *time.Duration
	events []torchEvent
}

func (r *recordingTorch) SetIllumination(on bool) {
	r.events = append(r.events, torchEvent{on: on, at: *r.now})
}

var (
	success = &inspect.QualityVerdict{Outcome: inspect.OutcomeSuccess}
	tooDark = &inspect.QualityVerdict{Outcome: inspect.OutcomeTooDark}
)

func TestWindow_Timeline(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var elapsed time.Duration
	torch := &recordingTorch{now: &elapsed}
	w := NewWindow(DefaultConfig(), torch)

	if !w.Open(base) {
		t.Fatal("Open() on armed window = false")
	}
	if w.State() != StateWarmup {
		t.Fatalf("state = %v, want warmup", w.State())
	}

	var offAt, doneAt time.Duration
	var started time.Duration
	// One frame every 50ms for 1.2s.
	for elapsed = 50 * time.Millisecond; elapsed <= 1200*time.Millisecond; elapsed += 50 * time.Millisecond {
		now := base.Add(elapsed)
		off, done := w.Advance(now)
		if off {
			offAt = elapsed
		}
		if done {
			doneAt = elapsed
			break
		}
		if !w.ReadyToEvaluate(now) {
			continue
		}
		v := tooDark
		if elapsed >= 250*time.Millisecond {
			v = success
		}
		if w.Observe(now, v) {
			started = elapsed
		}
		if w.HasRoom() {
			w.Accept(&Candidate{Handle: fmt.Sprintf("c%d", elapsed/time.Millisecond), Score: 1})
		}
	}

	if started != 250*time.Millisecond {
		t.Errorf("capture started at %v, want 250ms", started)
	}
	if offAt == 0 || offAt > 850*time.Millisecond {
		t.Errorf("illumination off at %v, want <= 850ms", offAt)
	}
	if doneAt != 950*time.Millisecond {
		t.Errorf("window closed at %v, want 950ms", doneAt)
	}
	if offAt > doneAt {
		t.Errorf("off at %v after close at %v", offAt, doneAt)
	}
	if len(torch.events) != 2 || !torch.events[0].on || torch.events[1].on {
		t.Errorf("torch events = %+v, want on then off", torch.events)
	}
	// Frames from 250ms up to 900ms are collected.
	if got := w.Candidates().Len(); got != 14 {
		t.Errorf("candidates = %d, want 14", got)
	}
}

func TestWindow_WarmupGatesEvaluation(t *testing.T) {
	base := time.Unix(0, 0)
	w := NewWindow(DefaultConfig(), nil)

	if w.ReadyToEvaluate(base) {
		t.Error("armed window should not evaluate")
	}
	w.Open(base)
	if w.ReadyToEvaluate(base.Add(199 * time.Millisecond)) {
		t.Error("evaluation before warm-up elapsed")
	}
	if !w.ReadyToEvaluate(base.Add(200 * time.Millisecond)) {
		t.Error("no evaluation after warm-up elapsed")
	}
}

func TestWindow_RelaxedUntilFirstSuccess(t *testing.T) {
	base := time.Unix(0, 0)
	w := NewWindow(DefaultConfig(), nil)
	w.Open(base)
	now := base.Add(300 * time.Millisecond)

	if !w.Relaxed() {
		t.Fatal("expected relaxed before first success")
	}
	if w.Observe(now, tooDark) {
		t.Error("failure should not start capture")
	}
	if w.Observe(now, nil) {
		t.Error("missing verdict should not start capture")
	}
	if !w.Observe(now, success) {
		t.Fatal("first success should start capture")
	}
	if w.Relaxed() {
		t.Error("expected strict checks after first success")
	}
	if w.Observe(now.Add(time.Millisecond), success) {
		t.Error("second success restarted capture")
	}
	if !w.CaptureStart().Equal(now) {
		t.Errorf("capture start = %v, want %v", w.CaptureStart(), now)
	}
}

func TestWindow_CapacityClosesWindow(t *testing.T) {
	base := time.Unix(0, 0)
	var elapsed time.Duration
	torch := &recordingTorch{now: &elapsed}
	cfg := DefaultConfig()
	cfg.MaxCandidates = 3
	w := NewWindow(cfg, torch)
	w.Open(base)
	w.Observe(base.Add(250*time.Millisecond), success)

	for i := 0; i < 5; i++ {
		w.Accept(&Candidate{Handle: fmt.Sprint(i)})
	}
	if got := w.Candidates().Len(); got != 3 {
		t.Fatalf("candidates = %d, want 3", got)
	}
	if w.HasRoom() {
		t.Error("full window reports room")
	}

	off, done := w.Advance(base.Add(260 * time.Millisecond))
	if !off || !done {
		t.Errorf("Advance() = (%v, %v), want (true, true)", off, done)
	}
	if len(torch.events) != 2 || torch.events[1].on {
		t.Errorf("torch events = %+v", torch.events)
	}
	if off, done := w.Advance(base.Add(300 * time.Millisecond)); off || done {
		t.Error("closed window advanced again")
	}
}

func TestWindow_NoCaptureWithoutSuccess(t *testing.T) {
	base := time.Unix(0, 0)
	w := NewWindow(DefaultConfig(), nil)
	w.Open(base)

	for ms := 0; ms < 5000; ms += 100 {
		now := base.Add(time.Duration(ms) * time.Millisecond)
		if _, done := w.Advance(now); done {
			t.Fatalf("window closed at %dms without a qualifying frame", ms)
		}
		w.Observe(now, tooDark)
		if w.Accept(&Candidate{}) {
			t.Fatal("candidate accepted before capture started")
		}
	}
	if w.State() != StateWarmup {
		t.Errorf("state = %v, want warmup", w.State())
	}
}

func TestWindow_OpenOnlyOnce(t *testing.T) {
	var calls int
	w := NewWindow(DefaultConfig(), inspect.TorchFunc(func(bool) { calls++ }))
	w.Open(time.Unix(0, 0))
	if w.Open(time.Unix(1, 0)) {
		t.Error("second Open() = true")
	}
	if calls != 1 {
		t.Errorf("torch calls = %d, want 1", calls)
	}
}

func TestWindow_Progress(t *testing.T) {
	w := NewWindow(DefaultConfig(), nil)
	w.BeginEvaluation()
	w.BeginEvaluation()
	w.EndEvaluation()
	if got := w.Progress(); got != 1 {
		t.Errorf("Progress() = %d, want 1", got)
	}
}

func TestWindow_Abandon(t *testing.T) {
	var events []bool
	w := NewWindow(DefaultConfig(), inspect.TorchFunc(func(on bool) { events = append(events, on) }))

	if w.Abandon() {
		t.Error("Abandon() on dark window issued OFF")
	}

	w = NewWindow(DefaultConfig(), inspect.TorchFunc(func(on bool) { events = append(events, on) }))
	w.Open(time.Unix(0, 0))
	if !w.Abandon() {
		t.Error("Abandon() on lit window did not issue OFF")
	}
	if w.State() != StateDone || w.LightOn() {
		t.Errorf("state = %v, light = %v", w.State(), w.LightOn())
	}
	if len(events) != 2 || !events[0] || events[1] {
		t.Errorf("torch events = %v, want [true false]", events)
	}
}
