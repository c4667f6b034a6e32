package app

import (
	"image"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/cardcapture/internal/capture"
	"github.com/ayusman/cardcapture/internal/config"
	"github.com/ayusman/cardcapture/internal/inspect"
	"github.com/ayusman/cardcapture/internal/scratch"
	"github.com/ayusman/cardcapture/internal/session"
)

func testFrames(n int) []*capture.Frame {
	const w, h = 8, 8
	frames := make([]*capture.Frame, n)
	for i := range frames {
		buf := make([]byte, w*h*3/2)
		for j := range buf {
			buf[j] = byte(100 + i)
		}
		frames[i] = capture.NewI420Frame(buf, w, h, time.Time{})
	}
	return frames
}

func newTestApp(t *testing.T, cam capture.Camera) (*App, *scratch.Memory) {
	t.Helper()
	storage := scratch.NewMemory()

	cfg := session.DefaultConfig()
	cfg.WarmupFrames = 2

	a := New(Config{
		Camera:    cam,
		FPS:       100,
		Geometry:  inspect.Geometry{Preview: image.Pt(8, 8)},
		AutoBegin: true,
		Machine:   cfg,
		Deps: session.Deps{
			Inspector:  inspect.NewMockInspector(),
			Edges:      &inspect.MockEdgeDetector{},
			Scorer:     &inspect.MockScorer{},
			Identifier: &inspect.MockIdentifier{Result: &inspect.Identification{Success: true}},
			Storage:    storage,
			Still: func(nv21 []byte, width, height, quality int) (image.Image, error) {
				return inspect.SolidImage(width, height, 120), nil
			},
		},
	})
	t.Cleanup(a.Stop)
	return a, storage
}

func TestApp_CaptureToTerminal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing-dependent pipeline test")
	}

	cam := capture.NewMockCamera(testFrames(4), true)
	a, storage := newTestApp(t, cam)
	events, unsubscribe := a.Hub().Subscribe()
	defer unsubscribe()

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !a.Running() {
		t.Fatal("Running() = false after Start")
	}

	var hints []string
	deadline := time.After(10 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == EventHint {
				hints = append(hints, e.Message)
				continue
			}
			if e.Type != EventTerminal {
				t.Fatalf("unexpected event %+v", e)
			}
			if e.Result == nil || !e.Result.AllPassed {
				t.Errorf("terminal result = %+v, want all passed", e.Result)
			}
			if e.SessionID == "" {
				t.Error("terminal event has no session id")
			}
			if a.Machine().Phase() != session.PhaseTerminal {
				t.Errorf("Phase() = %v, want terminal", a.Machine().Phase())
			}
			for _, h := range storage.Handles() {
				if strings.HasSuffix(h, "_light_cut.jpg") {
					t.Errorf("candidate %s left behind", h)
				}
			}
			if len(hints) == 0 {
				t.Error("no hints before terminal")
			}
			if s := a.Stats(); s.Read == 0 {
				t.Errorf("Stats() = %+v, want frames read", s)
			}
			return
		case <-deadline:
			t.Fatalf("no terminal event; hints = %v, snapshot = %+v", hints, a.Machine().Snapshot())
		}
	}
}

func TestApp_StartStop(t *testing.T) {
	cam := capture.NewMockCamera(testFrames(1), true)
	a, _ := newTestApp(t, cam)

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if !cam.IsOpen() {
		t.Error("camera not opened")
	}

	a.Stop()
	if a.Running() {
		t.Error("Running() = true after Stop")
	}
	if cam.IsOpen() {
		t.Error("camera still open after Stop")
	}
	if a.Machine().Phase() != session.PhaseIdle {
		t.Errorf("Phase() after Stop = %v, want idle", a.Machine().Phase())
	}
	a.Stop()
}

func TestApp_BeginFallsBackToConfiguredGeometry(t *testing.T) {
	a, _ := newTestApp(t, capture.NewMockCamera(nil, false))

	a.Begin(inspect.Geometry{})
	if a.Machine().Phase() != session.PhaseDetectingType {
		t.Errorf("Phase() = %v, want detecting_type", a.Machine().Phase())
	}
}

func TestTerminalEvent(t *testing.T) {
	e := terminalEvent(session.Terminal{SessionID: "s1", OCRErr: errTest("ocr down")})
	if e.Type != EventTerminal || e.SessionID != "s1" {
		t.Errorf("event = %+v", e)
	}
	if e.Error != "ocr down" {
		t.Errorf("Error = %q, want %q", e.Error, "ocr down")
	}
	if e.Result == nil {
		t.Error("Result is nil")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestMachineConfig(t *testing.T) {
	c := config.Defaults(t.TempDir())
	c.MaxCandidates = 12
	c.ThresholdLow = 90

	mc := MachineConfig(c)
	if mc.Flash.MaxCandidates != 12 {
		t.Errorf("MaxCandidates = %d, want 12", mc.Flash.MaxCandidates)
	}
	if mc.Flash.Thresholds.Low != 90 || mc.Flash.Thresholds.High != c.ThresholdHigh {
		t.Errorf("Thresholds = %+v", mc.Flash.Thresholds)
	}
	if mc.Flash.LightOff != c.LightOff || mc.Flash.CaptureEnd != c.CaptureEnd || mc.Flash.Warmup != c.FlashWarmup {
		t.Errorf("timings = %+v", mc.Flash)
	}
	if mc.WarmupFrames != c.WarmupFrames || mc.JPEGQuality != c.JPEGQuality {
		t.Errorf("config = %+v", mc)
	}

	geo := Geometry(c)
	if geo.Preview != image.Pt(c.PreviewWidth, c.PreviewHeight) || geo.Corners != c.Corners {
		t.Errorf("Geometry() = %+v", geo)
	}
}
