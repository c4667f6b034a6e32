package config

import (
	"image"
	"strings"
	"testing"
	"time"
)

func TestPrefixAndKey(t *testing.T) {
	root := New()
	cc := root.Prefix("CARDCAP_")
	if got := cc.key("FPS"); got != "CARDCAP_FPS" {
		t.Fatalf("key() = %q, want %q", got, "CARDCAP_FPS")
	}
	nested := cc.Prefix("OCR_")
	if got := nested.key("TIMEOUT"); got != "CARDCAP_OCR_TIMEOUT" {
		t.Fatalf("nested key() = %q, want %q", got, "CARDCAP_OCR_TIMEOUT")
	}
}

func TestMayHelpers(t *testing.T) {
	c := New().Prefix("T_")
	t.Setenv("T_INT", " 12 ")
	t.Setenv("T_BADINT", "x")
	t.Setenv("T_DUR", "250ms")
	t.Setenv("T_FLOAT", "0.5")
	t.Setenv("T_BOOL", "false")
	t.Setenv("T_CSV", "python3, bridge.py ,,")
	t.Setenv("T_INTS", "1,2,3")
	t.Setenv("T_BADINTS", "1,b")

	if got := c.MayInt("INT", 0); got != 12 {
		t.Errorf("MayInt = %d, want 12", got)
	}
	if got := c.MayInt("BADINT", 7); got != 7 {
		t.Errorf("MayInt(invalid) = %d, want default 7", got)
	}
	if got := c.MayInt("MISSING", 3); got != 3 {
		t.Errorf("MayInt(missing) = %d, want 3", got)
	}
	if got := c.MayDuration("DUR", 0); got != 250*time.Millisecond {
		t.Errorf("MayDuration = %v", got)
	}
	if got := c.MayFloat64("FLOAT", 0); got != 0.5 {
		t.Errorf("MayFloat64 = %v", got)
	}
	if got := c.MayBool("BOOL", true); got {
		t.Errorf("MayBool = %v, want false", got)
	}
	if got := c.MayCSV("CSV", nil); len(got) != 2 || got[0] != "python3" || got[1] != "bridge.py" {
		t.Errorf("MayCSV = %q", got)
	}
	if got := c.MayInts("INTS", nil); len(got) != 3 || got[2] != 3 {
		t.Errorf("MayInts = %v", got)
	}
	if got := c.MayInts("BADINTS", []int{9}); len(got) != 1 || got[0] != 9 {
		t.Errorf("MayInts(invalid) = %v, want default", got)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CARDCAP_DATA_DIR", dir)
	t.Setenv("CARDCAP_INSPECTOR_CMD", "cardsdk-bridge")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WarmupFrames != 10 || cfg.MaxCandidates != 30 || cfg.JPEGQuality != 90 {
		t.Errorf("unexpected capture defaults: %+v", cfg)
	}
	if cfg.FlashWarmup != 200*time.Millisecond || cfg.LightOff != 600*time.Millisecond || cfg.CaptureEnd != 700*time.Millisecond {
		t.Errorf("unexpected burst timing: %v %v %v", cfg.FlashWarmup, cfg.LightOff, cfg.CaptureEnd)
	}
	if cfg.ThresholdLow != 100 || cfg.ThresholdHigh != 220 {
		t.Errorf("unexpected thresholds: %v/%v", cfg.ThresholdLow, cfg.ThresholdHigh)
	}
	if !strings.HasPrefix(cfg.DBPath, dir) || !strings.HasPrefix(cfg.CacheRoot, dir) {
		t.Errorf("paths not under data dir: %q %q", cfg.DBPath, cfg.CacheRoot)
	}
	if cfg.Corners != DefaultCorners(cfg.PreviewWidth, cfg.PreviewHeight) {
		t.Errorf("Corners = %v", cfg.Corners)
	}
	if cfg.HistoryRetention != 30*24*time.Hour {
		t.Errorf("HistoryRetention = %v", cfg.HistoryRetention)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CARDCAP_DATA_DIR", t.TempDir())
	t.Setenv("CARDCAP_INSPECTOR_CMD", "python3,bridge.py")
	t.Setenv("CARDCAP_FRAME_CORNERS", "10,20,110,20,110,80,10,80")
	t.Setenv("CARDCAP_OCR_ENDPOINT", "https://ocr.example.com/v1/idcard")
	t.Setenv("CARDCAP_MAX_CANDIDATES", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Corners[2] != image.Pt(110, 80) {
		t.Errorf("Corners = %v", cfg.Corners)
	}
	if len(cfg.InspectorCmd) != 2 || cfg.MaxCandidates != 12 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "missing inspector", env: map[string]string{}, want: "InspectorCmd"},
		{name: "light off after capture end", env: map[string]string{"CARDCAP_LIGHT_OFF": "800ms"}, want: "LightOff"},
		{name: "inverted thresholds", env: map[string]string{"CARDCAP_THRESHOLD_LOW": "230"}, want: "ThresholdLow"},
		{name: "bad ocr url", env: map[string]string{"CARDCAP_OCR_ENDPOINT": "not a url"}, want: "OCREndpoint"},
		{name: "bad corners", env: map[string]string{"CARDCAP_FRAME_CORNERS": "1,2,3"}, want: "FRAME_CORNERS"},
		{name: "jpeg quality", env: map[string]string{"CARDCAP_JPEG_QUALITY": "101"}, want: "JPEGQuality"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CARDCAP_DATA_DIR", t.TempDir())
			if tt.name != "missing inspector" {
				t.Setenv("CARDCAP_INSPECTOR_CMD", "bridge")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestDefaultCorners(t *testing.T) {
	c := DefaultCorners(1000, 1000)
	w := c[1].X - c[0].X
	h := c[3].Y - c[0].Y
	if w != 800 {
		t.Errorf("width = %d, want 800", w)
	}
	if h != 800*540/856 {
		t.Errorf("height = %d, want %d", h, 800*540/856)
	}
	if c[0].X != 100 {
		t.Errorf("left = %d, want 100", c[0].X)
	}
}
