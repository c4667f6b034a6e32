// Package config loads the cardcapture configuration from CARDCAP_ prefixed
// environment variables and validates it.
package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// EnvPrefix prefixes every configuration variable.
const EnvPrefix = "CARDCAP_"

// Config is the validated application configuration.
type Config struct {
	CameraID     int `validate:"gte=0"`
	CameraWidth  int `validate:"gte=2"`
	CameraHeight int `validate:"gte=2"`
	FPS          int `validate:"gte=1,lte=120"`

	WarmupFrames  int           `validate:"gte=0"`
	FlashWarmup   time.Duration `validate:"gt=0"`
	LightOff      time.Duration `validate:"gt=0,ltefield=CaptureEnd"`
	CaptureEnd    time.Duration `validate:"gt=0"`
	MaxCandidates int           `validate:"gte=2"`
	ThresholdLow  float64       `validate:"gte=0,ltfield=ThresholdHigh"`
	ThresholdHigh float64       `validate:"lte=255"`
	JPEGQuality   int           `validate:"gte=1,lte=100"`
	SaveCorrected bool

	DataDir   string `validate:"required"`
	CacheRoot string `validate:"required"`
	DBPath    string `validate:"required"`
	HTTPAddr  string `validate:"required,hostname_port"`

	// HistoryRetention bounds how long finished attempts are kept; zero keeps
	// them forever.
	HistoryRetention time.Duration `validate:"gte=0"`

	OCREndpoint string        `validate:"omitempty,url"`
	OCRTimeout  time.Duration `validate:"gt=0"`

	InspectorCmd  []string      `validate:"required,min=1,dive,required"`
	InspectorIdle time.Duration `validate:"gt=0"`

	PreviewWidth  int `validate:"gt=0"`
	PreviewHeight int `validate:"gt=0"`
	Corners       [4]image.Point
}

// Defaults returns the configuration used when no variable is set, rooted at
// dataDir.
func Defaults(dataDir string) Config {
	return Config{
		CameraID:      0,
		CameraWidth:   1280,
		CameraHeight:  720,
		FPS:           15,
		WarmupFrames:  10,
		FlashWarmup:   200 * time.Millisecond,
		LightOff:      600 * time.Millisecond,
		CaptureEnd:    700 * time.Millisecond,
		MaxCandidates: 30,
		ThresholdLow:  100,
		ThresholdHigh: 220,
		JPEGQuality:   90,
		SaveCorrected: true,
		DataDir:       dataDir,
		CacheRoot:     filepath.Join(dataDir, "cache"),
		DBPath:        filepath.Join(dataDir, "cardcapture.db"),
		HTTPAddr:      ":8080",

		HistoryRetention: 30 * 24 * time.Hour,

		OCRTimeout:    30 * time.Second,
		InspectorIdle: 30 * time.Second,
		PreviewWidth:  1280,
		PreviewHeight: 720,
		Corners:       DefaultCorners(1280, 720),
	}
}

// DefaultCorners frames a centered ID-1 card (85.6 x 54 mm) spanning 80% of
// the preview width, clockwise from the top-left corner.
func DefaultCorners(width, height int) [4]image.Point {
	w := width * 8 / 10
	h := w * 540 / 856
	if h > height*9/10 {
		h = height * 9 / 10
		w = h * 856 / 540
	}
	x0 := (width - w) / 2
	y0 := (height - h) / 2
	return [4]image.Point{
		{X: x0, Y: y0},
		{X: x0 + w, Y: y0},
		{X: x0 + w, Y: y0 + h},
		{X: x0, Y: y0 + h},
	}
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	dataDir := defaultDataDir()
	c := New().Prefix(EnvPrefix)
	dataDir = c.MayString("DATA_DIR", dataDir)
	d := Defaults(dataDir)

	cfg := Config{
		CameraID:     c.MayInt("CAMERA_ID", d.CameraID),
		CameraWidth:  c.MayInt("CAMERA_WIDTH", d.CameraWidth),
		CameraHeight: c.MayInt("CAMERA_HEIGHT", d.CameraHeight),
		FPS:          c.MayInt("FPS", d.FPS),

		WarmupFrames:  c.MayInt("WARMUP_FRAMES", d.WarmupFrames),
		FlashWarmup:   c.MayDuration("FLASH_WARMUP", d.FlashWarmup),
		LightOff:      c.MayDuration("LIGHT_OFF", d.LightOff),
		CaptureEnd:    c.MayDuration("CAPTURE_END", d.CaptureEnd),
		MaxCandidates: c.MayInt("MAX_CANDIDATES", d.MaxCandidates),
		ThresholdLow:  c.MayFloat64("THRESHOLD_LOW", d.ThresholdLow),
		ThresholdHigh: c.MayFloat64("THRESHOLD_HIGH", d.ThresholdHigh),
		JPEGQuality:   c.MayInt("JPEG_QUALITY", d.JPEGQuality),
		SaveCorrected: c.MayBool("SAVE_CORRECTED", d.SaveCorrected),

		DataDir:   dataDir,
		CacheRoot: c.MayString("CACHE_ROOT", d.CacheRoot),
		DBPath:    c.MayString("DB_PATH", d.DBPath),
		HTTPAddr:  c.MayString("HTTP_ADDR", d.HTTPAddr),

		HistoryRetention: c.MayDuration("HISTORY_RETENTION", d.HistoryRetention),

		OCREndpoint: c.MayString("OCR_ENDPOINT", ""),
		OCRTimeout:  c.MayDuration("OCR_TIMEOUT", d.OCRTimeout),

		InspectorCmd:  c.MayCSV("INSPECTOR_CMD", nil),
		InspectorIdle: c.MayDuration("INSPECTOR_IDLE", d.InspectorIdle),

		PreviewWidth:  c.MayInt("PREVIEW_WIDTH", d.PreviewWidth),
		PreviewHeight: c.MayInt("PREVIEW_HEIGHT", d.PreviewHeight),
	}

	cfg.Corners = DefaultCorners(cfg.PreviewWidth, cfg.PreviewHeight)
	if xs := c.MayInts("FRAME_CORNERS", nil); xs != nil {
		if len(xs) != 8 {
			return Config{}, fmt.Errorf("%sFRAME_CORNERS: want 8 values, got %d", EnvPrefix, len(xs))
		}
		for i := range cfg.Corners {
			cfg.Corners[i] = image.Pt(xs[2*i], xs[2*i+1])
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and reports every invalid field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cardcapture"
	}
	return filepath.Join(home, ".cardcapture")
}
