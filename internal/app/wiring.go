package app

import (
	"image"

	"github.com/ayusman/cardcapture/internal/config"
	"github.com/ayusman/cardcapture/internal/flash"
	"github.com/ayusman/cardcapture/internal/inspect"
	"github.com/ayusman/cardcapture/internal/session"
)

// MachineConfig maps the application configuration onto the machine.
func MachineConfig(c config.Config) session.Config {
	return session.Config{
		WarmupFrames: c.WarmupFrames,
		Flash: flash.Config{
			Warmup:        c.FlashWarmup,
			LightOff:      c.LightOff,
			CaptureEnd:    c.CaptureEnd,
			MaxCandidates: c.MaxCandidates,
			Thresholds:    inspect.Thresholds{Low: c.ThresholdLow, High: c.ThresholdHigh},
		},
		JPEGQuality:   c.JPEGQuality,
		SaveCorrected: c.SaveCorrected,
	}
}

// Geometry returns the configured document frame.
func Geometry(c config.Config) inspect.Geometry {
	return inspect.Geometry{
		Preview: image.Pt(c.PreviewWidth, c.PreviewHeight),
		Corners: c.Corners,
	}
}
