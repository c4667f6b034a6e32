package app

import (
	"context"
	"time"

	"github.com/ayusman/cardcapture/internal/capture"
)

// runPipeline reads frames at the configured rate and offers each one to the
// machine. Frames the machine does not admit are dropped; the camera is never
// held back by processing.
func (a *App) runPipeline(ctx context.Context) {
	defer a.wg.Done()

	fps := a.config.FPS
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := a.camera.ReadFrame()
			if err != nil {
				if a.errors.Add(1)%100 == 1 {
					a.log.Warn().Err(err).Msg("read frame failed")
				}
				continue
			}
			a.read.Add(1)
			if !a.machine.OnFrame(frame) {
				a.dropped.Add(1)
			}
		}
	}
}
