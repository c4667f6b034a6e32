package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ayusman/cardcapture/internal/app"
	"github.com/ayusman/cardcapture/internal/capture"
	"github.com/ayusman/cardcapture/internal/config"
	"github.com/ayusman/cardcapture/internal/inspect"
	"github.com/ayusman/cardcapture/internal/logger"
	"github.com/ayusman/cardcapture/internal/ocr"
	"github.com/ayusman/cardcapture/internal/scratch"
	"github.com/ayusman/cardcapture/internal/server"
	"github.com/ayusman/cardcapture/internal/session"
	"github.com/ayusman/cardcapture/internal/store"
)

func main() {
	logger.Init(logger.FromEnv())
	log := logger.Named("main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("failed to create data directory")
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to initialize store")
	}
	defer st.Close()

	if n, err := st.Attempts().AbortRunning("interrupted"); err != nil {
		log.Warn().Err(err).Msg("failed to close interrupted attempts")
	} else if n > 0 {
		log.Info().Int64("attempts", n).Msg("closed interrupted attempts")
	}
	if cfg.HistoryRetention > 0 {
		if n, err := st.Attempts().Prune(time.Now().Add(-cfg.HistoryRetention)); err != nil {
			log.Warn().Err(err).Msg("failed to prune history")
		} else if n > 0 {
			log.Info().Int64("attempts", n).Msg("pruned history")
		}
	}

	files, err := scratch.NewFS(cfg.CacheRoot, cfg.JPEGQuality)
	if err != nil {
		log.Fatal().Err(err).Str("root", cfg.CacheRoot).Msg("failed to initialize scratch storage")
	}

	svc, err := inspect.NewService(cfg.InspectorCmd)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure inspector service")
	}
	svc.SetIdleTimeout(cfg.InspectorIdle)
	defer svc.Close()

	var transport ocr.Transport
	if cfg.OCREndpoint != "" {
		transport = ocr.NewClient(cfg.OCREndpoint, cfg.OCRTimeout)
	} else {
		log.Warn().Msg("no OCR endpoint configured, results carry no OCR data")
	}

	torch := logger.Named("torch")
	a := app.New(app.Config{
		Camera:   capture.NewCamera(cfg.CameraID, cfg.CameraWidth, cfg.CameraHeight),
		FPS:      cfg.FPS,
		Geometry: app.Geometry(cfg),
		Machine:  app.MachineConfig(cfg),
		Deps: session.Deps{
			Inspector:  svc,
			Edges:      svc,
			Scorer:     inspect.MeanLuma{},
			Identifier: svc,
			OCR:        transport,
			Storage:    files,
			Torch: inspect.TorchFunc(func(on bool) {
				torch.Info().Bool("on", on).Msg("illumination")
			}),
			Recorder:  st.Attempts(),
			Publisher: st.OCREvents(),
			OnTerminal: func(t session.Terminal) {
				ev := log.Info().
					Str("session", t.SessionID).
					Bool("all_passed", t.Result.AllPassed).
					Bool("hologram_passed", t.Result.HologramPassed)
				if t.OCRErr != nil {
					ev = ev.AnErr("ocr_error", t.OCRErr)
				}
				ev.Msg("capture result")
			},
		},
	})

	if err := a.Start(); err != nil {
		log.Fatal().Err(err).Int("camera", cfg.CameraID).Msg("failed to start capture pipeline")
	}
	defer a.Stop()

	webDir := findWebDir(cfg.DataDir)
	if webDir != "" {
		log.Info().Str("dir", webDir).Msg("serving static files")
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.New(server.Config{
			StaticDir: webDir,
			Store:     st,
			App:       a,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}
