// Package app wires the camera, the capture state machine and the event hub
// into the running cardcapture application.
package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ayusman/cardcapture/internal/capture"
	"github.com/ayusman/cardcapture/internal/inspect"
	"github.com/ayusman/cardcapture/internal/logger"
	"github.com/ayusman/cardcapture/internal/session"
)

// Config holds configuration options for the application.
type Config struct {
	Camera capture.Camera
	FPS    int
	// Geometry is used by Begin when the caller does not supply one.
	Geometry inspect.Geometry
	// AutoBegin starts a capture attempt as soon as the pipeline runs.
	AutoBegin bool
	Machine   session.Config
	Deps      session.Deps
}

// Stats counts frames seen by the pipeline.
type Stats struct {
	Read    uint64 `json:"read"`
	Dropped uint64 `json:"dropped"`
	Errors  uint64 `json:"errors"`
}

// App is the main application that feeds camera frames to the capture
// machine and relays its notifications.
type App struct {
	config  Config
	camera  capture.Camera
	machine *session.Machine
	hub     *Hub
	log     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	read    atomic.Uint64
	dropped atomic.Uint64
	errors  atomic.Uint64
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	a := &App{
		config: config,
		camera: config.Camera,
		hub:    NewHub(DefaultSubscriberBuffer),
		log:    logger.Named("app"),
	}

	deps := config.Deps
	hint := deps.Hint
	deps.Hint = func(msg string) {
		if hint != nil {
			hint(msg)
		}
		a.hub.Publish(Event{Type: EventHint, Message: msg})
	}
	onTerminal := deps.OnTerminal
	deps.OnTerminal = func(t session.Terminal) {
		a.hub.Publish(terminalEvent(t))
		if onTerminal != nil {
			onTerminal(t)
		}
	}
	a.machine = session.New(config.Machine, deps)
	return a
}

func terminalEvent(t session.Terminal) Event {
	res := t.Result
	e := Event{
		Type:      EventTerminal,
		Message:   "capture complete",
		SessionID: t.SessionID,
		Result:    &res,
		OCR:       t.OCR,
	}
	if t.OCRErr != nil {
		e.Error = t.OCRErr.Error()
	}
	return e
}

// Start opens the camera and begins feeding frames to the machine.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	if a.config.FPS > 0 {
		a.camera.SetFPS(a.config.FPS)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.machine.Run(ctx)
	}()
	go a.runPipeline(ctx)

	if a.config.AutoBegin {
		a.machine.Start(a.config.Geometry)
	}

	a.log.Info().Int("fps", a.camera.FPS()).Msg("capture pipeline started")
	return nil
}

// Stop halts the pipeline, discards the active attempt and releases the
// camera.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel == nil {
		return
	}
	a.cancel()
	a.cancel = nil
	a.wg.Wait()

	a.machine.Stop()
	if err := a.camera.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close camera failed")
	}
	a.log.Info().Msg("capture pipeline stopped")
}

// Running reports whether the pipeline is feeding frames.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Begin starts a capture attempt on geo, or on the configured geometry when
// geo has no preview size.
func (a *App) Begin(geo inspect.Geometry) {
	if geo.Preview.X <= 0 || geo.Preview.Y <= 0 {
		geo = a.config.Geometry
	}
	a.machine.Start(geo)
}

// Reset abandons the current attempt and starts a fresh one.
func (a *App) Reset() {
	a.machine.Reset()
}

// End abandons the current attempt and leaves the machine idle.
func (a *App) End() {
	a.machine.Stop()
}

// Snapshot returns the state of the current attempt.
func (a *App) Snapshot() session.Snapshot {
	return a.machine.Snapshot()
}

// Machine returns the capture state machine.
func (a *App) Machine() *session.Machine {
	return a.machine
}

// Hub returns the event hub.
func (a *App) Hub() *Hub {
	return a.hub
}

// Stats returns the frame counters.
func (a *App) Stats() Stats {
	return Stats{
		Read:    a.read.Load(),
		Dropped: a.dropped.Load(),
		Errors:  a.errors.Load(),
	}
}
