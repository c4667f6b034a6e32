package api

import (
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ayusman/cardcapture/internal/inspect"
	"github.com/ayusman/cardcapture/internal/session"
)

// Controller drives the capture machine.
type Controller interface {
	Begin(geo inspect.Geometry)
	Reset()
	End()
	Snapshot() session.Snapshot
}

// SessionHandler handles HTTP requests for the capture session.
type SessionHandler struct {
	ctrl     Controller
	validate *validator.Validate
}

// NewSessionHandler creates a new SessionHandler driving ctrl.
func NewSessionHandler(ctrl Controller) *SessionHandler {
	return &SessionHandler{ctrl: ctrl, validate: validator.New()}
}

// ServeHTTP implements the http.Handler interface.
// Expected paths: /api/session and /api/session/{start,reset,stop}
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/api/session")
	action = strings.Trim(action, "/")

	if action == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch action {
	case "start":
		h.start(w, r)
	case "reset":
		h.ctrl.Reset()
		writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
	case "stop":
		h.ctrl.End()
		writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// Request types

type point struct {
	X int `json:"x" validate:"gte=0"`
	Y int `json:"y" validate:"gte=0"`
}

type size struct {
	Width  int `json:"width" validate:"gt=0"`
	Height int `json:"height" validate:"gt=0"`
}

type startRequest struct {
	Preview *size   `json:"preview"`
	Corners []point `json:"corners" validate:"omitempty,len=4,dive"`
}

// geometry converts the request into a frame geometry. An empty request
// yields the zero geometry, which selects the configured default.
func (req startRequest) geometry() inspect.Geometry {
	var geo inspect.Geometry
	if req.Preview != nil {
		geo.Preview = image.Pt(req.Preview.Width, req.Preview.Height)
	}
	for i, p := range req.Corners {
		geo.Corners[i] = image.Pt(p.X, p.Y)
	}
	return geo
}

// start handles POST /api/session/start and begins a capture attempt.
func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid geometry: "+err.Error())
		return
	}
	if len(req.Corners) > 0 && req.Preview == nil {
		writeError(w, http.StatusBadRequest, "Invalid geometry: corners require a preview size")
		return
	}

	h.ctrl.Begin(req.geometry())
	writeJSON(w, http.StatusAccepted, h.ctrl.Snapshot())
}
