package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/cardcapture/internal/store"
)

// DefaultListLimit caps attempt listings when no limit is given.
const DefaultListLimit = 50

// AttemptsHandler handles HTTP requests for recorded capture attempts.
type AttemptsHandler struct {
	store *store.Store
}

// NewAttemptsHandler creates a new AttemptsHandler with the given store.
func NewAttemptsHandler(s *store.Store) *AttemptsHandler {
	return &AttemptsHandler{store: s}
}

// ServeHTTP implements the http.Handler interface.
// Expected paths: /api/attempts, /api/attempts/{id} and /api/attempts/{id}/ocr
func (h *AttemptsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/attempts")
	path = strings.Trim(path, "/")
	if path == "" {
		h.list(w, r)
		return
	}

	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		h.get(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "ocr":
		h.events(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// Response types

type attemptResponse struct {
	ID             string `json:"id"`
	CardType       int    `json:"card_type"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	Candidates     int    `json:"candidates"`
	AllPassed      bool   `json:"all_passed"`
	HologramPassed bool   `json:"hologram_passed"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at,omitempty"`
}

type listAttemptsResponse struct {
	Attempts []attemptResponse `json:"attempts"`
}

type listEventsResponse struct {
	Events []ocrEventResponse `json:"events"`
}

func toAttemptResponse(a *store.Attempt) attemptResponse {
	resp := attemptResponse{
		ID:             a.ID,
		CardType:       a.CardType,
		Status:         string(a.Status),
		Message:        a.Message,
		Candidates:     a.Candidates,
		AllPassed:      a.AllPassed,
		HologramPassed: a.HologramPassed,
		StartedAt:      formatTime(a.StartedAt),
	}
	if a.FinishedAt != nil {
		resp.FinishedAt = formatTime(*a.FinishedAt)
	}
	return resp
}

// list handles GET /api/attempts and returns the most recent attempts.
func (h *AttemptsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", DefaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	attempts, err := h.store.Attempts().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attempts")
		return
	}

	response := listAttemptsResponse{
		Attempts: make([]attemptResponse, 0, len(attempts)),
	}
	for _, a := range attempts {
		response.Attempts = append(response.Attempts, toAttemptResponse(a))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/attempts/{id} and returns a single attempt.
func (h *AttemptsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	attempt, err := h.store.Attempts().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Attempt not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get attempt")
		return
	}

	writeJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

// events handles GET /api/attempts/{id}/ocr and returns the OCR events of an
// attempt.
func (h *AttemptsHandler) events(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Attempts().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Attempt not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get attempt")
		return
	}

	events, err := h.store.OCREvents().ListByAttempt(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list OCR events")
		return
	}

	response := listEventsResponse{
		Events: make([]ocrEventResponse, 0, len(events)),
	}
	for _, ev := range events {
		response.Events = append(response.Events, toEventResponse(ev))
	}

	writeJSON(w, http.StatusOK, response)
}
