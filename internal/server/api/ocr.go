package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/cardcapture/internal/store"
)

// OCRHandler serves the most recent OCR completion event.
type OCRHandler struct {
	store *store.Store
}

// NewOCRHandler creates a new OCRHandler with the given store.
func NewOCRHandler(s *store.Store) *OCRHandler {
	return &OCRHandler{store: s}
}

type ocrEventResponse struct {
	ID        int64           `json:"id"`
	AttemptID string          `json:"attempt_id"`
	Completed bool            `json:"completed"`
	CardType  int             `json:"card_type"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func toEventResponse(ev *store.OCREvent) ocrEventResponse {
	return ocrEventResponse{
		ID:        ev.ID,
		AttemptID: ev.AttemptID,
		Completed: ev.Completed,
		CardType:  ev.CardType,
		Data:      ev.Response,
		CreatedAt: formatTime(ev.CreatedAt),
	}
}

// ServeHTTP handles GET /api/ocr/latest.
func (h *OCRHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ev, err := h.store.OCREvents().Latest()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No OCR result yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get OCR result")
		return
	}

	writeJSON(w, http.StatusOK, toEventResponse(ev))
}
