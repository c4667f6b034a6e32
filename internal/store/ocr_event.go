package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// OCREvent records the completion of an OCR request. Response is nil when
// the request failed.
type OCREvent struct {
	ID        int64
	AttemptID string
	Completed bool
	CardType  int
	Response  json.RawMessage
	CreatedAt time.Time
}

// OCREventRepository stores OCR completion events.
type OCREventRepository struct {
	db *sql.DB
}

// OCREvents returns the OCR event repository for this store.
func (s *Store) OCREvents() *OCREventRepository {
	return &OCREventRepository{db: s.db}
}

// Publish inserts an event.
func (r *OCREventRepository) Publish(ev *OCREvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	var response any
	if len(ev.Response) > 0 {
		response = string(ev.Response)
	}

	result, err := r.db.Exec(
		`INSERT INTO ocr_events (attempt_id, completed, card_type, response, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.AttemptID, ev.Completed, ev.CardType, response, ev.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = id
	return nil
}

func scanEvent(row rowScanner) (*OCREvent, error) {
	ev := &OCREvent{}
	var response sql.NullString
	if err := row.Scan(&ev.ID, &ev.AttemptID, &ev.Completed, &ev.CardType, &response, &ev.CreatedAt); err != nil {
		return nil, err
	}
	if response.Valid {
		ev.Response = json.RawMessage(response.String)
	}
	return ev, nil
}

// Latest returns the most recently published event.
func (r *OCREventRepository) Latest() (*OCREvent, error) {
	ev, err := scanEvent(r.db.QueryRow(
		`SELECT id, attempt_id, completed, card_type, response, created_at
		 FROM ocr_events ORDER BY id DESC LIMIT 1`,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ev, nil
}

// ListByAttempt returns the events of an attempt in publication order.
func (r *OCREventRepository) ListByAttempt(attemptID string) ([]*OCREvent, error) {
	rows, err := r.db.Query(
		`SELECT id, attempt_id, completed, card_type, response, created_at
		 FROM ocr_events WHERE attempt_id = ? ORDER BY id`,
		attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*OCREvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
