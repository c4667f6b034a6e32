package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// AttemptStatus is the lifecycle state of a capture attempt.
type AttemptStatus string

const (
	// AttemptRunning is an attempt that has not reached a terminal state.
	AttemptRunning AttemptStatus = "running"
	// AttemptSuccess is an attempt that produced a card result.
	AttemptSuccess AttemptStatus = "success"
	// AttemptAborted is an attempt ended by an abort or reset.
	AttemptAborted AttemptStatus = "aborted"
)

// Attempt is one capture session as recorded in the database.
type Attempt struct {
	ID             string
	CardType       int
	Status         AttemptStatus
	Message        string
	Candidates     int
	AllPassed      bool
	HologramPassed bool
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// AttemptRepository provides CRUD operations for attempts.
type AttemptRepository struct {
	db *sql.DB
}

// Attempts returns the attempt repository for this store.
func (s *Store) Attempts() *AttemptRepository {
	return &AttemptRepository{db: s.db}
}

// Create inserts a running attempt.
func (r *AttemptRepository) Create(a *Attempt) error {
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now()
	}
	if a.Status == "" {
		a.Status = AttemptRunning
	}

	_, err := r.db.Exec(
		`INSERT INTO attempts (id, card_type, status, message, candidates, all_passed, hologram_passed, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CardType, string(a.Status), a.Message, a.Candidates, a.AllPassed, a.HologramPassed, a.StartedAt,
	)
	return err
}

// Finish records the terminal state of an attempt.
func (r *AttemptRepository) Finish(a *Attempt) error {
	now := time.Now()
	a.FinishedAt = &now

	result, err := r.db.Exec(
		`UPDATE attempts
		 SET card_type = ?, status = ?, message = ?, candidates = ?, all_passed = ?, hologram_passed = ?, finished_at = ?
		 WHERE id = ?`,
		a.CardType, string(a.Status), a.Message, a.Candidates, a.AllPassed, a.HologramPassed, now, a.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

const attemptColumns = `id, card_type, status, message, candidates, all_passed, hologram_passed, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	a := &Attempt{}
	var status string
	var finished sql.NullTime
	err := row.Scan(&a.ID, &a.CardType, &status, &a.Message, &a.Candidates,
		&a.AllPassed, &a.HologramPassed, &a.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	a.Status = AttemptStatus(status)
	if finished.Valid {
		t := finished.Time
		a.FinishedAt = &t
	}
	return a, nil
}

// GetByID retrieves an attempt by its ID.
func (r *AttemptRepository) GetByID(id string) (*Attempt, error) {
	a, err := scanAttempt(r.db.QueryRow(
		`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// List retrieves the most recent attempts, newest first. A non-positive
// limit returns all attempts.
func (r *AttemptRepository) List(limit int) ([]*Attempt, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT `+attemptColumns+` FROM attempts ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return attempts, nil
}

// AbortRunning marks every attempt still running as aborted with message. A
// process that exits mid-capture leaves such rows behind.
func (r *AttemptRepository) AbortRunning(message string) (int64, error) {
	result, err := r.db.Exec(
		`UPDATE attempts SET status = ?, message = ?, finished_at = ? WHERE status = ?`,
		string(AttemptAborted), message, time.Now(), string(AttemptRunning),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Prune deletes finished attempts started before cutoff together with their
// OCR events.
func (r *AttemptRepository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM attempts WHERE status != ? AND started_at < ?`,
		string(AttemptRunning), cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
