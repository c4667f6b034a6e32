package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAttemptRepository_CreateAndFinish(t *testing.T) {
	s := newTestStore(t)
	repo := s.Attempts()

	a := &Attempt{ID: "a1", CardType: -1}
	if err := repo.Create(a); err != nil {
		t.Fatalf("failed to create attempt: %v", err)
	}

	got, err := repo.GetByID("a1")
	if err != nil {
		t.Fatalf("failed to get attempt: %v", err)
	}
	if got.Status != AttemptRunning {
		t.Errorf("expected status running, got %q", got.Status)
	}
	if got.FinishedAt != nil {
		t.Error("running attempt should have no finish time")
	}

	a.Status = AttemptSuccess
	a.CardType = 18
	a.Message = "capture complete"
	a.Candidates = 12
	a.AllPassed = true
	a.HologramPassed = true
	if err := repo.Finish(a); err != nil {
		t.Fatalf("failed to finish attempt: %v", err)
	}

	got, err = repo.GetByID("a1")
	if err != nil {
		t.Fatalf("failed to get attempt: %v", err)
	}
	if got.Status != AttemptSuccess || got.CardType != 18 || got.Candidates != 12 {
		t.Errorf("unexpected attempt: %+v", got)
	}
	if !got.AllPassed || !got.HologramPassed {
		t.Errorf("expected pass flags, got %+v", got)
	}
	if got.FinishedAt == nil {
		t.Error("finished attempt should have a finish time")
	}
}

func TestAttemptRepository_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Attempts().GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Attempts().Finish(&Attempt{ID: "missing", Status: AttemptAborted}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAttemptRepository_List(t *testing.T) {
	s := newTestStore(t)
	repo := s.Attempts()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a1", "a2", "a3"} {
		if err := repo.Create(&Attempt{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("failed to create attempt: %v", err)
		}
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("failed to list attempts: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a3" {
		t.Errorf("expected newest first, got %d attempts starting with %q", len(all), all[0].ID)
	}

	limited, err := repo.List(2)
	if err != nil {
		t.Fatalf("failed to list attempts: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(limited))
	}
}

func TestOCREventRepository(t *testing.T) {
	s := newTestStore(t)
	if err := s.Attempts().Create(&Attempt{ID: "a1"}); err != nil {
		t.Fatalf("failed to create attempt: %v", err)
	}
	events := s.OCREvents()

	if _, err := events.Latest(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound before publication, got %v", err)
	}

	failed := &OCREvent{AttemptID: "a1", Completed: true, CardType: -1}
	if err := events.Publish(failed); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}
	data := &OCREvent{AttemptID: "a1", Completed: true, CardType: 18, Response: json.RawMessage(`{"name":"x"}`)}
	if err := events.Publish(data); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}
	if data.ID <= failed.ID {
		t.Errorf("expected increasing ids, got %d then %d", failed.ID, data.ID)
	}

	latest, err := events.Latest()
	if err != nil {
		t.Fatalf("failed to get latest event: %v", err)
	}
	if latest.ID != data.ID || latest.CardType != 18 || string(latest.Response) != `{"name":"x"}` {
		t.Errorf("unexpected latest event: %+v", latest)
	}

	list, err := events.ListByAttempt("a1")
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(list) != 2 || list[0].Response != nil || !list[0].Completed {
		t.Errorf("unexpected events: %+v", list)
	}
}

func TestOCREventRepository_RequiresAttempt(t *testing.T) {
	s := newTestStore(t)
	if err := s.OCREvents().Publish(&OCREvent{AttemptID: "missing", Completed: true}); err == nil {
		t.Error("expected foreign key violation for unknown attempt")
	}
}

func TestAttemptRepository_AbortRunning(t *testing.T) {
	s := newTestStore(t)
	repo := s.Attempts()

	for _, id := range []string{"a1", "a2"} {
		if err := repo.Create(&Attempt{ID: id}); err != nil {
			t.Fatalf("failed to create attempt: %v", err)
		}
	}
	if err := repo.Finish(&Attempt{ID: "a2", Status: AttemptSuccess}); err != nil {
		t.Fatalf("failed to finish attempt: %v", err)
	}

	n, err := repo.AbortRunning("interrupted")
	if err != nil {
		t.Fatalf("AbortRunning() error = %v", err)
	}
	if n != 1 {
		t.Errorf("AbortRunning() = %d, want 1", n)
	}

	got, _ := repo.GetByID("a1")
	if got.Status != AttemptAborted || got.Message != "interrupted" || got.FinishedAt == nil {
		t.Errorf("unexpected attempt: %+v", got)
	}
	got, _ = repo.GetByID("a2")
	if got.Status != AttemptSuccess {
		t.Errorf("finished attempt changed: %+v", got)
	}
}

func TestAttemptRepository_Prune(t *testing.T) {
	s := newTestStore(t)
	repo := s.Attempts()

	old := time.Now().Add(-48 * time.Hour)
	attempts := []*Attempt{
		{ID: "old-done", StartedAt: old},
		{ID: "old-running", StartedAt: old},
		{ID: "new-done", StartedAt: time.Now()},
	}
	for _, a := range attempts {
		if err := repo.Create(a); err != nil {
			t.Fatalf("failed to create attempt: %v", err)
		}
	}
	for _, id := range []string{"old-done", "new-done"} {
		if err := repo.Finish(&Attempt{ID: id, Status: AttemptSuccess}); err != nil {
			t.Fatalf("failed to finish attempt: %v", err)
		}
	}
	if err := s.OCREvents().Publish(&OCREvent{AttemptID: "old-done", Completed: true}); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}

	n, err := repo.Prune(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if _, err := repo.GetByID("old-done"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old finished attempt survived: %v", err)
	}
	for _, id := range []string{"old-running", "new-done"} {
		if _, err := repo.GetByID(id); err != nil {
			t.Errorf("attempt %s pruned: %v", id, err)
		}
	}
	if _, err := s.OCREvents().Latest(); !errors.Is(err, ErrNotFound) {
		t.Errorf("events of pruned attempt survived: %v", err)
	}
}
