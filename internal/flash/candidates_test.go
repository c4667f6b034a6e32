package flash

import (
	"sync"
	"testing"
)

func TestCandidates_CapEnforcedOnInsert(t *testing.T) {
	c := NewCandidates(0)
	if c.Max() != DefaultMaxCandidates {
		t.Fatalf("Max() = %d, want %d", c.Max(), DefaultMaxCandidates)
	}
	for i := 0; i < 40; i++ {
		ok := c.Add(&Candidate{Score: float64(i)})
		if ok != (i < DefaultMaxCandidates) {
			t.Errorf("Add(%d) = %v", i, ok)
		}
	}
	if c.Len() != DefaultMaxCandidates {
		t.Errorf("Len() = %d", c.Len())
	}
}

func TestCandidates_SortByScore(t *testing.T) {
	c := NewCandidates(10)
	for i, s := range []float64{5, 1, 9, 3} {
		c.Add(&Candidate{Handle: string(rune('a' + i)), Score: s})
	}
	c.SortByScore()

	got := c.Snapshot()
	want := []float64{1, 3, 5, 9}
	for i := range want {
		if got[i].Score != want[i] {
			t.Fatalf("sorted scores = %+v, want %v", got, want)
		}
	}
	if got[0].Handle != "b" || got[3].Handle != "c" {
		t.Errorf("handles did not move with scores: %+v", got)
	}
}

func TestCandidates_ScoreIsMutable(t *testing.T) {
	c := NewCandidates(4)
	c.Add(&Candidate{Handle: "a", Score: 0.9})
	for _, cand := range c.Items() {
		cand.Score = 42
	}
	if got := c.Snapshot()[0].Score; got != 42 {
		t.Errorf("score = %v, want 42", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after rescoring, want 1", c.Len())
	}
}

func TestCandidates_ConcurrentObservers(t *testing.T) {
	c := NewCandidates(30)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.Add(&Candidate{Score: float64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if n := c.Len(); n > 30 {
				t.Errorf("Len() = %d exceeds cap", n)
			}
			_ = c.Snapshot()
		}
	}()
	wg.Wait()
}
