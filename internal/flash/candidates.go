package flash

import (
	"sort"
	"sync"
)

// DefaultMaxCandidates bounds the live candidates of one burst.
const DefaultMaxCandidates = 30

// Candidate is a persisted burst image. Score holds the capture-time proxy
// score until selection replaces it with the measured light value.
type Candidate struct {
	Handle    string
	Score     float64
	EdgeClass int
}

// Candidates is a capacity-bounded ordered collection of candidates. The
// capture worker mutates it while observers poll its size.
type Candidates struct {
	mu    sync.RWMutex
	max   int
	items []*Candidate
}

// NewCandidates creates a collection holding at most max candidates.
// A non-positive max uses DefaultMaxCandidates.
func NewCandidates(max int) *Candidates {
	if max <= 0 {
		max = DefaultMaxCandidates
	}
	return &Candidates{max: max}
}

// Add appends c unless the collection is full.
func (c *Candidates) Add(cand *Candidate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= c.max {
		return false
	}
	c.items = append(c.items, cand)
	return true
}

// Len returns the number of candidates.
func (c *Candidates) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Max returns the capacity.
func (c *Candidates) Max() int {
	return c.max
}

// Full reports whether the capacity is reached.
func (c *Candidates) Full() bool {
	return c.Len() >= c.max
}

// Items returns the candidate records in their current order. The records are
// shared, so updating a score through them updates the collection.
func (c *Candidates) Items() []*Candidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Candidate, len(c.items))
	copy(out, c.items)
	return out
}

// Snapshot returns value copies of the candidates for observers.
func (c *Candidates) Snapshot() []Candidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Candidate, len(c.items))
	for i, cand := range c.items {
		out[i] = *cand
	}
	return out
}

// SortByScore orders candidates ascending by score. Equal scores keep their
// capture order.
func (c *Candidates) SortByScore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.SliceStable(c.items, func(i, j int) bool {
		return c.items[i].Score < c.items[j].Score
	})
}

// Handles returns the storage handles of all candidates.
func (c *Candidates) Handles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.items))
	for i, cand := range c.items {
		out[i] = cand.Handle
	}
	return out
}
