package pipeline

import (
	"sync"
	"time"

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

// Summary reports the result of one run.
type Summary struct {
	RunID   string
	Total   int
	Counts  map[comics.ItemOutcome]int
	Elapsed time.Duration
}

// Count returns the number of dates that ended with outcome.
func (s Summary) Count(outcome comics.ItemOutcome) int {
	return s.Counts[outcome]
}

// Settled is the number of dates that reached any terminal outcome.
func (s Summary) Settled() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

type tally struct {
	mu     sync.Mutex
	counts map[comics.ItemOutcome]int
}

func newTally() *tally {
	return &tally{counts: make(map[comics.ItemOutcome]int, len(comics.ItemOutcomes))}
}

func (t *tally) add(outcome comics.ItemOutcome, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[outcome] += n
}

func (t *tally) move(from, to comics.ItemOutcome, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[from] -= n
	t.counts[to] += n
}

func (t *tally) snapshot() map[comics.ItemOutcome]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[comics.ItemOutcome]int, len(comics.ItemOutcomes))
	for _, o := range comics.ItemOutcomes {
		out[o] = t.counts[o]
	}
	return out
}
