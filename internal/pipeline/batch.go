package pipeline

import (
	"sync"

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

// uncommitted tracks dates whose rows sit in the store's open transaction.
// When a commit fails those rows are gone, so dates already settled are
// moved to failed and dates still in flight are marked lost.
type uncommitted struct {
	mu      sync.Mutex
	results *tally
	dates   map[string]comics.ItemOutcome
	lost    map[string]bool
}

func newUncommitted(results *tally) *uncommitted {
	return &uncommitted{
		results: results,
		dates:   make(map[string]comics.ItemOutcome),
		lost:    make(map[string]bool),
	}
}

// upserted records a row written into the open transaction. Call it after
// Upsert returns.
func (u *uncommitted) upserted(date string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.lost, date)
	u.dates[date] = ""
}

// settle returns the outcome to report for date. A date whose row was lost
// reports failed.
func (u *uncommitted) settle(date string, outcome comics.ItemOutcome) comics.ItemOutcome {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.lost[date] {
		delete(u.lost, date)
		return comics.ItemFailed
	}
	if _, ok := u.dates[date]; ok {
		u.dates[date] = outcome
	}
	return outcome
}

// snapshot lists the tracked dates. Take it before calling Commit so every
// listed row is in the transaction being committed or an earlier one.
func (u *uncommitted) snapshot() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, 0, len(u.dates))
	for date := range u.dates {
		out = append(out, date)
	}
	return out
}

func (u *uncommitted) committed(dates []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, date := range dates {
		delete(u.dates, date)
	}
}

// dropped reclassifies dates whose rows were discarded by a failed commit and
// returns how many settled outcomes it moved.
func (u *uncommitted) dropped(dates []string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	moved := 0
	for _, date := range dates {
		outcome, ok := u.dates[date]
		if !ok {
			continue
		}
		delete(u.dates, date)
		switch outcome {
		case "":
			u.lost[date] = true
		case comics.ItemFailed:
		default:
			u.results.move(outcome, comics.ItemFailed, 1)
			moved++
		}
	}
	return moved
}
