// Package queue holds the pure ordering rules for the service queue:
// priority scoring, the total order used for ranking, and wait estimation.
// It never touches the database; the store ranks rows with these helpers
// after locking them.
package queue

import (
	"sort"
	"time"

	"github.com/v10ss/escashop/internal/models"
)

// Priority score per flag tier. A customer holding several flags scores
// the highest tier only; tiers do not stack.
const (
	ScoreSeniorCitizen = 1000
	ScorePWD           = 900
	ScorePregnant      = 800
	ScoreRegular       = 0
)

// DefaultAvgServiceMinutes is the assumed per-customer service time used
// for wait estimation when no configured value is available.
const DefaultAvgServiceMinutes = 15

// Score returns the priority score for a set of flags, highest tier wins.
func Score(f models.PriorityFlags) int {
	switch {
	case f.SeniorCitizen:
		return ScoreSeniorCitizen
	case f.PWD:
		return ScorePWD
	case f.Pregnant:
		return ScorePregnant
	}
	return ScoreRegular
}

// Candidate is one waiting customer as seen by the ranking pass.
type Candidate struct {
	CustomerID     int64
	Flags          models.PriorityFlags
	ManualPosition *int
	CreatedAt      time.Time
}

// Less reports whether a should be served before b.
//
// Manually positioned customers always precede automatic ones and sort by
// their assigned position. Among automatic customers the higher score goes
// first, ties broken by arrival time then id so the order is total and
// stable across processes.
func Less(a, b Candidate) bool {
	am, bm := a.ManualPosition != nil, b.ManualPosition != nil
	if am != bm {
		return am
	}
	if am && bm && *a.ManualPosition != *b.ManualPosition {
		return *a.ManualPosition < *b.ManualPosition
	}
	as, bs := Score(a.Flags), Score(b.Flags)
	if as != bs {
		return as > bs
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.CustomerID < b.CustomerID
}

// Rank sorts candidates into serving order and returns them.
func Rank(cands []Candidate) []Candidate {
	sort.SliceStable(cands, func(i, j int) bool { return Less(cands[i], cands[j]) })
	return cands
}

// Position returns the 1-based position of id within the ranked waiting
// set, or 0 when the id is not waiting.
func Position(cands []Candidate, id int64) int {
	for i, c := range Rank(cands) {
		if c.CustomerID == id {
			return i + 1
		}
	}
	return 0
}

// EstimatedWait returns the estimated wait in minutes for a customer at
// the given 1-based position: everyone ahead of them at the average
// service time. Position 1 waits zero.
func EstimatedWait(position, avgServiceMinutes int) int {
	if position <= 0 {
		return 0
	}
	if avgServiceMinutes <= 0 {
		avgServiceMinutes = DefaultAvgServiceMinutes
	}
	return (position - 1) * avgServiceMinutes
}

// StatusBucket orders statuses for the full queue view: customers being
// served come first, then processing, waiting, and finally the terminal
// states. Within a bucket the waiting order above applies.
func StatusBucket(status string) int {
	switch status {
	case models.StatusServing:
		return 0
	case models.StatusProcessing:
		return 1
	case models.StatusWaiting:
		return 2
	case models.StatusCompleted:
		return 3
	case models.StatusCancelled:
		return 4
	}
	return 5
}
