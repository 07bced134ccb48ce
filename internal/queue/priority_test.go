package queue

import (
	"testing"
	"time"

	"github.com/v10ss/escashop/internal/models"
)

func TestScoreHighestTierWins(t *testing.T) {
	cases := []struct {
		name  string
		flags models.PriorityFlags
		want  int
	}{
		{"regular", models.PriorityFlags{}, 0},
		{"pregnant", models.PriorityFlags{Pregnant: true}, 800},
		{"pwd", models.PriorityFlags{PWD: true}, 900},
		{"senior", models.PriorityFlags{SeniorCitizen: true}, 1000},
		{"pwd and pregnant", models.PriorityFlags{PWD: true, Pregnant: true}, 900},
		{"all flags", models.PriorityFlags{SeniorCitizen: true, PWD: true, Pregnant: true}, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.flags); got != tc.want {
				t.Fatalf("Score(%+v) = %d, want %d", tc.flags, got, tc.want)
			}
		})
	}
}

func intp(v int) *int { return &v }

func TestRankOrdering(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	cands := []Candidate{
		{CustomerID: 1, CreatedAt: base},
		{CustomerID: 2, Flags: models.PriorityFlags{Pregnant: true}, CreatedAt: base.Add(5 * time.Minute)},
		{CustomerID: 3, Flags: models.PriorityFlags{SeniorCitizen: true}, CreatedAt: base.Add(10 * time.Minute)},
		{CustomerID: 4, ManualPosition: intp(2), CreatedAt: base.Add(15 * time.Minute)},
		{CustomerID: 5, ManualPosition: intp(1), Flags: models.PriorityFlags{PWD: true}, CreatedAt: base.Add(20 * time.Minute)},
		{CustomerID: 6, Flags: models.PriorityFlags{SeniorCitizen: true}, CreatedAt: base.Add(2 * time.Minute)},
	}

	ranked := Rank(cands)
	want := []int64{5, 4, 6, 3, 2, 1}
	if len(ranked) != len(want) {
		t.Fatalf("ranked %d candidates, want %d", len(ranked), len(want))
	}
	for i, id := range want {
		if ranked[i].CustomerID != id {
			t.Fatalf("position %d: got customer %d, want %d", i+1, ranked[i].CustomerID, id)
		}
	}
}

func TestRankTieBreaksOnArrivalThenID(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	cands := []Candidate{
		{CustomerID: 9, Flags: models.PriorityFlags{PWD: true}, CreatedAt: base},
		{CustomerID: 4, Flags: models.PriorityFlags{PWD: true}, CreatedAt: base},
		{CustomerID: 7, Flags: models.PriorityFlags{PWD: true}, CreatedAt: base.Add(-time.Minute)},
	}
	ranked := Rank(cands)
	want := []int64{7, 4, 9}
	for i, id := range want {
		if ranked[i].CustomerID != id {
			t.Fatalf("position %d: got customer %d, want %d", i+1, ranked[i].CustomerID, id)
		}
	}
}

func TestPosition(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	cands := []Candidate{
		{CustomerID: 1, CreatedAt: base},
		{CustomerID: 2, Flags: models.PriorityFlags{SeniorCitizen: true}, CreatedAt: base.Add(time.Minute)},
	}
	if got := Position(cands, 2); got != 1 {
		t.Fatalf("Position(2) = %d, want 1", got)
	}
	if got := Position(cands, 1); got != 2 {
		t.Fatalf("Position(1) = %d, want 2", got)
	}
	if got := Position(cands, 99); got != 0 {
		t.Fatalf("Position(99) = %d, want 0", got)
	}
}

func TestEstimatedWait(t *testing.T) {
	cases := []struct {
		position, avg, want int
	}{
		{1, 15, 0},
		{2, 15, 15},
		{5, 15, 60},
		{3, 10, 20},
		{4, 0, 45}, // falls back to the default service time
		{0, 15, 0},
	}
	for _, tc := range cases {
		if got := EstimatedWait(tc.position, tc.avg); got != tc.want {
			t.Fatalf("EstimatedWait(%d, %d) = %d, want %d", tc.position, tc.avg, got, tc.want)
		}
	}
}

func TestStatusBucketOrder(t *testing.T) {
	ordered := []string{
		models.StatusServing,
		models.StatusProcessing,
		models.StatusWaiting,
		models.StatusCompleted,
		models.StatusCancelled,
	}
	for i := 1; i < len(ordered); i++ {
		if StatusBucket(ordered[i-1]) >= StatusBucket(ordered[i]) {
			t.Fatalf("bucket(%s) should precede bucket(%s)", ordered[i-1], ordered[i])
		}
	}
}
