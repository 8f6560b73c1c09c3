package grading

import (
	"math"
	"testing"

	"github.com/pavelanni/markwise/internal/model"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAggregateTwoQuestions(t *testing.T) {
	got := Aggregate([]Outcome{
		{QuestionNumber: "1", QuestionMarks: 5, Objectives: []string{"Algebra"}, MarksAwarded: 3},
		{QuestionNumber: "2", QuestionMarks: 5, Objectives: []string{"Algebra", "Geometry"}, MarksAwarded: 4},
	})

	if !approx(got.TotalMarks, 7) {
		t.Errorf("TotalMarks = %v, want 7", got.TotalMarks)
	}
	if got.MaxMarks != 10 {
		t.Errorf("MaxMarks = %d, want 10", got.MaxMarks)
	}

	tests := []struct {
		objective string
		raw       float64
		available int
		pct       float64
	}{
		{"Algebra", 7, 10, 70},
		{"Geometry", 4, 5, 80},
	}
	for _, tt := range tests {
		t.Run(tt.objective, func(t *testing.T) {
			s, ok := got.PerObjective[tt.objective]
			if !ok {
				t.Fatalf("missing objective %q", tt.objective)
			}
			if !approx(s.RawScore, tt.raw) {
				t.Errorf("RawScore = %v, want %v", s.RawScore, tt.raw)
			}
			if s.TotalAvailable != tt.available {
				t.Errorf("TotalAvailable = %d, want %d", s.TotalAvailable, tt.available)
			}
			if !approx(s.Percentage, tt.pct) {
				t.Errorf("Percentage = %v, want %v", s.Percentage, tt.pct)
			}
		})
	}
}

func TestAggregateFullContributionToEachObjective(t *testing.T) {
	got := Aggregate([]Outcome{
		{QuestionNumber: "1", QuestionMarks: 6, Objectives: []string{"A", "B"}, MarksAwarded: 4},
	})
	for _, obj := range []string{"A", "B"} {
		s := got.PerObjective[obj]
		if !approx(s.RawScore, 4) || s.TotalAvailable != 6 {
			t.Errorf("%s = %+v, want raw 4 of 6", obj, s)
		}
	}
}

func TestAggregateZeroAvailable(t *testing.T) {
	got := Aggregate([]Outcome{
		{QuestionNumber: "1", QuestionMarks: 0, Objectives: []string{"Probability"}, MarksAwarded: 0},
	})
	s := got.PerObjective["Probability"]
	if s.Percentage != 0 || math.IsNaN(s.Percentage) {
		t.Errorf("Percentage = %v, want 0", s.Percentage)
	}
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil)
	if got.TotalMarks != 0 {
		t.Errorf("TotalMarks = %v, want 0", got.TotalMarks)
	}
	if len(got.PerObjective) != 0 || len(got.PerQuestion) != 0 {
		t.Errorf("expected empty maps, got %v / %v", got.PerObjective, got.PerQuestion)
	}
}

func TestAggregateTotalMatchesPerQuestion(t *testing.T) {
	outcomes := []Outcome{
		{QuestionNumber: "1(a)", QuestionMarks: 2, MarksAwarded: 1.5},
		{QuestionNumber: "1(b)", QuestionMarks: 3, Objectives: []string{"Ratio"}, MarksAwarded: 3},
		{QuestionNumber: "2", QuestionMarks: 4, Objectives: []string{"Ratio", "Ratio"}, MarksAwarded: 2},
	}
	got := Aggregate(outcomes)

	var sum float64
	for _, r := range got.PerQuestion {
		sum += r.MarksAwarded
	}
	if !approx(sum, got.TotalMarks) {
		t.Errorf("sum of per-question marks %v != TotalMarks %v", sum, got.TotalMarks)
	}

	// Untagged questions still count towards the total.
	if !approx(got.TotalMarks, 6.5) {
		t.Errorf("TotalMarks = %v, want 6.5", got.TotalMarks)
	}
	// A label repeated on one question is counted once.
	if r := got.PerObjective["Ratio"]; !approx(r.RawScore, 5) || r.TotalAvailable != 7 {
		t.Errorf("Ratio = %+v, want raw 5 of 7", r)
	}
}

func TestAggregateDuplicateNumberLastWins(t *testing.T) {
	got := Aggregate([]Outcome{
		{QuestionNumber: "1", QuestionMarks: 5, MarksAwarded: 1, Feedback: "first"},
		{QuestionNumber: "1", QuestionMarks: 5, MarksAwarded: 4, Feedback: "second"},
	})
	if got.PerQuestion["1"].Feedback != "second" {
		t.Errorf("PerQuestion[1] = %+v, want the later outcome", got.PerQuestion["1"])
	}
}

func TestLatestPerQuestion(t *testing.T) {
	in := []Outcome{
		{QuestionNumber: "1", MarksAwarded: 1},
		{QuestionNumber: "2", MarksAwarded: 2},
		{QuestionNumber: "1", MarksAwarded: 5},
	}
	got := LatestPerQuestion(in)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].QuestionNumber != "1" || got[0].MarksAwarded != 5 {
		t.Errorf("got[0] = %+v, want question 1 with the later mark", got[0])
	}
	if got[1].QuestionNumber != "2" {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestDuplicateNumbers(t *testing.T) {
	qs := []model.Question{{Number: "1"}, {Number: "2"}, {Number: "1"}, {Number: "1"}, {Number: "2"}}
	got := DuplicateNumbers(qs)
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("DuplicateNumbers = %v, want [1 2]", got)
	}
	if d := DuplicateNumbers([]model.Question{{Number: "1"}, {Number: "2"}}); d != nil {
		t.Errorf("DuplicateNumbers(unique) = %v, want nil", d)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		score float64
		total int
		want  float64
	}{
		{7, 10, 70},
		{4, 5, 80},
		{0, 0, 0},
		{3, -1, 0},
		{1, 3, 100.0 / 3},
	}
	for _, tt := range tests {
		if got := Percentage(tt.score, tt.total); !approx(got, tt.want) {
			t.Errorf("Percentage(%v, %d) = %v, want %v", tt.score, tt.total, got, tt.want)
		}
	}
}
