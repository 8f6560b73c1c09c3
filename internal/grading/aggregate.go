// Package grading turns per-question marking outcomes into an exam result.
package grading

import "github.com/pavelanni/markwise/internal/model"

// Outcome is the marking result for one answered question.
type Outcome struct {
	QuestionNumber string
	QuestionMarks  int
	Objectives     []string
	MarksAwarded   float64
	Feedback       string
	Justification  string
	ResponseID     model.DocID
}

// Summary is the aggregate over a set of outcomes.
type Summary struct {
	TotalMarks   float64
	MaxMarks     int
	PerQuestion  map[string]model.QuestionResult
	PerObjective map[string]model.ObjectiveScore
}

// Aggregate sums awarded marks overall and per learning objective. A question
// contributes its full awarded and available marks to every objective it is
// tagged with. PerQuestion is keyed by question number; a repeated number
// overwrites the earlier entry, so callers that need the totals to agree with
// PerQuestion must de-duplicate first (see LatestPerQuestion).
func Aggregate(outcomes []Outcome) Summary {
	s := Summary{
		PerQuestion:  make(map[string]model.QuestionResult, len(outcomes)),
		PerObjective: make(map[string]model.ObjectiveScore),
	}

	raw := make(map[string]float64)
	available := make(map[string]int)

	for _, o := range outcomes {
		s.TotalMarks += o.MarksAwarded
		s.MaxMarks += o.QuestionMarks
		s.PerQuestion[o.QuestionNumber] = model.QuestionResult{
			MarksAwarded:  o.MarksAwarded,
			Feedback:      o.Feedback,
			Justification: o.Justification,
			ResponseID:    o.ResponseID,
		}

		for _, obj := range uniq(o.Objectives) {
			raw[obj] += o.MarksAwarded
			available[obj] += o.QuestionMarks
		}
	}

	for obj, score := range raw {
		s.PerObjective[obj] = model.ObjectiveScore{
			RawScore:       score,
			TotalAvailable: available[obj],
			Percentage:     Percentage(score, available[obj]),
		}
	}
	return s
}

// Percentage returns score as a percentage of total, or 0 when total is not positive.
func Percentage(score float64, total int) float64 {
	if total <= 0 {
		return 0
	}
	return score * 100 / float64(total)
}

// DuplicateNumbers returns the question numbers that appear more than once,
// in order of their second appearance.
func DuplicateNumbers(questions []model.Question) []string {
	seen := make(map[string]int, len(questions))
	var dups []string
	for _, q := range questions {
		seen[q.Number]++
		if seen[q.Number] == 2 {
			dups = append(dups, q.Number)
		}
	}
	return dups
}

// LatestPerQuestion keeps the last outcome for each question number, preserving
// the order in which the surviving outcomes first appeared.
func LatestPerQuestion(outcomes []Outcome) []Outcome {
	index := make(map[string]int, len(outcomes))
	var out []Outcome
	for _, o := range outcomes {
		if i, ok := index[o.QuestionNumber]; ok {
			out[i] = o
			continue
		}
		index[o.QuestionNumber] = len(out)
		out = append(out, o)
	}
	return out
}

func uniq(labels []string) []string {
	if len(labels) < 2 {
		return labels
	}
	seen := make(map[string]bool, len(labels))
	out := labels[:0:0]
	for _, l := range labels {
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
