package store

import (
	"context"
	"testing"

	"github.com/pavelanni/markwise/internal/apperr"
	"github.com/pavelanni/markwise/internal/model"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return newTestStore(t) })
}

// runStoreSuite checks the behavior every Store backend must share. newStore
// must return an empty store.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("exam sets", func(t *testing.T) { testExamSets(t, newStore(t)) })
	t.Run("responses", func(t *testing.T) { testResponses(t, newStore(t)) })
	t.Run("results", func(t *testing.T) { testResults(t, newStore(t)) })
	t.Run("ping", func(t *testing.T) {
		if err := newStore(t).Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}

func insertExamSet(t *testing.T, s Store, owner model.Owner, subject string) *model.ExamSet {
	t.Helper()
	e := &model.ExamSet{
		Questions: []model.Question{
			{Number: "1", Text: "Solve 2x = 4", Marks: 2, LearningObjectives: []string{"Algebra"}, MarkScheme: "M1 A1"},
			{Number: "2(a)", Text: "Area of a 3 by 4 rectangle", Marks: 1, LearningObjectives: []string{"Geometry"}},
		},
		ClassID:            owner.ClassID,
		StudentID:          owner.StudentID,
		ExamBoard:          "AQA",
		Country:            "UK",
		Subject:            subject,
		LearningObjectives: []string{"Algebra", "Geometry"},
	}
	if err := s.InsertExamSet(context.Background(), e); err != nil {
		t.Fatalf("InsertExamSet: %v", err)
	}
	return e
}

func testExamSets(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.FirstExamID(ctx); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("FirstExamID on empty store: expected not found, got %v", err)
	}

	first := insertExamSet(t, s, model.Owner{ClassID: "c-1"}, "Maths")
	if len(first.ID) != 24 {
		t.Errorf("expected 24-char ObjectID hex, got %q", first.ID)
	}
	if first.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on insert")
	}
	second := insertExamSet(t, s, model.Owner{ClassID: "c-1"}, "Physics")
	parentSet := insertExamSet(t, s, model.Owner{StudentID: "s-1"}, "Chemistry")
	insertExamSet(t, s, model.Owner{ClassID: "c-2"}, "Biology")

	got, err := s.GetExamSet(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetExamSet: %v", err)
	}
	if got.ID != first.ID || got.Subject != "Maths" || got.ClassID != "c-1" || got.StudentID != "" {
		t.Errorf("GetExamSet = %+v", got)
	}
	if len(got.Questions) != 2 || got.Questions[1].Number != "2(a)" || got.Questions[0].MarkScheme != "M1 A1" {
		t.Errorf("questions not preserved: %+v", got.Questions)
	}

	if _, err := s.GetExamSet(ctx, "not-an-id"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("malformed id: expected validation error, got %v", err)
	}
	if _, err := s.GetExamSet(ctx, "000000000000000000000000"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("missing id: expected not found, got %v", err)
	}

	tests := []struct {
		name   string
		owner  model.Owner
		wantID model.DocID
	}{
		{"latest for class", model.Owner{ClassID: "c-1"}, second.ID},
		{"parent set", model.Owner{StudentID: "s-1"}, parentSet.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := s.FindExamSet(ctx, tt.owner)
			if err != nil {
				t.Fatalf("FindExamSet: %v", err)
			}
			if e.ID != tt.wantID {
				t.Errorf("FindExamSet = %s, want %s", e.ID, tt.wantID)
			}
		})
	}
	if _, err := s.FindExamSet(ctx, model.Owner{StudentID: "nobody"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown owner: expected not found, got %v", err)
	}

	ids, err := s.ListExamIDs(ctx, "c-1")
	if err != nil {
		t.Fatalf("ListExamIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != first.ID || ids[1] != second.ID {
		t.Errorf("ListExamIDs = %v, want [%s %s]", ids, first.ID, second.ID)
	}
	ids, err = s.ListExamIDs(ctx, "c-none")
	if err != nil {
		t.Fatalf("ListExamIDs: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Errorf("ListExamIDs for unknown class = %#v, want empty slice", ids)
	}

	firstID, err := s.FirstExamID(ctx)
	if err != nil {
		t.Fatalf("FirstExamID: %v", err)
	}
	if firstID != first.ID {
		t.Errorf("FirstExamID = %s, want %s", firstID, first.ID)
	}
}

func testResponses(t *testing.T, s Store) {
	ctx := context.Background()

	list, err := s.ListResponses(ctx, "s-1")
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no responses, got %d", len(list))
	}

	var inserted []model.DocID
	for i, answer := range []string{"x = 2", "12", "x = 3"} {
		r := &model.StudentResponse{
			StudentName:     "Ada",
			StudentID:       "s-1",
			ClassID:         "c-1",
			Question:        model.Question{Number: string(rune('1' + i)), Text: "Q", Marks: 3, LearningObjectives: []string{"Algebra"}},
			StudentResponse: answer,
			MarksAwarded:    float64(i) + 0.5,
			Feedback:        "feedback",
			Justification:   "justification",
		}
		if err := s.InsertResponse(ctx, r); err != nil {
			t.Fatalf("InsertResponse: %v", err)
		}
		if r.ID == "" {
			t.Fatal("InsertResponse should assign an ID")
		}
		inserted = append(inserted, r.ID)
	}
	other := &model.StudentResponse{StudentID: "s-2", Question: model.Question{Number: "1", Text: "Q"}}
	if err := s.InsertResponse(ctx, other); err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}

	list, err = s.ListResponses(ctx, "s-1")
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(list))
	}
	for i, r := range list {
		if r.ID != inserted[i] {
			t.Errorf("response %d: ID = %s, want %s (insertion order)", i, r.ID, inserted[i])
		}
	}
	if list[2].StudentResponse != "x = 3" || list[2].MarksAwarded != 2.5 || list[2].Question.Marks != 3 {
		t.Errorf("response not preserved: %+v", list[2])
	}
}

func testResults(t *testing.T, s Store) {
	ctx := context.Background()

	var ids []model.DocID
	for _, total := range []float64{3, 7} {
		r := &model.ExamResult{
			StudentName: "Ada",
			StudentID:   "s-1",
			ClassID:     "c-1",
			TotalMarks:  total,
			MaxMarks:    10,
			ResultsPerQuestion: map[string]model.QuestionResult{
				"1(a)i": {MarksAwarded: total, Feedback: "ok", Justification: "M1"},
			},
			PerformancePerObjective: map[string]model.ObjectiveScore{
				"Algebra": {RawScore: total, TotalAvailable: 10, Percentage: total * 10},
			},
		}
		if err := s.InsertResult(ctx, r); err != nil {
			t.Fatalf("InsertResult: %v", err)
		}
		ids = append(ids, r.ID)
	}
	if err := s.InsertResult(ctx, &model.ExamResult{StudentID: "s-2"}); err != nil {
		t.Fatalf("InsertResult: %v", err)
	}

	got, err := s.GetResult(ctx, ids[1])
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.TotalMarks != 7 || got.PerformancePerObjective["Algebra"].Percentage != 70 {
		t.Errorf("GetResult = %+v", got)
	}
	if got.ResultsPerQuestion["1(a)i"].Justification != "M1" {
		t.Errorf("per-question results not preserved: %+v", got.ResultsPerQuestion)
	}
	if _, err := s.GetResult(ctx, "xyz"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("malformed id: expected validation error, got %v", err)
	}
	if _, err := s.GetResult(ctx, "000000000000000000000000"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("missing id: expected not found, got %v", err)
	}

	list, err := s.ListResults(ctx, "s-1")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(list) != 2 || list[0].ID != ids[1] || list[1].ID != ids[0] {
		t.Errorf("ListResults should be newest first, got %v", list)
	}

	all, err := s.ListAllResults(ctx)
	if err != nil {
		t.Fatalf("ListAllResults: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListAllResults returned %d results, want 3", len(all))
	}
	if all[0].ID != ids[0] {
		t.Errorf("ListAllResults should be in insertion order, first = %s", all[0].ID)
	}

	exp, err := ExportResults(ctx, s, "test")
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if exp.NumResults != 3 || exp.Store != "test" || exp.ExportedAt.IsZero() {
		t.Errorf("ExportResults = %+v", exp)
	}
}
