package handler

import (
	"context"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/markwise/internal/apperr"
	"github.com/pavelanni/markwise/internal/grading"
	"github.com/pavelanni/markwise/internal/llm/prompts"
	"github.com/pavelanni/markwise/internal/model"
)

// student identifies who a response or result belongs to.
type student struct {
	Name    string
	ID      string
	ClassID string
}

type markRequest struct {
	Question        model.Question `json:"question"`
	StudentResponse string         `json:"student_response"`
	StudentName     string         `json:"student_name" validate:"required"`
	StudentID       string         `json:"student_id" validate:"required"`
	ClassID         string         `json:"class_id" validate:"required"`
	ExamID          model.DocID    `json:"exam_id"`
}

func (h *Handler) handleMarkResponse(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ExamID != "" {
		if _, err := h.store.GetExamSet(r.Context(), req.ExamID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	s := student{Name: req.StudentName, ID: req.StudentID, ClassID: req.ClassID}
	resp, err := h.markOne(r.Context(), s, req.Question, req.StudentResponse, req.ExamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// markOne asks the model to mark one answer and stores the marked response.
// Awarded marks default to 0 and are clamped to the question's marks.
func (h *Handler) markOne(ctx context.Context, s student, q model.Question, answer string, examID model.DocID) (*model.StudentResponse, error) {
	m, err := h.llm.MarkResponse(ctx, prompts.MarkParams{
		StudentName: s.Name,
		StudentID:   s.ID,
		ClassID:     s.ClassID,
		Question:    q,
		Response:    answer,
	})
	if err != nil {
		return nil, err
	}

	var awarded float64
	if m.MarksAwarded != nil {
		v := *m.MarksAwarded
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperr.Malformed("marks_awarded is not a finite number", "", nil)
		}
		awarded = min(max(v, 0), float64(q.Marks))
	}

	resp := &model.StudentResponse{
		StudentName:     s.Name,
		StudentID:       s.ID,
		ClassID:         s.ClassID,
		ExamID:          examID,
		Question:        q,
		StudentResponse: answer,
		MarksAwarded:    awarded,
		Feedback:        m.Feedback,
		Justification:   m.Justification,
	}
	if err := h.store.InsertResponse(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// handleRecomputeResult rebuilds a student's exam result from every response
// stored for them. When a question number was answered more than once, the
// latest response counts.
func (h *Handler) handleRecomputeResult(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	responses, err := h.store.ListResponses(r.Context(), studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(responses) == 0 {
		writeError(w, r, apperr.NotFound("NoResponsesForStudent", map[string]any{"StudentID": studentID}))
		return
	}

	outcomes := make([]grading.Outcome, 0, len(responses))
	examID := responses[0].ExamID
	for _, resp := range responses {
		number := resp.Question.Number
		if number == "" {
			number = resp.ID.String()
		}
		outcomes = append(outcomes, outcomeFor(resp, number))
		if resp.ExamID != examID {
			examID = ""
		}
	}

	latest := responses[len(responses)-1]
	result := newResult(student{Name: latest.StudentName, ID: studentID, ClassID: latest.ClassID}, examID,
		grading.Aggregate(grading.LatestPerQuestion(outcomes)))
	if err := h.store.InsertResult(r.Context(), result); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func outcomeFor(resp model.StudentResponse, number string) grading.Outcome {
	return grading.Outcome{
		QuestionNumber: number,
		QuestionMarks:  resp.Question.Marks,
		Objectives:     resp.Question.LearningObjectives,
		MarksAwarded:   resp.MarksAwarded,
		Feedback:       resp.Feedback,
		Justification:  resp.Justification,
		ResponseID:     resp.ID,
	}
}

func newResult(s student, examID model.DocID, sum grading.Summary) *model.ExamResult {
	return &model.ExamResult{
		StudentName:             s.Name,
		StudentID:               s.ID,
		ClassID:                 s.ClassID,
		ExamID:                  examID,
		TotalMarks:              sum.TotalMarks,
		MaxMarks:                sum.MaxMarks,
		ResultsPerQuestion:      sum.PerQuestion,
		PerformancePerObjective: sum.PerObjective,
	}
}
