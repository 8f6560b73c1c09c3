package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/markwise/internal/apperr"
	"github.com/pavelanni/markwise/internal/grading"
	"github.com/pavelanni/markwise/internal/model"
)

type examQuestions struct {
	Questions []model.Question `json:"questions" validate:"dive"`
}

type processRequest struct {
	ExamQuestions    *examQuestions `json:"exam_questions"`
	ExamID           model.DocID    `json:"exam_id"`
	StudentResponses []string       `json:"student_responses" validate:"required"`
	StudentName      string         `json:"student_name" validate:"required"`
	StudentID        string         `json:"student_id" validate:"required"`
	ClassID          string         `json:"class_id" validate:"required"`
}

// handleProcessExamResponses marks every answer of an exam in order, stores
// each marked response, then stores and returns the aggregated result.
func (h *Handler) handleProcessExamResponses(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}

	// Questions sent inline win; exam_id then only links the result.
	var questions []model.Question
	if req.ExamQuestions != nil {
		questions = req.ExamQuestions.Questions
	} else if req.ExamID == "" {
		writeError(w, r, apperr.Validation("ExamSourceRequired", nil))
		return
	}
	if req.ExamID != "" {
		exam, err := h.store.GetExamSet(r.Context(), req.ExamID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if req.ExamQuestions == nil {
			questions = exam.Questions
		}
	}

	if len(questions) == 0 {
		writeError(w, r, apperr.Validation("NoQuestions", nil))
		return
	}
	if len(req.StudentResponses) != len(questions) {
		writeError(w, r, apperr.Validation("AnswerCountMismatch", map[string]any{
			"Questions": len(questions),
			"Answers":   len(req.StudentResponses),
		}))
		return
	}

	// Unnumbered questions take their position as their number.
	numbered := make([]model.Question, len(questions))
	for i, q := range questions {
		if q.Number == "" {
			q.Number = strconv.Itoa(i + 1)
		}
		numbered[i] = q
	}
	if dups := grading.DuplicateNumbers(numbered); len(dups) > 0 {
		writeError(w, r, apperr.Validation("DuplicateQuestionNumbers", map[string]any{
			"Numbers": strings.Join(dups, ", "),
		}))
		return
	}

	s := student{Name: req.StudentName, ID: req.StudentID, ClassID: req.ClassID}
	outcomes := make([]grading.Outcome, 0, len(numbered))
	for i, q := range numbered {
		resp, err := h.markOne(r.Context(), s, q, req.StudentResponses[i], req.ExamID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		outcomes = append(outcomes, outcomeFor(*resp, q.Number))
	}

	result := newResult(s, req.ExamID, grading.Aggregate(outcomes))
	if err := h.store.InsertResult(r.Context(), result); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.GetResult(r.Context(), model.DocID(chi.URLParam(r, "resultID")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListResults(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	results, err := h.store.ListResults(r.Context(), studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(results) == 0 {
		writeError(w, r, apperr.NotFound("NoResultsForStudent", map[string]any{"StudentID": studentID}))
		return
	}
	writeJSON(w, http.StatusOK, results)
}
