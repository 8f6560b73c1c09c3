package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/markwise/internal/apperr"
	"github.com/pavelanni/markwise/internal/llm/prompts"
	"github.com/pavelanni/markwise/internal/model"
)

const defaultNumQuestions = 5

type generateRequest struct {
	Role               string   `json:"role" validate:"required"`
	ExamBoard          string   `json:"exam_board" validate:"required"`
	Country            string   `json:"country" validate:"required"`
	LearningObjectives []string `json:"learning_objectives" validate:"required,min=1,dive,required"`
	Subject            string   `json:"subject" validate:"required"`
	ExamLength         int      `json:"exam_length" validate:"gte=0"`
	NumQuestions       *int     `json:"num_questions" validate:"omitempty,min=1,max=50"`
	TotalMarks         int      `json:"total_marks" validate:"gte=0"`
	StudentID          string   `json:"student_id"`
	ClassID            string   `json:"class_id"`
}

func (h *Handler) handleGenerateExam(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}
	owner, err := resolveOwner(req.Role, req.ClassID, req.StudentID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	numQuestions := defaultNumQuestions
	if req.NumQuestions != nil {
		numQuestions = *req.NumQuestions
	}

	questions, err := h.llm.GenerateExam(r.Context(), prompts.ExamParams{
		ExamBoard:          req.ExamBoard,
		Country:            req.Country,
		Subject:            req.Subject,
		LearningObjectives: req.LearningObjectives,
		NumQuestions:       numQuestions,
		ExamLength:         req.ExamLength,
		TotalMarks:         req.TotalMarks,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	exam := &model.ExamSet{
		Questions:          questions,
		ClassID:            owner.ClassID,
		StudentID:          owner.StudentID,
		ExamBoard:          req.ExamBoard,
		Country:            req.Country,
		Subject:            req.Subject,
		LearningObjectives: req.LearningObjectives,
		ExamLength:         req.ExamLength,
		TotalMarks:         req.TotalMarks,
	}
	if err := h.store.InsertExamSet(r.Context(), exam); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleGetExamQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner, err := resolveOwner(q.Get("role"), q.Get("class_id"), q.Get("student_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	exam, err := h.store.FindExamSet(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleGetExamIDs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role, ok := model.ParseRole(q.Get("user_role"))
	if !ok {
		writeError(w, r, apperr.Validation("InvalidRole", map[string]any{"Role": q.Get("user_role")}))
		return
	}
	if role != model.RoleTeacher {
		writeError(w, r, apperr.Forbidden("TeacherOnly", nil))
		return
	}
	classID := q.Get("class_id")
	if classID == "" {
		writeError(w, r, apperr.Validation("ClassIDRequired", nil))
		return
	}

	ids, err := h.store.ListExamIDs(r.Context(), classID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.DocID{"exam_ids": ids})
}

func (h *Handler) handleGetOneExamID(w http.ResponseWriter, r *http.Request) {
	id, err := h.store.FirstExamID(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.DocID{"exam_id": id})
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.store.GetExamSet(r.Context(), model.DocID(chi.URLParam(r, "examID")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}
