package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/markwise/internal/apperr"
	"github.com/pavelanni/markwise/internal/llm/prompts"
	"github.com/pavelanni/markwise/internal/llm/reply"
	"github.com/pavelanni/markwise/internal/model"
	"github.com/pavelanni/markwise/internal/store"
)

// Gateway is the language-model side of the handlers. *llm.Client
// implements it.
type Gateway interface {
	GenerateExam(ctx context.Context, p prompts.ExamParams) ([]model.Question, error)
	MarkResponse(ctx context.Context, p prompts.MarkParams) (*reply.Marking, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    store.Store
	llm      Gateway
	validate *validator.Validate
}

// New creates a new Handler.
func New(s store.Store, g Gateway) *Handler {
	return &Handler{store: s, llm: g, validate: newValidator()}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/exam", func(r chi.Router) {
		r.Post("/generate_exam_questions", h.handleGenerateExam)
		r.Get("/get_exam_questions", h.handleGetExamQuestions)
		r.Get("/get_exam_ids", h.handleGetExamIDs)
		r.Get("/get_one_exam_id", h.handleGetOneExamID)
		r.Get("/{examID}", h.handleGetExam)
	})

	r.Route("/mark", func(r chi.Router) {
		r.Post("/mark_student_response", h.handleMarkResponse)
		r.Get("/process_student_results/{studentID}", h.handleRecomputeResult)
	})

	r.Route("/student", func(r chi.Router) {
		r.Post("/process_exam_responses", h.handleProcessExamResponses)
		r.Get("/exam_results/{resultID}", h.handleGetResult)
		r.Get("/exam_results/student/{studentID}", h.handleListResults)
		r.Get("/process_exam_result/{studentID}", h.handleRecomputeResult)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeErrorStatus(w, r, http.StatusServiceUnavailable, apperr.From(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// resolveOwner checks the role and the id it requires, and returns the owner
// with the other id dropped.
func resolveOwner(role, classID, studentID string) (model.Owner, error) {
	rl, ok := model.ParseRole(role)
	if !ok {
		return model.Owner{}, apperr.Validation("InvalidRole", map[string]any{"Role": role})
	}
	switch {
	case rl == model.RoleTeacher && classID == "":
		return model.Owner{}, apperr.Validation("ClassIDRequired", nil)
	case rl == model.RoleParent && studentID == "":
		return model.Owner{}, apperr.Validation("StudentIDRequired", nil)
	}
	return model.OwnerFor(rl, classID, studentID), nil
}
