package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/markwise/internal/apperr"
	"github.com/pavelanni/markwise/internal/i18n"
)

const maxBodyBytes = 1 << 20

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

type meta struct {
	RequestID string `json:"request_id,omitempty"`
}

type errorEnvelope struct {
	Error errorPayload `json:"error"`
	Meta  meta         `json:"meta"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError writes err as a localized error envelope with the status of its kind.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	writeErrorStatus(w, r, e.Status(), e)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, e *apperr.Error) {
	reqID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"code", e.Code(), "transient", e.Transient, "request_id", reqID, "error", e)
	} else {
		slog.Info("request rejected", "method", r.Method, "path", r.URL.Path,
			"code", e.Code(), "request_id", reqID, "error", e)
	}

	writeJSON(w, status, errorEnvelope{
		Error: errorPayload{
			Code:    e.Code(),
			Message: i18n.Td(r.Context(), e.MsgID, e.Data),
			Raw:     e.Raw,
		},
		Meta: meta{RequestID: reqID},
	})
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		reason := err.Error()
		if errors.Is(err, io.EOF) {
			reason = "empty body"
		}
		return apperr.Validation("InvalidRequestBody", map[string]any{"Reason": reason})
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates v's struct tags and reports the first failing field.
func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("InvalidRequestBody", map[string]any{"Reason": err.Error()})
	}
	fe := verrs[0]
	// Drop the request type name from the namespace.
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	if fe.Tag() == "required" {
		return apperr.Validation("FieldRequired", map[string]any{"Field": field})
	}
	return apperr.Validation("FieldInvalid", map[string]any{"Field": field})
}
