package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", Validation("RoleInvalid", nil), http.StatusBadRequest},
		{"authorization", Forbidden("TeacherOnly", nil), http.StatusForbidden},
		{"not found", NotFound("ExamNotFound", nil), http.StatusNotFound},
		{"malformed", Malformed("no JSON object", "Sure!", nil), http.StatusInternalServerError},
		{"upstream", Upstream(errors.New("dial tcp")), http.StatusInternalServerError},
		{"store", Store("insert", true, errors.New("timeout")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Status(); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStoreCode(t *testing.T) {
	if got := Store("find", true, nil).Code(); got != "store_unavailable" {
		t.Errorf("transient Code() = %q", got)
	}
	if got := Store("find", false, nil).Code(); got != "store_error" {
		t.Errorf("permanent Code() = %q", got)
	}
}

func TestFromWrapped(t *testing.T) {
	base := NotFound("ResultNotFound", map[string]any{"ID": "abc"})
	wrapped := fmt.Errorf("get result: %w", base)

	if !Is(wrapped, KindNotFound) {
		t.Fatal("Is() should find the wrapped kind")
	}
	if got := From(wrapped); got != base {
		t.Errorf("From() = %v, want the wrapped *Error", got)
	}

	plain := From(errors.New("boom"))
	if plain.Kind != KindInternal {
		t.Errorf("From(plain).Kind = %q, want %q", plain.Kind, KindInternal)
	}
	if !errors.Is(plain, plain.Err) {
		t.Error("From(plain) should unwrap to the original error")
	}
}

func TestMalformedKeepsRaw(t *testing.T) {
	e := Malformed("no JSON object found", "Sure! ```json", nil)
	if e.Raw != "Sure! ```json" {
		t.Errorf("Raw = %q", e.Raw)
	}
	if e.Data["Reason"] != "no JSON object found" {
		t.Errorf("Reason = %v", e.Data["Reason"])
	}
}
