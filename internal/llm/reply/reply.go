// Package reply decodes the free-text replies of the completion model into
// exam and marking structures.
package reply

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/markwise/internal/apperr"
)

var fenceRegex = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// ExamQuestion is one question as decoded from the model. Marks is nil when
// the model omitted it.
type ExamQuestion struct {
	Number             string
	Text               string
	Marks              *int
	LearningObjectives []string
	MarkScheme         string
}

// Exam is a decoded exam-generation reply.
type Exam struct {
	Questions []ExamQuestion
}

// Marking is a decoded marking reply. MarksAwarded is nil when the model
// omitted it; callers decide the default.
type Marking struct {
	MarksAwarded  *float64
	Feedback      string
	Justification string
}

// ExtractJSON returns the outermost JSON object in s. Markdown code fences are
// preferred when present; otherwise the first balanced {...} outside string
// literals that is valid JSON is returned. It returns "" when no object is
// found.
func ExtractJSON(s string) string {
	for _, m := range fenceRegex.FindAllStringSubmatch(s, -1) {
		if obj := scanObject(m[1]); obj != "" {
			return obj
		}
	}
	return scanObject(s)
}

// scanObject tries each balanced candidate in turn, so prose such as
// "{M1, A1}" ahead of the real object is skipped.
func scanObject(s string) string {
	for from := 0; from < len(s); {
		start, end := balanced(s[from:])
		if start < 0 {
			return ""
		}
		if cand := s[from+start : from+end]; json.Valid([]byte(cand)) {
			return cand
		}
		from += start + 1
	}
	return ""
}

// balanced locates the first balanced {...} in s, ignoring braces inside
// string literals. end is exclusive; start is -1 when there is none.
func balanced(s string) (start, end int) {
	start = -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' && start != -1 {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

type rawQuestion struct {
	Number             json.RawMessage `json:"number"`
	Text               string          `json:"text"`
	Marks              json.RawMessage `json:"marks"`
	LearningObjectives []string        `json:"learning_objectives"`
	MarkScheme         json.RawMessage `json:"mark_scheme"`
}

// ParseExam decodes an exam-generation reply. It requires a non-empty
// "questions" array whose entries carry question text.
func ParseExam(raw string) (*Exam, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	qsRaw, ok := obj["questions"]
	if !ok {
		return nil, apperr.Malformed(`missing "questions"`, raw, nil)
	}
	var qs []rawQuestion
	if err := json.Unmarshal(qsRaw, &qs); err != nil {
		return nil, apperr.Malformed(`"questions" is not an array of objects`, raw, err)
	}
	if len(qs) == 0 {
		return nil, apperr.Malformed(`"questions" is empty`, raw, nil)
	}

	exam := &Exam{Questions: make([]ExamQuestion, 0, len(qs))}
	for i, q := range qs {
		if strings.TrimSpace(q.Text) == "" {
			return nil, apperr.Malformed(fmt.Sprintf("question %d has no text", i+1), raw, nil)
		}
		eq := ExamQuestion{
			Number:             scalarString(q.Number),
			Text:               q.Text,
			LearningObjectives: q.LearningObjectives,
			MarkScheme:         schemeString(q.MarkScheme),
		}
		if marks, present, err := number(q.Marks); err != nil {
			return nil, apperr.Malformed(fmt.Sprintf("question %d: marks: %v", i+1, err), raw, err)
		} else if present {
			m := int(marks)
			if m < 0 {
				m = 0
			}
			eq.Marks = &m
		}
		exam.Questions = append(exam.Questions, eq)
	}
	return exam, nil
}

// ParseMarking decodes a marking reply. It requires a "feedback" string;
// "marks_awarded" may be a number or a numeric string.
func ParseMarking(raw string) (*Marking, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	var m Marking
	fb, ok := obj["feedback"]
	if !ok {
		return nil, apperr.Malformed(`missing "feedback"`, raw, nil)
	}
	if err := json.Unmarshal(fb, &m.Feedback); err != nil {
		return nil, apperr.Malformed(`"feedback" is not a string`, raw, err)
	}

	if j, ok := obj["justification"]; ok {
		m.Justification = scalarString(j)
	}

	marks, present, err := number(obj["marks_awarded"])
	if err != nil {
		return nil, apperr.Malformed(fmt.Sprintf("marks_awarded: %v", err), raw, err)
	}
	if present {
		m.MarksAwarded = &marks
	}
	return &m, nil
}

func decodeObject(raw string) (map[string]json.RawMessage, error) {
	s := ExtractJSON(raw)
	if s == "" {
		return nil, apperr.Malformed("no JSON object found in model reply", raw, nil)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, apperr.Malformed("invalid JSON in model reply", raw, err)
	}
	return obj, nil
}

// number reads a JSON number or numeric string. present is false for a
// missing value or null.
func number(raw json.RawMessage) (v float64, present bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false, fmt.Errorf("not a number: %s", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	if i := strings.IndexByte(s, '/'); i > 0 {
		// "3/5" style answers: keep the awarded part.
		s = strings.TrimSpace(s[:i])
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("not a number: %q", s)
	}
	return v, true, nil
}

// scalarString renders a JSON string or number as text.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// schemeString accepts a mark scheme given as text or as a list of points.
func schemeString(raw json.RawMessage) string {
	var points []string
	if err := json.Unmarshal(raw, &points); err == nil {
		return strings.Join(points, "\n")
	}
	return scalarString(raw)
}
