package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/markwise/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// ExamSchema is the JSON shape the model must return for exam generation.
const ExamSchema = `{
  "questions": [
    {
      "number": "1",
      "text": "Question text",
      "marks": 5,
      "learning_objectives": ["Objective 1", "Objective 2"],
      "mark_scheme": "Detailed mark scheme"
    }
  ]
}`

// MarkSchema is the JSON shape the model must return when marking a response.
const MarkSchema = `{
  "marks_awarded": 0,
  "feedback": "Detailed feedback",
  "justification": "Justification for marks"
}`

const maxAnswerRunes = 10000

// PromptVariant represents a marking prompt variant.
type PromptVariant string

const (
	// PromptStrict applies the mark scheme literally.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default marking variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient gives credit for partial understanding.
	PromptLenient PromptVariant = "lenient"
)

var variants = []PromptVariant{PromptStrict, PromptStandard, PromptLenient}

var (
	loadOnce      sync.Once
	loadErr       error
	examTemplate  *template.Template
	markTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range variants {
		if PromptVariant(v) == known {
			return true
		}
	}
	return false
}

// ExamParams are the generation parameters of an exam prompt.
type ExamParams struct {
	ExamBoard          string
	Country            string
	Subject            string
	LearningObjectives []string
	NumQuestions       int
	ExamLength         int // minutes, 0 when unspecified
	TotalMarks         int // 0 when unspecified
}

// MarkParams are the inputs of a marking prompt.
type MarkParams struct {
	StudentName string
	StudentID   string
	ClassID     string
	Question    model.Question
	Response    string
	Variant     PromptVariant
}

type examData struct {
	ExamParams
	Schema string
}

type markData struct {
	StudentName  string
	StudentID    string
	ClassID      string
	QuestionText string
	Marks        int
	MarkScheme   string
	Response     string
	Schema       string
}

// Load parses the embedded templates. It is safe to call more than once;
// builders call it on first use.
func Load() error {
	loadOnce.Do(func() {
		funcs := template.FuncMap{"join": strings.Join}

		examTemplate, loadErr = template.New("exam.txt").Funcs(funcs).ParseFS(templateFS, "templates/exam.txt")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse exam template: %w", loadErr)
			return
		}

		markTemplates = make(map[PromptVariant]*template.Template, len(variants))
		for _, v := range variants {
			guidance := "templates/guidance_" + string(v) + ".txt"
			tmpl, err := template.New("mark.txt").ParseFS(templateFS, "templates/mark.txt", guidance)
			if err != nil {
				loadErr = fmt.Errorf("parse mark template %s: %w", guidance, err)
				return
			}
			markTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildExamPrompt builds the exam-generation instruction.
func BuildExamPrompt(p ExamParams) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := examTemplate.Execute(&buf, examData{ExamParams: p, Schema: ExamSchema}); err != nil {
		return "", fmt.Errorf("render exam prompt: %w", err)
	}
	return buf.String(), nil
}

// BuildMarkPrompt builds the marking instruction for one student response.
// An empty variant selects PromptStandard.
func BuildMarkPrompt(p MarkParams) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	if p.Variant == "" {
		p.Variant = PromptStandard
	}
	tmpl, ok := markTemplates[p.Variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(p.Variant))
	}

	data := markData{
		StudentName:  p.StudentName,
		StudentID:    p.StudentID,
		ClassID:      p.ClassID,
		QuestionText: p.Question.Text,
		Marks:        p.Question.Marks,
		MarkScheme:   p.Question.MarkScheme,
		Response:     sanitizeAnswer(p.Response),
		Schema:       MarkSchema,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render mark prompt: %w", err)
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
