package model

import (
	"strings"
	"time"
)

// DocID is the display form of a stored document identifier. Store
// implementations convert their native identifiers to and from DocID; nothing
// above the store sees the native type.
type DocID string

func (id DocID) String() string {
	return string(id)
}

// Role is the requester context that decides which owner id is required.
type Role string

const (
	// RoleTeacher scopes requests to a class.
	RoleTeacher Role = "teacher"
	// RoleParent scopes requests to a single student.
	RoleParent Role = "parent"
)

// ParseRole normalizes a role string. ok is false for unrecognized roles.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleTeacher, RoleParent:
		return r, true
	default:
		return r, false
	}
}

// Owner identifies who an exam set belongs to. Exactly one field is set.
type Owner struct {
	ClassID   string
	StudentID string
}

// OwnerFor returns the owner for a role, dropping the id the role does not use.
func OwnerFor(role Role, classID, studentID string) Owner {
	if role == RoleTeacher {
		return Owner{ClassID: classID}
	}
	return Owner{StudentID: studentID}
}

// Question is a single generated exam question.
type Question struct {
	Number             string   `json:"number" bson:"number"`
	Text               string   `json:"text" bson:"text" validate:"required"`
	Marks              int      `json:"marks" bson:"marks" validate:"gte=0"`
	LearningObjectives []string `json:"learning_objectives" bson:"learning_objectives"`
	MarkScheme         string   `json:"mark_scheme" bson:"mark_scheme"`
}

// ExamSet is the ordered question set produced by one generation request.
type ExamSet struct {
	ID                 DocID      `json:"_id" bson:"-"`
	Questions          []Question `json:"questions" bson:"questions"`
	ClassID            string     `json:"class_id,omitempty" bson:"class_id,omitempty"`
	StudentID          string     `json:"student_id,omitempty" bson:"student_id,omitempty"`
	ExamBoard          string     `json:"exam_board" bson:"exam_board"`
	Country            string     `json:"country" bson:"country"`
	Subject            string     `json:"subject" bson:"subject"`
	LearningObjectives []string   `json:"learning_objectives" bson:"learning_objectives"`
	ExamLength         int        `json:"exam_length,omitempty" bson:"exam_length,omitempty"`
	TotalMarks         int        `json:"total_marks,omitempty" bson:"total_marks,omitempty"`
	CreatedAt          time.Time  `json:"created_at" bson:"created_at"`
}

// StudentResponse is one marked answer. It is inserted once and never updated.
type StudentResponse struct {
	ID              DocID     `json:"_id" bson:"-"`
	StudentName     string    `json:"student_name" bson:"student_name"`
	StudentID       string    `json:"student_id" bson:"student_id"`
	ClassID         string    `json:"class_id" bson:"class_id"`
	ExamID          DocID     `json:"exam_id,omitempty" bson:"exam_id,omitempty"`
	Question        Question  `json:"question" bson:"question"`
	StudentResponse string    `json:"student_response" bson:"student_response"`
	MarksAwarded    float64   `json:"marks_awarded" bson:"marks_awarded"`
	Feedback        string    `json:"feedback" bson:"feedback"`
	Justification   string    `json:"justification" bson:"justification"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
}

// QuestionResult is the marking outcome for one question in an ExamResult.
type QuestionResult struct {
	MarksAwarded  float64 `json:"marks_awarded" bson:"marks_awarded"`
	Feedback      string  `json:"feedback" bson:"feedback"`
	Justification string  `json:"justification" bson:"justification"`
	ResponseID    DocID   `json:"response_id,omitempty" bson:"response_id,omitempty"`
}

// ObjectiveScore is the performance on one learning objective.
type ObjectiveScore struct {
	RawScore       float64 `json:"raw_score" bson:"raw_score"`
	TotalAvailable int     `json:"total_available" bson:"total_available"`
	Percentage     float64 `json:"percentage" bson:"percentage"`
}

// ExamResult is an aggregation over a student's marked responses.
type ExamResult struct {
	ID                      DocID                     `json:"_id" bson:"-"`
	StudentName             string                    `json:"student_name" bson:"student_name"`
	StudentID               string                    `json:"student_id" bson:"student_id"`
	ClassID                 string                    `json:"class_id" bson:"class_id"`
	ExamID                  DocID                     `json:"exam_id,omitempty" bson:"exam_id,omitempty"`
	TotalMarks              float64                   `json:"total_marks" bson:"total_marks"`
	MaxMarks                int                       `json:"max_marks" bson:"max_marks"`
	ResultsPerQuestion      map[string]QuestionResult `json:"results_per_question" bson:"results_per_question"`
	PerformancePerObjective map[string]ObjectiveScore `json:"performance_per_objective" bson:"performance_per_objective"`
	CreatedAt               time.Time                 `json:"created_at" bson:"created_at"`
}
