// Package store persists exam sets, marked student responses and exam
// results. Two backends implement Store: MongoDB for production and SQLite
// for single-node deployments and tests.
package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/pavelanni/markwise/internal/apperr"
	"github.com/pavelanni/markwise/internal/model"
)

// Store is the document store gateway. Every write is an insert; nothing is
// updated in place. Insert methods assign ID and CreatedAt on the document
// they are given. List methods return an empty slice, not an error, when
// nothing matches.
type Store interface {
	InsertExamSet(ctx context.Context, e *model.ExamSet) error
	GetExamSet(ctx context.Context, id model.DocID) (*model.ExamSet, error)
	// FindExamSet returns the most recent set owned by owner.
	FindExamSet(ctx context.Context, owner model.Owner) (*model.ExamSet, error)
	// ListExamIDs returns the ids of a class's sets, oldest first.
	ListExamIDs(ctx context.Context, classID string) ([]model.DocID, error)
	// FirstExamID returns the id of the oldest stored set.
	FirstExamID(ctx context.Context) (model.DocID, error)

	InsertResponse(ctx context.Context, r *model.StudentResponse) error
	// ListResponses returns a student's marked responses in insertion order.
	ListResponses(ctx context.Context, studentID string) ([]model.StudentResponse, error)

	InsertResult(ctx context.Context, r *model.ExamResult) error
	GetResult(ctx context.Context, id model.DocID) (*model.ExamResult, error)
	// ListResults returns a student's results, newest first.
	ListResults(ctx context.Context, studentID string) ([]model.ExamResult, error)
	// ListAllResults returns every stored result in insertion order.
	ListAllResults(ctx context.Context) ([]model.ExamResult, error)

	Ping(ctx context.Context) error
	Close() error
}

const (
	examSetsName  = "examquestions"
	responsesName = "studentresponse"
	resultsName   = "examresults"
)

func newID() model.DocID {
	return model.DocID(primitive.NewObjectID().Hex())
}

// parseID validates the ObjectID hex form shared by both backends.
func parseID(id model.DocID) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("InvalidID", map[string]any{"ID": string(id)})
	}
	return oid, nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func examSetNotFound(id model.DocID) error {
	return apperr.NotFound("ExamSetNotFound", map[string]any{"ID": string(id)})
}

func ownerNotFound(owner model.Owner) error {
	if owner.ClassID != "" {
		return apperr.NotFound("ExamSetNotFoundForClass", map[string]any{"ClassID": owner.ClassID})
	}
	return apperr.NotFound("ExamSetNotFoundForStudent", map[string]any{"StudentID": owner.StudentID})
}

func resultNotFound(id model.DocID) error {
	return apperr.NotFound("ExamResultNotFound", map[string]any{"ID": string(id)})
}
