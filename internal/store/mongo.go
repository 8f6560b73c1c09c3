package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pavelanni/markwise/internal/apperr"
	"github.com/pavelanni/markwise/internal/model"
)

// Documents carry a native ObjectID; the model types keep the DocID out of
// BSON and get it back from these wrappers.
type examSetDoc struct {
	ID            primitive.ObjectID `bson:"_id"`
	model.ExamSet `bson:",inline"`
}

type responseDoc struct {
	ID                    primitive.ObjectID `bson:"_id"`
	model.StudentResponse `bson:",inline"`
}

type resultDoc struct {
	ID               primitive.ObjectID `bson:"_id"`
	model.ExamResult `bson:",inline"`
}

// Mongo stores documents in the examquestions, studentresponse and
// examresults collections of one database.
type Mongo struct {
	client    *mongo.Client
	exams     *mongo.Collection
	responses *mongo.Collection
	results   *mongo.Collection
}

var _ Store = (*Mongo)(nil)

// NewMongo connects to uri, verifies the primary is reachable and ensures
// the owner indexes exist.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	m := &Mongo{
		client:    client,
		exams:     db.Collection(examSetsName),
		responses: db.Collection(responsesName),
		results:   db.Collection(resultsName),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll *mongo.Collection
		key  string
	}{
		{m.exams, "class_id"},
		{m.exams, "student_id"},
		{m.responses, "student_id"},
		{m.results, "student_id"},
	}
	for _, ix := range indexes {
		_, err := ix.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: ix.key, Value: 1}}})
		if err != nil {
			return fmt.Errorf("%s.%s: %w", ix.coll.Name(), ix.key, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *Mongo) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return mongoErr("ping", err)
	}
	return nil
}

// InsertExamSet stores a generated question set.
func (m *Mongo) InsertExamSet(ctx context.Context, e *model.ExamSet) error {
	oid := primitive.NewObjectID()
	e.CreatedAt = now()
	if _, err := m.exams.InsertOne(ctx, examSetDoc{ID: oid, ExamSet: *e}); err != nil {
		return mongoErr("insert exam set", err)
	}
	e.ID = model.DocID(oid.Hex())
	return nil
}

// GetExamSet returns an exam set by ID.
func (m *Mongo) GetExamSet(ctx context.Context, id model.DocID) (*model.ExamSet, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var doc examSetDoc
	err = m.exams.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, examSetNotFound(id)
	}
	if err != nil {
		return nil, mongoErr("get exam set", err)
	}
	return doc.toExamSet(), nil
}

// FindExamSet returns the latest exam set for the owner.
func (m *Mongo) FindExamSet(ctx context.Context, owner model.Owner) (*model.ExamSet, error) {
	filter := bson.M{"student_id": owner.StudentID}
	if owner.ClassID != "" {
		filter = bson.M{"class_id": owner.ClassID}
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})

	var doc examSetDoc
	err := m.exams.FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ownerNotFound(owner)
	}
	if err != nil {
		return nil, mongoErr("find exam set", err)
	}
	return doc.toExamSet(), nil
}

// ListExamIDs returns the IDs of a class's exam sets, oldest first.
func (m *Mongo) ListExamIDs(ctx context.Context, classID string) ([]model.DocID, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := m.exams.Find(ctx, bson.M{"class_id": classID}, opts)
	if err != nil {
		return nil, mongoErr("list exam ids", err)
	}
	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mongoErr("list exam ids", err)
	}
	ids := make([]model.DocID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, model.DocID(d.ID.Hex()))
	}
	return ids, nil
}

// FirstExamID returns the ID of the oldest exam set.
func (m *Mongo) FirstExamID(ctx context.Context) (model.DocID, error) {
	opts := options.FindOne().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	var doc struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	err := m.exams.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", apperr.NotFound("NoExamSets", nil)
	}
	if err != nil {
		return "", mongoErr("first exam id", err)
	}
	return model.DocID(doc.ID.Hex()), nil
}

// InsertResponse stores a marked student response.
func (m *Mongo) InsertResponse(ctx context.Context, r *model.StudentResponse) error {
	oid := primitive.NewObjectID()
	r.CreatedAt = now()
	if _, err := m.responses.InsertOne(ctx, responseDoc{ID: oid, StudentResponse: *r}); err != nil {
		return mongoErr("insert response", err)
	}
	r.ID = model.DocID(oid.Hex())
	return nil
}

// ListResponses returns a student's responses in insertion order.
func (m *Mongo) ListResponses(ctx context.Context, studentID string) ([]model.StudentResponse, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := m.responses.Find(ctx, bson.M{"student_id": studentID}, opts)
	if err != nil {
		return nil, mongoErr("list responses", err)
	}
	var docs []responseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mongoErr("list responses", err)
	}
	out := make([]model.StudentResponse, 0, len(docs))
	for _, d := range docs {
		r := d.StudentResponse
		r.ID = model.DocID(d.ID.Hex())
		out = append(out, r)
	}
	return out, nil
}

// InsertResult stores an aggregated exam result.
func (m *Mongo) InsertResult(ctx context.Context, r *model.ExamResult) error {
	oid := primitive.NewObjectID()
	r.CreatedAt = now()
	if _, err := m.results.InsertOne(ctx, resultDoc{ID: oid, ExamResult: *r}); err != nil {
		return mongoErr("insert result", err)
	}
	r.ID = model.DocID(oid.Hex())
	return nil
}

// GetResult returns an exam result by ID.
func (m *Mongo) GetResult(ctx context.Context, id model.DocID) (*model.ExamResult, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var doc resultDoc
	err = m.results.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, resultNotFound(id)
	}
	if err != nil {
		return nil, mongoErr("get result", err)
	}
	r := doc.ExamResult
	r.ID = model.DocID(doc.ID.Hex())
	return &r, nil
}

// ListResults returns a student's results, newest first.
func (m *Mongo) ListResults(ctx context.Context, studentID string) ([]model.ExamResult, error) {
	return m.findResults(ctx, "list results", bson.M{"student_id": studentID}, -1)
}

// ListAllResults returns every result in insertion order.
func (m *Mongo) ListAllResults(ctx context.Context) ([]model.ExamResult, error) {
	return m.findResults(ctx, "list all results", bson.M{}, 1)
}

func (m *Mongo) findResults(ctx context.Context, op string, filter bson.M, order int) ([]model.ExamResult, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: order}})
	cur, err := m.results.Find(ctx, filter, opts)
	if err != nil {
		return nil, mongoErr(op, err)
	}
	var docs []resultDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mongoErr(op, err)
	}
	out := make([]model.ExamResult, 0, len(docs))
	for _, d := range docs {
		r := d.ExamResult
		r.ID = model.DocID(d.ID.Hex())
		out = append(out, r)
	}
	return out, nil
}

func (d examSetDoc) toExamSet() *model.ExamSet {
	e := d.ExamSet
	e.ID = model.DocID(d.ID.Hex())
	return &e
}

// mongoErr wraps err as a store error. Network errors and timeouts are
// reported as transient.
func mongoErr(op string, err error) error {
	transient := mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded)
	return apperr.Store(op, transient, err)
}
