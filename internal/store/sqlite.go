package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pavelanni/markwise/internal/apperr"
	"github.com/pavelanni/markwise/internal/model"
)

// SQLite keeps each document as a JSON blob next to the columns it is
// queried by. Insertion order is the table's rowid.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database at dbPath. ":memory:"
// gives a private in-memory database.
func NewSQLite(dbPath string) (*SQLite, error) {
	dsn := dbPath
	if dbPath != ":memory:" && !strings.Contains(dbPath, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps an in-memory database shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return sqliteErr("ping", err)
	}
	return nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exam_sets (
		id TEXT PRIMARY KEY,
		class_id TEXT NOT NULL DEFAULT '',
		student_id TEXT NOT NULL DEFAULT '',
		doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exam_sets_class ON exam_sets(class_id);
	CREATE INDEX IF NOT EXISTS idx_exam_sets_student ON exam_sets(student_id);

	CREATE TABLE IF NOT EXISTS student_responses (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_student_responses_student ON student_responses(student_id);

	CREATE TABLE IF NOT EXISTS exam_results (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exam_results_student ON exam_results(student_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertExamSet stores a generated question set.
func (s *SQLite) InsertExamSet(ctx context.Context, e *model.ExamSet) error {
	e.ID = newID()
	e.CreatedAt = now()
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode exam set: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exam_sets (id, class_id, student_id, doc) VALUES (?, ?, ?, ?)`,
		e.ID, e.ClassID, e.StudentID, doc,
	)
	if err != nil {
		return sqliteErr("insert exam set", err)
	}
	return nil
}

// GetExamSet returns an exam set by ID.
func (s *SQLite) GetExamSet(ctx context.Context, id model.DocID) (*model.ExamSet, error) {
	if _, err := parseID(id); err != nil {
		return nil, err
	}
	var e model.ExamSet
	err := s.getDoc(ctx, &e, `SELECT doc FROM exam_sets WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, examSetNotFound(id)
	}
	if err != nil {
		return nil, sqliteErr("get exam set", err)
	}
	return &e, nil
}

// FindExamSet returns the latest exam set for the owner.
func (s *SQLite) FindExamSet(ctx context.Context, owner model.Owner) (*model.ExamSet, error) {
	query := `SELECT doc FROM exam_sets WHERE student_id = ? ORDER BY rowid DESC LIMIT 1`
	arg := owner.StudentID
	if owner.ClassID != "" {
		query = `SELECT doc FROM exam_sets WHERE class_id = ? ORDER BY rowid DESC LIMIT 1`
		arg = owner.ClassID
	}
	var e model.ExamSet
	err := s.getDoc(ctx, &e, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ownerNotFound(owner)
	}
	if err != nil {
		return nil, sqliteErr("find exam set", err)
	}
	return &e, nil
}

// ListExamIDs returns the IDs of a class's exam sets, oldest first.
func (s *SQLite) ListExamIDs(ctx context.Context, classID string) ([]model.DocID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM exam_sets WHERE class_id = ? ORDER BY rowid`, classID)
	if err != nil {
		return nil, sqliteErr("list exam ids", err)
	}
	defer rows.Close()
	ids := []model.DocID{}
	for rows.Next() {
		var id model.DocID
		if err := rows.Scan(&id); err != nil {
			return nil, sqliteErr("list exam ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr("list exam ids", err)
	}
	return ids, nil
}

// FirstExamID returns the ID of the oldest exam set.
func (s *SQLite) FirstExamID(ctx context.Context) (model.DocID, error) {
	var id model.DocID
	err := s.db.QueryRowContext(ctx, `SELECT id FROM exam_sets ORDER BY rowid LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("NoExamSets", nil)
	}
	if err != nil {
		return "", sqliteErr("first exam id", err)
	}
	return id, nil
}

// InsertResponse stores a marked student response.
func (s *SQLite) InsertResponse(ctx context.Context, r *model.StudentResponse) error {
	r.ID = newID()
	r.CreatedAt = now()
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO student_responses (id, student_id, doc) VALUES (?, ?, ?)`,
		r.ID, r.StudentID, doc,
	)
	if err != nil {
		return sqliteErr("insert response", err)
	}
	return nil
}

// ListResponses returns a student's responses in insertion order.
func (s *SQLite) ListResponses(ctx context.Context, studentID string) ([]model.StudentResponse, error) {
	out, err := queryDocs[model.StudentResponse](ctx, s.db,
		`SELECT doc FROM student_responses WHERE student_id = ? ORDER BY rowid`, studentID)
	if err != nil {
		return nil, sqliteErr("list responses", err)
	}
	return out, nil
}

// InsertResult stores an aggregated exam result.
func (s *SQLite) InsertResult(ctx context.Context, r *model.ExamResult) error {
	r.ID = newID()
	r.CreatedAt = now()
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exam_results (id, student_id, doc) VALUES (?, ?, ?)`,
		r.ID, r.StudentID, doc,
	)
	if err != nil {
		return sqliteErr("insert result", err)
	}
	return nil
}

// GetResult returns an exam result by ID.
func (s *SQLite) GetResult(ctx context.Context, id model.DocID) (*model.ExamResult, error) {
	if _, err := parseID(id); err != nil {
		return nil, err
	}
	var r model.ExamResult
	err := s.getDoc(ctx, &r, `SELECT doc FROM exam_results WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resultNotFound(id)
	}
	if err != nil {
		return nil, sqliteErr("get result", err)
	}
	return &r, nil
}

// ListResults returns a student's results, newest first.
func (s *SQLite) ListResults(ctx context.Context, studentID string) ([]model.ExamResult, error) {
	out, err := queryDocs[model.ExamResult](ctx, s.db,
		`SELECT doc FROM exam_results WHERE student_id = ? ORDER BY rowid DESC`, studentID)
	if err != nil {
		return nil, sqliteErr("list results", err)
	}
	return out, nil
}

// ListAllResults returns every result in insertion order.
func (s *SQLite) ListAllResults(ctx context.Context) ([]model.ExamResult, error) {
	out, err := queryDocs[model.ExamResult](ctx, s.db, `SELECT doc FROM exam_results ORDER BY rowid`)
	if err != nil {
		return nil, sqliteErr("list all results", err)
	}
	return out, nil
}

func (s *SQLite) getDoc(ctx context.Context, dst any, query string, args ...any) error {
	var doc []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&doc); err != nil {
		return err
	}
	return json.Unmarshal(doc, dst)
}

func queryDocs[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// sqliteErr wraps err as a store error. Busy and locked databases are
// reported as transient.
func sqliteErr(op string, err error) error {
	transient := false
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			transient = true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		transient = true
	}
	return apperr.Store(op, transient, err)
}
