package persistence

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// SQLiteJobStore is a JobStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteJobStore struct {
	db *sql.DB
}

// Ensure SQLiteJobStore implements JobStore.
var _ JobStore = (*SQLiteJobStore)(nil)

// NewSQLiteJobStore initializes the required schema in the given database
// and returns a new SQLiteJobStore.
func NewSQLiteJobStore(db *sql.DB) (*SQLiteJobStore, error) {
	s := &SQLiteJobStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteJobStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT,
			feedback BLOB,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteJobStore) SaveJob(job *Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO jobs (id, project_id, type, status, output, feedback, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.ProjectID,
		string(job.Type),
		string(job.Status),
		job.Output,
		job.Feedback,
		job.CreatedAt.UnixNano(),
		job.UpdatedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteJobStore) UpdateJob(job *Job) error {
	job.UpdatedAt = time.Now()

	res, err := s.db.Exec(`
		UPDATE jobs
		SET project_id = ?, type = ?, status = ?, output = ?, feedback = ?, updated_at = ?
		WHERE id = ?`,
		job.ProjectID,
		string(job.Type),
		string(job.Status),
		job.Output,
		job.Feedback,
		job.UpdatedAt.UnixNano(),
		job.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	return nil
}

func (s *SQLiteJobStore) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, type, status, output, feedback, created_at, updated_at
		FROM jobs
		WHERE id = ?`,
		id,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	return job, nil
}

func (s *SQLiteJobStore) ListJobs(filter JobFilter) ([]*Job, error) {
	query := `
		SELECT id, project_id, type, status, output, feedback, created_at, updated_at
		FROM jobs`
	var args []any
	var clauses []string

	if filter.ProjectID != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var job Job
	var typeStr, statusStr string
	var output sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(&job.ID, &job.ProjectID, &typeStr, &statusStr, &output, &job.Feedback, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	job.Type = JobType(typeStr)
	job.Status = JobStatus(statusStr)
	if output.Valid {
		job.Output = output.String
	}
	job.CreatedAt = time.Unix(0, createdAt)
	job.UpdatedAt = time.Unix(0, updatedAt)

	return &job, nil
}
