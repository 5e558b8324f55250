// Package sqlite implements store.Ledger on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/grammar/pkg/grammar/internalerr"
	"github.com/cognicore/grammar/pkg/grammar/store"
)

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type sqliteLedger struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures the ledger.
type Option func(*sqliteLedger)

// WithClock overrides the clock used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *sqliteLedger) {
		if now != nil {
			l.now = now
		}
	}
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// ledger tables when missing.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (store.Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	l := &sqliteLedger{db: db, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Close closes the database connection
func (l *sqliteLedger) Close() error {
	return l.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS grammar_feedback (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	essay_id INTEGER NOT NULL DEFAULT 0,
	reviewer_id INTEGER NOT NULL DEFAULT 0,
	feedback_type TEXT NOT NULL,
	error_type TEXT NOT NULL DEFAULT '',
	wrong_expression TEXT NOT NULL DEFAULT '',
	correct_expression TEXT NOT NULL DEFAULT '',
	comment TEXT NOT NULL DEFAULT '',
	processed INTEGER NOT NULL DEFAULT 0,
	usable_for_training INTEGER NOT NULL DEFAULT 0,
	used_in_model INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_processed ON grammar_feedback(processed, created_at);
CREATE INDEX IF NOT EXISTS idx_feedback_training ON grammar_feedback(usable_for_training, used_in_model);

CREATE TABLE IF NOT EXISTS training_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	feedback_id INTEGER NOT NULL DEFAULT 0,
	process_type TEXT NOT NULL,
	status TEXT NOT NULL,
	version TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	processed_at TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_jobs_type_status ON training_jobs(process_type, status, created_at);

CREATE TABLE IF NOT EXISTS model_versions (
	version TEXT PRIMARY KEY,
	job_id INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// InsertFeedback stores f and returns its id. A zero CreatedAt is stamped
// with the current time.
func (l *sqliteLedger) InsertFeedback(ctx context.Context, f store.Feedback) (int64, error) {
	if f.Type == "" {
		return 0, fmt.Errorf("insert feedback: missing type: %w", internalerr.ErrInvalidInput)
	}
	created := f.CreatedAt
	if created.IsZero() {
		created = l.now()
	}
	res, err := l.db.ExecContext(ctx, `
INSERT INTO grammar_feedback (essay_id, reviewer_id, feedback_type, error_type, wrong_expression,
	correct_expression, comment, processed, usable_for_training, used_in_model, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.EssayID, f.ReviewerID, string(f.Type), f.ErrorType, f.Wrong,
		f.Correct, f.Comment, boolInt(f.Processed), boolInt(f.UsableForTraining), boolInt(f.UsedInModel),
		formatTime(created),
	)
	if err != nil {
		return 0, fmt.Errorf("insert feedback: %w", err)
	}
	return res.LastInsertId()
}

const feedbackColumns = `id, essay_id, reviewer_id, feedback_type, error_type, wrong_expression,
	correct_expression, comment, processed, usable_for_training, used_in_model, created_at`

// UnprocessedFeedback returns up to limit unprocessed records, oldest first.
func (l *sqliteLedger) UnprocessedFeedback(ctx context.Context, limit int) ([]store.Feedback, error) {
	return l.queryFeedback(ctx, `SELECT `+feedbackColumns+` FROM grammar_feedback
WHERE processed = 0 ORDER BY created_at, id LIMIT ?`, limit)
}

// MarkFeedbackProcessed flags a record as handled by the feedback processor.
func (l *sqliteLedger) MarkFeedbackProcessed(ctx context.Context, id int64) error {
	res, err := l.db.ExecContext(ctx, `UPDATE grammar_feedback SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark feedback %d processed: %w", id, err)
	}
	return expectRow(res, "feedback", id)
}

// CountTrainableFeedback counts records usable for training and not yet used.
func (l *sqliteLedger) CountTrainableFeedback(ctx context.Context) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM grammar_feedback
WHERE usable_for_training = 1 AND used_in_model = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trainable feedback: %w", err)
	}
	return n, nil
}

// TrainableFeedback returns up to limit trainable records, oldest first.
func (l *sqliteLedger) TrainableFeedback(ctx context.Context, limit int) ([]store.Feedback, error) {
	return l.queryFeedback(ctx, `SELECT `+feedbackColumns+` FROM grammar_feedback
WHERE usable_for_training = 1 AND used_in_model = 0 ORDER BY created_at, id LIMIT ?`, limit)
}

// MarkFeedbackUsed flags records as consumed by a completed training run.
func (l *sqliteLedger) MarkFeedbackUsed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE grammar_feedback SET used_in_model = 1 WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("mark feedback %d used: %w", id, err)
		}
	}
	return tx.Commit()
}

// CreateJob inserts a ledger row and returns its id.
func (l *sqliteLedger) CreateJob(ctx context.Context, j store.Job) (int64, error) {
	if j.ProcessType == "" || j.Status == "" {
		return 0, fmt.Errorf("create job: process type and status required: %w", internalerr.ErrInvalidInput)
	}
	created := j.CreatedAt
	if created.IsZero() {
		created = l.now()
	}
	processed := ""
	if !j.ProcessedAt.IsZero() {
		processed = formatTime(j.ProcessedAt)
	}
	res, err := l.db.ExecContext(ctx, `
INSERT INTO training_jobs (feedback_id, process_type, status, version, notes, created_at, processed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.FeedbackID, string(j.ProcessType), string(j.Status), j.Version, j.Notes,
		formatTime(created), processed,
	)
	if err != nil {
		return 0, fmt.Errorf("create job: %w", err)
	}
	return res.LastInsertId()
}

// GetJob loads one ledger row.
func (l *sqliteLedger) GetJob(ctx context.Context, id int64) (store.Job, error) {
	var (
		j                  store.Job
		pt, status         string
		created, processed string
	)
	err := l.db.QueryRowContext(ctx, `
SELECT id, feedback_id, process_type, status, version, notes, created_at, processed_at
FROM training_jobs WHERE id = ?`, id).Scan(
		&j.ID, &j.FeedbackID, &pt, &status, &j.Version, &j.Notes, &created, &processed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Job{}, fmt.Errorf("job %d: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return store.Job{}, fmt.Errorf("get job %d: %w", id, err)
	}
	j.ProcessType = store.ProcessType(pt)
	j.Status = store.JobStatus(status)
	j.CreatedAt = parseTime(created)
	j.ProcessedAt = parseTime(processed)
	return j, nil
}

// CountInFlight counts pending or processing jobs of type pt created at or
// after since.
func (l *sqliteLedger) CountInFlight(ctx context.Context, pt store.ProcessType, since time.Time) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM training_jobs
WHERE process_type = ? AND status IN (?, ?) AND created_at >= ?`,
		string(pt), string(store.StatusPending), string(store.StatusProcessing), formatTime(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count in-flight jobs: %w", err)
	}
	return n, nil
}

// UpdateJobStatus moves a job to status and appends note to its notes.
// Terminal states stamp processed_at.
func (l *sqliteLedger) UpdateJobStatus(ctx context.Context, id int64, status store.JobStatus, note string) error {
	processed := ""
	if !status.InFlight() {
		processed = formatTime(l.now())
	}
	res, err := l.db.ExecContext(ctx, `
UPDATE training_jobs SET
	status = ?,
	notes = CASE WHEN ? = '' THEN notes WHEN notes = '' THEN ? ELSE notes || char(10) || ? END,
	processed_at = CASE WHEN ? = '' THEN processed_at ELSE ? END
WHERE id = ?`,
		string(status), note, note, note, processed, processed, id,
	)
	if err != nil {
		return fmt.Errorf("update job %d: %w", id, err)
	}
	return expectRow(res, "job", id)
}

// RecordVersion stores a completed model version.
func (l *sqliteLedger) RecordVersion(ctx context.Context, v store.ModelVersion) error {
	if v.Version == "" {
		return fmt.Errorf("record version: empty version: %w", internalerr.ErrInvalidInput)
	}
	created := v.CreatedAt
	if created.IsZero() {
		created = l.now()
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO model_versions (version, job_id, created_at) VALUES (?, ?, ?)
ON CONFLICT(version) DO UPDATE SET job_id = excluded.job_id, created_at = excluded.created_at`,
		v.Version, v.JobID, formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("record version %s: %w", v.Version, err)
	}
	return nil
}

// Versions lists recorded versions starting with prefix, sorted.
func (l *sqliteLedger) Versions(ctx context.Context, prefix string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT version FROM model_versions`)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if strings.HasPrefix(v, prefix) {
			out = append(out, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (l *sqliteLedger) queryFeedback(ctx context.Context, query string, args ...interface{}) ([]store.Feedback, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var out []store.Feedback
	for rows.Next() {
		var (
			f                              store.Feedback
			ft, created                    string
			processed, usable, usedInModel int64
		)
		if err := rows.Scan(&f.ID, &f.EssayID, &f.ReviewerID, &ft, &f.ErrorType, &f.Wrong,
			&f.Correct, &f.Comment, &processed, &usable, &usedInModel, &created); err != nil {
			return nil, err
		}
		f.Type = store.FeedbackType(ft)
		f.Processed = processed != 0
		f.UsableForTraining = usable != 0
		f.UsedInModel = usedInModel != 0
		f.CreatedAt = parseTime(created)
		out = append(out, f)
	}
	return out, rows.Err()
}

func expectRow(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, internalerr.ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
