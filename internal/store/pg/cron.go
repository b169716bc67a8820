package pg

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/nextlevelbuilder/clawgate/internal/cron"
)

// CronStore implements cron.Store backed by Postgres (managed mode), with
// an in-memory cache updated under the same critical section as the store
// write.
type CronStore struct {
	db    *sql.DB
	mu    sync.Mutex
	cache map[string]*cron.Job
}

// NewCronStore wraps the shared pool. The cache fills lazily on first List.
func NewCronStore(db *sql.DB) *CronStore {
	return &CronStore{db: db, cache: make(map[string]*cron.Job)}
}

const cronColumns = `id, user_id, name, description, cron_expression, command,
	channel_id, enabled, created_at, updated_at, last_executed_at,
	next_execution_at, execution_count, failure_count, last_error, timezone`

func scanJob(row interface{ Scan(...interface{}) error }) (*cron.Job, error) {
	var (
		job          cron.Job
		description  sql.NullString
		lastExecuted sql.NullTime
		nextExec     sql.NullTime
		lastError    sql.NullString
		timezone     sql.NullString
	)
	err := row.Scan(
		&job.ID, &job.UserID, &job.Name, &description, &job.CronExpression,
		&job.Command, &job.ChannelID, &job.Enabled, &job.CreatedAt, &job.UpdatedAt,
		&lastExecuted, &nextExec, &job.ExecutionCount, &job.FailureCount,
		&lastError, &timezone,
	)
	if err != nil {
		return nil, err
	}
	job.Description = description.String
	job.LastError = lastError.String
	job.Timezone = timezone.String
	if lastExecuted.Valid {
		t := lastExecuted.Time
		job.LastExecutedAt = &t
	}
	if nextExec.Valid {
		t := nextExec.Time
		job.NextExecutionAt = &t
	}
	return &job, nil
}

// Save upserts the job and updates the cache in the same critical section.
func (s *CronStore) Save(job *cron.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cron_jobs (`+cronColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   description = EXCLUDED.description,
		   cron_expression = EXCLUDED.cron_expression,
		   command = EXCLUDED.command,
		   channel_id = EXCLUDED.channel_id,
		   enabled = EXCLUDED.enabled,
		   updated_at = EXCLUDED.updated_at,
		   last_executed_at = EXCLUDED.last_executed_at,
		   next_execution_at = EXCLUDED.next_execution_at,
		   execution_count = EXCLUDED.execution_count,
		   failure_count = EXCLUDED.failure_count,
		   last_error = EXCLUDED.last_error,
		   timezone = EXCLUDED.timezone`,
		job.ID, job.UserID, job.Name, nullString(job.Description),
		job.CronExpression, job.Command, job.ChannelID, job.Enabled,
		job.CreatedAt, job.UpdatedAt, job.LastExecutedAt, job.NextExecutionAt,
		job.ExecutionCount, job.FailureCount, nullString(job.LastError),
		nullString(job.Timezone),
	)
	if err != nil {
		return err
	}
	s.cache[job.ID] = job.Clone()
	return nil
}

// Get returns the job from cache, falling back to the database.
func (s *CronStore) Get(id string) (*cron.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.cache[id]; ok {
		return job.Clone(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+cronColumns+` FROM cron_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, cron.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	s.cache[id] = job.Clone()
	return job, nil
}

// List returns all jobs and refreshes the cache.
func (s *CronStore) List() ([]*cron.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+cronColumns+` FROM cron_jobs ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*cron.Job
	fresh := make(map[string]*cron.Job)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		fresh[job.ID] = job.Clone()
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.cache = fresh
	return out, nil
}

// Delete removes the job from the database and cache.
func (s *CronStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM cron_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, ok := s.cache[id]; !ok {
			return cron.ErrJobNotFound
		}
	}
	delete(s.cache, id)
	return nil
}
