package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/medview/image-enhancer/internal/model"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrDuplicateJobID = errors.New("job id already exists")
	ErrJobProcessing  = errors.New("job is already processing")
)

// Repository provides CRUD operations for enhancement jobs in the database.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores a new job record. It fails with ErrDuplicateJobID if a
// record with the same id already exists.
func (r *Repository) Insert(ctx context.Context, j model.ImageJob) error {
	query := `
		INSERT INTO image_jobs (id, original_name, mime_type, file_size, status, enhancement_type, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := r.db.ExecContext(
		ctx, query, j.ID, j.OriginalName, j.MimeType, j.FileSize, j.Status, j.EnhancementType, j.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert: failed to save job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert: failed to get number of rows affected: %w", err)
	}

	if rows == 0 {
		return ErrDuplicateJobID
	}

	return nil
}

// Get retrieves a job record by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (model.ImageJob, error) {
	query := `
		SELECT original_name, mime_type, file_size, status, enhancement_type,
		       uploaded_at, enhanced_at, processing_time_seconds
		FROM image_jobs
		WHERE id = $1
	`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ImageJob{}, ErrJobNotFound
		}

		return model.ImageJob{}, fmt.Errorf("get: failed to get job: %w", err)
	}

	j.ID = id

	return j, nil
}

// Update replaces the mutable fields of an existing job record. The whole
// record wins; there are no partial-field patch semantics.
func (r *Repository) Update(ctx context.Context, j model.ImageJob) error {
	query := `
		UPDATE image_jobs
		SET status = $1, enhancement_type = $2, enhanced_at = $3, processing_time_seconds = $4
		WHERE id = $5
	`

	res, err := r.db.ExecContext(ctx, query, j.Status, j.EnhancementType, j.EnhancedAt, j.ProcessingTime, j.ID)
	if err != nil {
		return fmt.Errorf("update: failed to update job: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		return ErrJobNotFound
	}

	return nil
}

// SetProcessing atomically moves a job into the Processing state and returns
// the updated record. The guard on the current status makes concurrent
// enhance calls on the same id lose the race with ErrJobProcessing instead
// of starting a second transform. The timing fields are cleared in the same
// statement: a Processing job never carries enhanced_at or a duration, even
// when restarted from a terminal state. The CAS and its fallback read always
// go to the master; a replica would be read-only or stale.
func (r *Repository) SetProcessing(ctx context.Context, id uuid.UUID) (model.ImageJob, error) {
	query := `
		UPDATE image_jobs
		SET status = $1, enhanced_at = NULL, processing_time_seconds = NULL
		WHERE id = $2 AND status <> $1
		RETURNING original_name, mime_type, file_size, status, enhancement_type,
		          uploaded_at, enhanced_at, processing_time_seconds
	`

	j, err := scanJob(r.db.Master.QueryRowContext(ctx, query, model.StatusProcessing, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the job does not exist or it is mid-enhancement.
			var status model.Status
			getErr := r.db.Master.QueryRowContext(ctx, `SELECT status FROM image_jobs WHERE id = $1`, id).Scan(&status)
			if errors.Is(getErr, sql.ErrNoRows) {
				return model.ImageJob{}, ErrJobNotFound
			}
			if getErr != nil {
				return model.ImageJob{}, fmt.Errorf("set processing: failed to check job status: %w", getErr)
			}

			return model.ImageJob{}, ErrJobProcessing
		}

		return model.ImageJob{}, fmt.Errorf("set processing: failed to update job: %w", err)
	}

	j.ID = id

	return j, nil
}

// List returns all job records ordered by upload time, newest first.
func (r *Repository) List(ctx context.Context) ([]model.ImageJob, error) {
	query := `
		SELECT id, original_name, mime_type, file_size, status, enhancement_type,
		       uploaded_at, enhanced_at, processing_time_seconds
		FROM image_jobs
		ORDER BY uploaded_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list: failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.ImageJob
	for rows.Next() {
		var (
			j        model.ImageJob
			enhanced sql.NullTime
			procTime sql.NullFloat64
		)

		err := rows.Scan(
			&j.ID, &j.OriginalName, &j.MimeType, &j.FileSize, &j.Status,
			&j.EnhancementType, &j.UploadedAt, &enhanced, &procTime,
		)
		if err != nil {
			return nil, fmt.Errorf("list: failed to scan job: %w", err)
		}

		if enhanced.Valid {
			t := enhanced.Time
			j.EnhancedAt = &t
		}
		if procTime.Valid {
			v := procTime.Float64
			j.ProcessingTime = &v
		}

		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: rows error: %w", err)
	}

	return jobs, nil
}

// scanJob reads the job columns shared by Get and SetProcessing.
func scanJob(row *sql.Row) (model.ImageJob, error) {
	var (
		j        model.ImageJob
		enhanced sql.NullTime
		procTime sql.NullFloat64
	)

	err := row.Scan(
		&j.OriginalName, &j.MimeType, &j.FileSize, &j.Status,
		&j.EnhancementType, &j.UploadedAt, &enhanced, &procTime,
	)
	if err != nil {
		return model.ImageJob{}, err
	}

	if enhanced.Valid {
		t := enhanced.Time
		j.EnhancedAt = &t
	}
	if procTime.Valid {
		v := procTime.Float64
		j.ProcessingTime = &v
	}

	return j, nil
}
