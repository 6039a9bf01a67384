package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/migration-estimator-api/internal/models"
)

const submissionColumns = `id, owner_id, status, customer_info, technical_inputs, estimate, sales_comments, created_at, updated_at`

// SubmissionRepository persists submissions together with their audit entries.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a submission and its creation entry atomically.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission, entry *models.AuditLogEntry) (err error) {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	if submission.UpdatedAt.IsZero() {
		submission.UpdatedAt = submission.CreatedAt
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create submission: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if entry != nil {
		entry.EntityID = submission.ID
		if err = appendAuditTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	const query = `INSERT INTO submissions (id, owner_id, status, customer_info, technical_inputs, estimate, sales_comments, created_at, updated_at)
	VALUES (:id, :owner_id, :status, :customer_info, :technical_inputs, :estimate, :sales_comments, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create submission: %w", err)
	}
	return nil
}

// GetByID fetches a submission. Missing rows return sql.ErrNoRows unwrapped.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE id = $1`, submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &submission, nil
}

// List returns submissions matching the filter, newest first, and the total count.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, len(filter.Status)+1)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf("SELECT %s FROM submissions%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", submissionColumns, where, limit, offset)
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM submissions"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return submissions, total, nil
}

// ListIDs returns every submission id, oldest first.
func (r *SubmissionRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM submissions ORDER BY created_at ASC`); err != nil {
		return nil, fmt.Errorf("list submission ids: %w", err)
	}
	return ids, nil
}

// Update writes the mutable columns when updated_at still equals expected.
// The audit entry is inserted first in the same transaction; a lost race
// rolls both back and returns sql.ErrNoRows.
func (r *SubmissionRepository) Update(ctx context.Context, submission *models.Submission, expected time.Time, entry *models.AuditLogEntry) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update submission: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if entry != nil {
		if err = appendAuditTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	const query = `UPDATE submissions SET status = :status, estimate = :estimate, sales_comments = :sales_comments, updated_at = :updated_at
	WHERE id = :id AND updated_at = :expected_updated_at`
	result, err := tx.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                  submission.ID,
		"status":              submission.Status,
		"estimate":            submission.Estimate,
		"sales_comments":      submission.SalesComments,
		"updated_at":          submission.UpdatedAt,
		"expected_updated_at": expected,
	})
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check submission update rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update submission: %w", err)
	}
	return nil
}
