package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/migration-estimator-api/internal/audit"
	"github.com/noah-isme/migration-estimator-api/internal/models"
)

const auditColumns = `id, seq, actor_id, timestamp, entity, entity_id, action, diff, reason, prev_hash, hash, ip_address, user_agent`

// AuditRepository persists the append-only audit trail. It offers no update or delete.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append seals and stores a standalone entry, used for refused or failed attempts.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditLogEntry) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = appendAuditTx(ctx, tx, entry); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit audit append: %w", err)
	}
	return nil
}

// appendAuditTx links entry to the entity's chain head and inserts it.
// The advisory lock serialises writers of the same chain until the transaction ends.
func appendAuditTx(ctx context.Context, tx *sqlx.Tx, entry *models.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC().Truncate(time.Microsecond)
	}
	if entry.Diff == nil {
		entry.Diff = models.AuditDiff{}
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, entry.Entity+":"+entry.EntityID); err != nil {
		return fmt.Errorf("lock audit chain: %w", err)
	}

	var prev string
	err := tx.GetContext(ctx, &prev, `SELECT hash FROM audit_logs WHERE entity = $1 AND entity_id = $2 ORDER BY seq DESC LIMIT 1`, entry.Entity, entry.EntityID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read audit chain head: %w", err)
	}
	if err := audit.Seal(entry, prev); err != nil {
		return err
	}

	const query = `INSERT INTO audit_logs (id, actor_id, timestamp, entity, entity_id, action, diff, reason, prev_hash, hash, ip_address, user_agent)
	VALUES (:id, :actor_id, :timestamp, :entity, :entity_id, :action, :diff, :reason, :prev_hash, :hash, :ip_address, :user_agent)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListByEntity returns the trail for one record ordered by timestamp then id.
func (r *AuditRepository) ListByEntity(ctx context.Context, entity, entityID string) ([]models.AuditLogEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE entity = $1 AND entity_id = $2 ORDER BY timestamp ASC, id ASC`, auditColumns)
	var entries []models.AuditLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, entity, entityID); err != nil {
		return nil, fmt.Errorf("list audit by entity: %w", err)
	}
	return entries, nil
}

// Chain returns one record's entries in append order for verification.
func (r *AuditRepository) Chain(ctx context.Context, entity, entityID string) ([]models.AuditLogEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE entity = $1 AND entity_id = $2 ORDER BY seq ASC`, auditColumns)
	var entries []models.AuditLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, entity, entityID); err != nil {
		return nil, fmt.Errorf("load audit chain: %w", err)
	}
	return entries, nil
}

// List searches the trail, newest first, returning the total match count.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, int, error) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)
	if filter.Entity != "" {
		args = append(args, filter.Entity)
		conditions = append(conditions, fmt.Sprintf("entity = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf("SELECT %s FROM audit_logs%s ORDER BY timestamp DESC, id DESC LIMIT %d OFFSET %d", auditColumns, where, limit, offset)
	var entries []models.AuditLogEntry
	if err := r.db.SelectContext(ctx, &entries, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_logs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	return entries, total, nil
}

// CountByAction groups entries written since the cutoff by action.
func (r *AuditRepository) CountByAction(ctx context.Context, since time.Time) ([]models.AuditCount, error) {
	return r.countBy(ctx, "action", since)
}

// CountByEntity groups entries written since the cutoff by entity.
func (r *AuditRepository) CountByEntity(ctx context.Context, since time.Time) ([]models.AuditCount, error) {
	return r.countBy(ctx, "entity", since)
}

func (r *AuditRepository) countBy(ctx context.Context, column string, since time.Time) ([]models.AuditCount, error) {
	query := fmt.Sprintf(`SELECT %[1]s AS key, COUNT(*) AS count FROM audit_logs WHERE timestamp >= $1 GROUP BY %[1]s ORDER BY %[1]s`, column)
	var counts []models.AuditCount
	if err := r.db.SelectContext(ctx, &counts, query, since); err != nil {
		return nil, fmt.Errorf("count audit logs by %s: %w", column, err)
	}
	return counts, nil
}
