package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/migration-estimator-api/internal/audit"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/internal/rbac"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
	"github.com/noah-isme/migration-estimator-api/pkg/export"
)

type auditStore interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	ListByEntity(ctx context.Context, entity, entityID string) ([]models.AuditLogEntry, error)
	Chain(ctx context.Context, entity, entityID string) ([]models.AuditLogEntry, error)
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, int, error)
	CountByAction(ctx context.Context, since time.Time) ([]models.AuditCount, error)
	CountByEntity(ctx context.Context, since time.Time) ([]models.AuditCount, error)
}

const (
	defaultStatsDays = 7
	maxStatsDays     = 365
	maxExportRows    = 500
)

var auditExportHeaders = []string{"id", "timestamp", "actor_id", "entity", "entity_id", "action", "diff", "reason", "ip_address", "user_agent", "hash"}

// AuditService exposes the audit trail to administrators.
type AuditService struct {
	repo     auditStore
	recorder *audit.Recorder
	csv      *export.CSVExporter
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuditService constructs the service.
func NewAuditService(repo auditStore, metrics *MetricsService, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		repo:     repo,
		recorder: audit.NewRecorder(),
		csv:      export.NewCSVExporter(),
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Trail returns the entries for one entity ordered by timestamp then id.
func (s *AuditService) Trail(ctx context.Context, entity, entityID string, actor models.Actor) ([]models.AuditLogEntry, error) {
	if err := validateAuditTarget(entity, entityID); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, entity, entityID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListByEntity(ctx, entity, entityID)
	if err != nil {
		return nil, upstream(err, "failed to load audit trail")
	}
	if entries == nil {
		entries = []models.AuditLogEntry{}
	}
	return entries, nil
}

// Search filters the whole trail, newest first.
func (s *AuditService) Search(ctx context.Context, filter models.AuditFilter, actor models.Actor) ([]models.AuditLogEntry, int, error) {
	if err := s.authorize(ctx, actor, "", ""); err != nil {
		return nil, 0, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "end must not be before start")
	}
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, upstream(err, "failed to search audit logs")
	}
	if entries == nil {
		entries = []models.AuditLogEntry{}
	}
	return entries, total, nil
}

// Stats counts entries per action and per entity over the trailing days.
func (s *AuditService) Stats(ctx context.Context, days int, actor models.Actor) (*models.AuditStats, error) {
	if err := s.authorize(ctx, actor, "", ""); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = defaultStatsDays
	}
	if days > maxStatsDays {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("days must be at most %d", maxStatsDays))
	}
	since := s.now().UTC().AddDate(0, 0, -days)

	byAction, err := s.repo.CountByAction(ctx, since)
	if err != nil {
		return nil, upstream(err, "failed to count audit actions")
	}
	byEntity, err := s.repo.CountByEntity(ctx, since)
	if err != nil {
		return nil, upstream(err, "failed to count audit entities")
	}

	stats := &models.AuditStats{
		Since:    since,
		Days:     days,
		ByAction: make(map[string]int, len(byAction)),
		ByEntity: make(map[string]int, len(byEntity)),
	}
	for _, c := range byAction {
		stats.ByAction[c.Key] = c.Count
		stats.Total += c.Count
	}
	for _, c := range byEntity {
		stats.ByEntity[c.Key] = c.Count
	}
	return stats, nil
}

// Verify recomputes the hash chain of one entity.
func (s *AuditService) Verify(ctx context.Context, entity, entityID string, actor models.Actor) (*models.ChainVerification, error) {
	if err := validateAuditTarget(entity, entityID); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, entity, entityID); err != nil {
		return nil, err
	}
	entries, err := s.repo.Chain(ctx, entity, entityID)
	if err != nil {
		return nil, upstream(err, "failed to load audit chain")
	}
	valid, broken := audit.Verify(entries)
	if !valid {
		s.logger.Error("audit chain verification failed",
			zap.String("entity", entity),
			zap.String("entity_id", entityID),
			zap.String("broken_at", broken),
		)
	}
	return &models.ChainVerification{
		Entity:   entity,
		EntityID: entityID,
		Entries:  len(entries),
		Valid:    valid,
		BrokenAt: broken,
	}, nil
}

// ExportCSV renders matching entries as CSV.
func (s *AuditService) ExportCSV(ctx context.Context, filter models.AuditFilter, actor models.Actor) ([]byte, error) {
	if filter.Limit <= 0 || filter.Limit > maxExportRows {
		filter.Limit = maxExportRows
	}
	entries, _, err := s.Search(ctx, filter, actor)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{Headers: auditExportHeaders}
	for _, entry := range entries {
		diff, err := json.Marshal(entry.Diff)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode audit diff")
		}
		reason := ""
		if entry.Reason != nil {
			reason = *entry.Reason
		}
		data.AddRow(map[string]string{
			"id":         entry.ID,
			"timestamp":  entry.Timestamp.UTC().Format(time.RFC3339Nano),
			"actor_id":   entry.ActorID,
			"entity":     entry.Entity,
			"entity_id":  entry.EntityID,
			"action":     string(entry.Action),
			"diff":       string(diff),
			"reason":     reason,
			"ip_address": entry.IPAddress,
			"user_agent": entry.UserAgent,
			"hash":       entry.Hash,
		})
	}
	out, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit export")
	}
	return out, nil
}

// authorize checks viewAuditLog; a denied read of a specific trail is itself recorded.
func (s *AuditService) authorize(ctx context.Context, actor models.Actor, entity, entityID string) error {
	err := rbac.Evaluate(actor, rbac.ActionViewAuditLog, "")
	if err == nil {
		return nil
	}
	s.metrics.RecordAccessDenied(string(rbac.ActionViewAuditLog))
	if entity != "" && entityID != "" {
		appErr := appErrors.FromError(err)
		entry := s.recorder.Failure(ctx, actor, entity, entityID, models.AuditActionAccessDenied,
			fmt.Sprintf("%s: %s: %s", rbac.ActionViewAuditLog, appErr.Code, appErr.Message))
		if appendErr := s.repo.Append(ctx, entry); appendErr != nil {
			s.metrics.RecordAuditWriteFailure()
			s.logger.Warn("failed to record audit access denial", zap.String("entity_id", entityID), zap.Error(appendErr))
		}
	}
	return err
}

func validateAuditTarget(entity, entityID string) error {
	switch entity {
	case models.AuditEntitySubmission, models.AuditEntityUser:
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown audit entity %q", entity))
	}
	if entityID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "entity id is required")
	}
	return nil
}
