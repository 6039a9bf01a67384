package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/migration-estimator-api/internal/models"
)

type requestMetaKey struct{}

// RequestMeta carries transport details recorded alongside an entry.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WithRequestMeta attaches request metadata to ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom extracts request metadata, defaulting to a system origin.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	if meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return meta
	}
	return RequestMeta{IPAddress: "system", UserAgent: "migration-estimator"}
}

// Recorder builds unsealed audit entries. Sealing happens in the store,
// inside the transaction that reads the previous hash.
type Recorder struct {
	now func() time.Time
}

// NewRecorder constructs a recorder using the wall clock.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// NewRecorderWithClock constructs a recorder with a fixed clock source.
func NewRecorderWithClock(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Mutation records a successful change from before to after.
func (r *Recorder) Mutation(ctx context.Context, actor models.Actor, entity, entityID string, action models.AuditAction, before, after interface{}) (*models.AuditLogEntry, error) {
	diff, err := DiffValues(before, after)
	if err != nil {
		return nil, err
	}
	return r.entry(ctx, actor, entity, entityID, action, diff, nil), nil
}

// Failure records a refused or failed attempt. No state changed, so the diff is empty.
func (r *Recorder) Failure(ctx context.Context, actor models.Actor, entity, entityID string, action models.AuditAction, reason string) *models.AuditLogEntry {
	return r.entry(ctx, actor, entity, entityID, action, models.AuditDiff{}, &reason)
}

func (r *Recorder) entry(ctx context.Context, actor models.Actor, entity, entityID string, action models.AuditAction, diff models.AuditDiff, reason *string) *models.AuditLogEntry {
	meta := RequestMetaFrom(ctx)
	return &models.AuditLogEntry{
		ID:        uuid.NewString(),
		ActorID:   actor.UserID,
		Timestamp: r.now().UTC().Truncate(time.Microsecond),
		Entity:    entity,
		EntityID:  entityID,
		Action:    action,
		Diff:      diff,
		Reason:    reason,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}
}
