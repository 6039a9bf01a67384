package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/internal/rbac"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
	"github.com/noah-isme/migration-estimator-api/pkg/jobs"
)

// JobTypeRecompute identifies batch recompute jobs on the queue.
const JobTypeRecompute = "recompute_estimate"

type submissionIDLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

type submissionRecomputer interface {
	Recompute(ctx context.Context, id string, actor models.Actor) (*models.Submission, bool, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// RecomputePayload is carried by each queued job.
type RecomputePayload struct {
	BatchID      string
	SubmissionID string
	RequestedBy  string
}

// RecomputeService fans a batch recompute out over the job queue.
// Retries belong to the queue; the workflow core never retries.
type RecomputeService struct {
	lister     submissionIDLister
	submission submissionRecomputer
	queue      jobDispatcher
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewRecomputeService constructs the service. The queue is attached with SetQueue
// because the queue's handler is this service's Handle.
func NewRecomputeService(lister submissionIDLister, submission submissionRecomputer, metrics *MetricsService, logger *zap.Logger) *RecomputeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecomputeService{lister: lister, submission: submission, metrics: metrics, logger: logger, now: time.Now}
}

// SetQueue attaches the dispatcher jobs are enqueued on.
func (s *RecomputeService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// Enqueue schedules a recompute of every submission.
func (s *RecomputeService) Enqueue(ctx context.Context, actor models.Actor) (*models.RecomputeBatch, error) {
	if err := rbac.Evaluate(actor, rbac.ActionRecomputeEstimate, ""); err != nil {
		s.metrics.RecordAccessDenied(string(rbac.ActionRecomputeEstimate))
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUpstreamUnavailable, "recompute queue is not running")
	}
	ids, err := s.lister.ListIDs(ctx)
	if err != nil {
		return nil, upstream(err, "failed to list submissions")
	}

	batch := &models.RecomputeBatch{
		ID:          uuid.NewString(),
		RequestedBy: actor.UserID,
		RequestedAt: s.now().UTC(),
	}
	for _, id := range ids {
		job := jobs.Job{
			ID:      fmt.Sprintf("%s:%s", batch.ID, id),
			Type:    JobTypeRecompute,
			Payload: RecomputePayload{BatchID: batch.ID, SubmissionID: id, RequestedBy: actor.UserID},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("recompute batch truncated", zap.String("batch_id", batch.ID), zap.Int("queued", batch.Queued), zap.Error(err))
			return batch, upstream(err, "failed to enqueue recompute jobs")
		}
		batch.Queued++
	}
	s.logger.Info("recompute batch queued", zap.String("batch_id", batch.ID), zap.Int("queued", batch.Queued), zap.String("actor_id", actor.UserID))
	return batch, nil
}

// Handle processes one queued job. Store outages and stale writes are retried;
// everything else is marked permanent.
func (s *RecomputeService) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(RecomputePayload)
	if !ok {
		s.logger.Error("unexpected recompute payload", zap.String("job_id", job.ID))
		s.metrics.RecordRecomputeJob("invalid")
		return jobs.Permanent(fmt.Errorf("unexpected payload %T", job.Payload))
	}
	_, changed, err := s.submission.Recompute(ctx, payload.SubmissionID, models.SystemActor(payload.RequestedBy))
	if err != nil {
		if appErrors.Is(err, appErrors.ErrUpstreamUnavailable) || appErrors.Is(err, appErrors.ErrConcurrencyConflict) {
			s.metrics.RecordRecomputeJob("retry")
			return err
		}
		s.metrics.RecordRecomputeJob("failed")
		s.logger.Warn("recompute job failed",
			zap.String("batch_id", payload.BatchID),
			zap.String("submission_id", payload.SubmissionID),
			zap.Error(err),
		)
		return jobs.Permanent(err)
	}
	if changed {
		s.metrics.RecordRecomputeJob("updated")
	} else {
		s.metrics.RecordRecomputeJob("unchanged")
	}
	return nil
}

// GiveUp records a job that exhausted its retries.
func (s *RecomputeService) GiveUp(job jobs.Job, err error) {
	s.metrics.RecordRecomputeJob("abandoned")
	s.logger.Error("recompute job abandoned", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(err))
}
