package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/migration-estimator-api/internal/audit"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/internal/rbac"
	"github.com/noah-isme/migration-estimator-api/internal/workflow"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
	applog "github.com/noah-isme/migration-estimator-api/pkg/logger"
)

type submissionStore interface {
	Create(ctx context.Context, submission *models.Submission, entry *models.AuditLogEntry) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
	Update(ctx context.Context, submission *models.Submission, expected time.Time, entry *models.AuditLogEntry) error
}

type auditAppender interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
}

type estimateEvaluator interface {
	Evaluate(inputs models.TechnicalInputs) (models.EstimateBreakdown, error)
}

// SubmissionService drives submissions through the sales review workflow.
// Every successful mutation is persisted together with exactly one audit entry.
type SubmissionService struct {
	repo       submissionStore
	audit      auditAppender
	calculator estimateEvaluator
	recorder   *audit.Recorder
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// SubmissionServiceOption configures the service.
type SubmissionServiceOption func(*SubmissionService)

// WithSubmissionClock overrides the clock used for updatedAt and audit timestamps.
func WithSubmissionClock(now func() time.Time) SubmissionServiceOption {
	return func(s *SubmissionService) {
		if now != nil {
			s.now = now
			s.recorder = audit.NewRecorderWithClock(now)
		}
	}
}

// WithSubmissionMetrics attaches the metrics service.
func WithSubmissionMetrics(metrics *MetricsService) SubmissionServiceOption {
	return func(s *SubmissionService) {
		s.metrics = metrics
	}
}

// NewSubmissionService constructs the workflow orchestrator.
func NewSubmissionService(repo submissionStore, auditStore auditAppender, calculator estimateEvaluator, validate *validator.Validate, logger *zap.Logger, opts ...SubmissionServiceOption) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &SubmissionService{
		repo:       repo,
		audit:      auditStore,
		calculator: calculator,
		recorder:   audit.NewRecorder(),
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create validates the form, evaluates the estimate and stores a New submission.
// Refused attempts are recorded against the id the submission would have had.
func (s *SubmissionService) Create(ctx context.Context, info models.CustomerInfo, inputs models.TechnicalInputs, actor models.Actor) (*models.Submission, error) {
	id := uuid.NewString()
	if err := rbac.Evaluate(actor, rbac.ActionCreateSubmission, actor.UserID); err != nil {
		s.recordFailure(ctx, actor, id, rbac.ActionCreateSubmission, err)
		return nil, err
	}
	breakdown, err := s.evaluateForm(info, inputs)
	if err != nil {
		s.recordFailure(ctx, actor, id, rbac.ActionCreateSubmission, err)
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	submission := &models.Submission{
		ID:              id,
		OwnerID:         actor.UserID,
		Status:          workflow.Initial,
		CustomerInfo:    info,
		TechnicalInputs: inputs,
		Estimate:        breakdown,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	entry, err := s.recorder.Mutation(ctx, actor, models.AuditEntitySubmission, submission.ID, models.AuditActionCreate, nil, submission)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build audit entry")
	}
	if err := s.repo.Create(ctx, submission, entry); err != nil {
		return nil, upstream(err, "failed to store submission")
	}
	applog.WithContext(ctx, s.logger).Info("submission created",
		zap.String("submission_id", submission.ID),
		zap.String("owner_id", submission.OwnerID),
		zap.String("total_cost", breakdown.TotalCost.String()),
	)
	return submission, nil
}

func (s *SubmissionService) evaluateForm(info models.CustomerInfo, inputs models.TechnicalInputs) (models.EstimateBreakdown, error) {
	if err := s.validator.Struct(info); err != nil {
		return models.EstimateBreakdown{}, validationError(err, "invalid customer info")
	}
	if !info.RoughBudget.IsPositive() {
		return models.EstimateBreakdown{}, appErrors.Clone(appErrors.ErrValidation, "roughBudget must be greater than zero")
	}
	if err := s.validator.Struct(inputs); err != nil {
		return models.EstimateBreakdown{}, validationError(err, "invalid technical inputs")
	}
	return s.calculator.Evaluate(inputs)
}

// Get returns a submission the actor may view.
func (s *SubmissionService) Get(ctx context.Context, id string, actor models.Actor) (*models.Submission, error) {
	return s.Authorize(ctx, id, actor, rbac.ActionView)
}

// Authorize loads a submission and checks capability against its owner.
// Denials are recorded as accessDenied entries. An own-scoped actor asking
// for someone else's submission gets NotFound, the same as a missing id.
func (s *SubmissionService) Authorize(ctx context.Context, id string, actor models.Actor, capability rbac.Action) (*models.Submission, error) {
	submission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rbac.Evaluate(actor, capability, submission.OwnerID); err != nil {
		s.recordFailure(ctx, actor, id, capability, err)
		if actor.Active && rbac.ScopeFor(actor.Role, capability) == rbac.ScopeOwn {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, err
	}
	return submission, nil
}

// List returns submissions visible to the actor. Own-scoped roles only ever see their own.
func (s *SubmissionService) List(ctx context.Context, actor models.Actor, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	if !rbac.CanAny(actor, rbac.ActionView) {
		s.metrics.RecordAccessDenied(string(rbac.ActionView))
		return nil, 0, rbac.Evaluate(actor, rbac.ActionView, "")
	}
	for _, status := range filter.Status {
		if !workflow.Valid(status) {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}
	if rbac.ScopeFor(actor.Role, rbac.ActionView) == rbac.ScopeOwn {
		filter.OwnerID = actor.UserID
	}
	submissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, upstream(err, "failed to list submissions")
	}
	return submissions, total, nil
}

// TransitionStatus moves a submission along one workflow edge.
// expectedUpdatedAt is the concurrency token the caller last observed and is
// checked before the edge, so a stale caller always sees a conflict.
func (s *SubmissionService) TransitionStatus(ctx context.Context, id string, next models.SubmissionStatus, actor models.Actor, expectedUpdatedAt time.Time) (*models.Submission, error) {
	current, err := s.Authorize(ctx, id, actor, rbac.ActionUpdateStatus)
	if err != nil {
		return nil, err
	}
	if err := s.checkToken(current, expectedUpdatedAt); err != nil {
		s.recordFailure(ctx, actor, id, rbac.ActionUpdateStatus, err)
		return nil, err
	}
	if !workflow.Valid(next) {
		err := appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", next))
		s.recordFailure(ctx, actor, id, rbac.ActionUpdateStatus, err)
		return nil, err
	}
	if !workflow.CanTransition(current.Status, next) {
		err := appErrors.Clone(appErrors.ErrIllegalTransition, fmt.Sprintf("cannot move from %s to %s", current.Status, next))
		s.recordFailure(ctx, actor, id, rbac.ActionUpdateStatus, err)
		return nil, err
	}

	updated := *current
	updated.Status = next
	updated.UpdatedAt = s.nextUpdatedAt(current.UpdatedAt)
	if err := s.commit(ctx, actor, current, &updated, models.AuditActionUpdateStatus, rbac.ActionUpdateStatus); err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(current.Status, next)
	applog.WithContext(ctx, s.logger).Info("submission status changed",
		zap.String("submission_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next)),
		zap.String("actor_id", actor.UserID),
	)
	return &updated, nil
}

// AppendComment appends a sales note. Notes accumulate newline separated.
func (s *SubmissionService) AppendComment(ctx context.Context, id, text string, actor models.Actor) (*models.Submission, error) {
	current, err := s.Authorize(ctx, id, actor, rbac.ActionAddComment)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		err := appErrors.Clone(appErrors.ErrValidation, "comment text is required")
		s.recordFailure(ctx, actor, id, rbac.ActionAddComment, err)
		return nil, err
	}

	comments := text
	if current.SalesComments != nil && *current.SalesComments != "" {
		comments = *current.SalesComments + "\n" + text
	}
	updated := *current
	updated.SalesComments = &comments
	updated.UpdatedAt = s.nextUpdatedAt(current.UpdatedAt)
	if err := s.commit(ctx, actor, current, &updated, models.AuditActionAddComment, rbac.ActionAddComment); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Recompute re-runs the calculator on stored inputs. It reports whether the
// estimate changed; an unchanged estimate writes nothing.
func (s *SubmissionService) Recompute(ctx context.Context, id string, actor models.Actor) (*models.Submission, bool, error) {
	current, err := s.Authorize(ctx, id, actor, rbac.ActionRecomputeEstimate)
	if err != nil {
		return nil, false, err
	}
	breakdown, err := s.calculator.Evaluate(current.TechnicalInputs)
	if err != nil {
		s.recordFailure(ctx, actor, id, rbac.ActionRecomputeEstimate, err)
		return nil, false, err
	}
	if breakdown.Equal(current.Estimate) {
		return current, false, nil
	}

	updated := *current
	updated.Estimate = breakdown
	updated.UpdatedAt = s.nextUpdatedAt(current.UpdatedAt)
	if err := s.commit(ctx, actor, current, &updated, models.AuditActionRecompute, rbac.ActionRecomputeEstimate); err != nil {
		return nil, false, err
	}
	applog.WithContext(ctx, s.logger).Info("submission estimate recomputed",
		zap.String("submission_id", id),
		zap.String("old_total", current.Estimate.TotalCost.String()),
		zap.String("new_total", breakdown.TotalCost.String()),
	)
	return &updated, true, nil
}

func (s *SubmissionService) load(ctx context.Context, id string) (*models.Submission, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission id is required")
	}
	submission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "submission not found", "failed to load submission")
	}
	return submission, nil
}

func (s *SubmissionService) checkToken(current *models.Submission, expected time.Time) error {
	if expected.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "expectedUpdatedAt is required")
	}
	if current.UpdatedAt.Equal(expected) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrConcurrencyConflict, "submission was modified since it was read")
}

// nextUpdatedAt returns a microsecond timestamp strictly after prev.
func (s *SubmissionService) nextUpdatedAt(prev time.Time) time.Time {
	next := s.now().UTC().Truncate(time.Microsecond)
	if floor := prev.Add(time.Microsecond); next.Before(floor) {
		next = floor.UTC()
	}
	return next
}

// commit writes updated and its audit entry in one transaction, guarded by current.UpdatedAt.
func (s *SubmissionService) commit(ctx context.Context, actor models.Actor, current, updated *models.Submission, action models.AuditAction, capability rbac.Action) error {
	entry, err := s.recorder.Mutation(ctx, actor, models.AuditEntitySubmission, current.ID, action, current, updated)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build audit entry")
	}
	if err := s.repo.Update(ctx, updated, current.UpdatedAt, entry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrConcurrencyConflict, "submission was modified by another request")
		} else {
			err = upstream(err, "failed to store submission")
		}
		s.recordFailure(ctx, actor, current.ID, capability, err)
		return err
	}
	return nil
}

// recordFailure appends an accessDenied or mutationFailed entry. Store
// failures here are logged, never returned.
func (s *SubmissionService) recordFailure(ctx context.Context, actor models.Actor, id string, capability rbac.Action, cause error) {
	appErr := appErrors.FromError(cause)
	action := models.AuditActionMutationFailed
	if appErrors.Is(cause, appErrors.ErrForbidden) {
		action = models.AuditActionAccessDenied
		s.metrics.RecordAccessDenied(string(capability))
	} else {
		s.metrics.RecordMutationFailure(appErr.Code)
	}
	reason := fmt.Sprintf("%s: %s: %s", capability, appErr.Code, appErr.Message)
	entry := s.recorder.Failure(ctx, actor, models.AuditEntitySubmission, id, action, reason)
	if err := s.audit.Append(ctx, entry); err != nil {
		s.metrics.RecordAuditWriteFailure()
		s.logger.Warn("failed to record submission failure",
			zap.String("submission_id", id),
			zap.String("action", string(action)),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}
