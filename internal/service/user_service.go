package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/migration-estimator-api/internal/audit"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/internal/rbac"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User, entry *models.AuditLogEntry) error
	Update(ctx context.Context, user *models.User, entry *models.AuditLogEntry) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required,max=255"`
	Role     models.UserRole `json:"role" validate:"required,oneof=end_user sales admin"`
	Active   *bool           `json:"active"`
}

// UpdateUserRequest payload for updating users.
type UpdateUserRequest struct {
	FullName string          `json:"full_name" validate:"required,max=255"`
	Role     models.UserRole `json:"role" validate:"required,oneof=end_user sales admin"`
	Active   *bool           `json:"active"`
}

// UserService handles user management and resolves request actors.
type UserService struct {
	repo      userRepository
	recorder  *audit.Recorder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, recorder: audit.NewRecorder(), validator: validate, logger: logger, now: time.Now}
}

// ResolveActor turns a verified identity claim into an actor. A stored user's
// role and active flag override the claim.
func (s *UserService) ResolveActor(ctx context.Context, claims *models.JWTClaims) (models.Actor, error) {
	if claims == nil || claims.UserID == "" {
		return models.Actor{}, appErrors.ErrUnauthorized
	}
	actor := models.Actor{UserID: claims.UserID, Role: claims.Role, Active: true}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if !claims.Role.Valid() {
				return models.Actor{}, appErrors.Clone(appErrors.ErrUnauthorized, "unknown role in token")
			}
			return actor, nil
		}
		return models.Actor{}, upstream(err, "failed to resolve user")
	}
	actor.Role = user.Role
	actor.Active = user.Active
	return actor, nil
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter, actor models.Actor) ([]models.User, *models.Pagination, error) {
	if err := rbac.Evaluate(actor, rbac.ActionManageUsers, ""); err != nil {
		return nil, nil, err
	}
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown role filter")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, upstream(err, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID. Users may always read their own record.
func (s *UserService) Get(ctx context.Context, id string, actor models.Actor) (*models.User, error) {
	if id != actor.UserID || !actor.Active {
		if err := rbac.Evaluate(actor, rbac.ActionManageUsers, ""); err != nil {
			return nil, err
		}
	}
	return s.find(ctx, id)
}

// Me returns the caller's own record.
func (s *UserService) Me(ctx context.Context, actor models.Actor) (*models.User, error) {
	if actor.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	return s.find(ctx, actor.UserID)
}

// ByEmail returns the user registered under email.
func (s *UserService) ByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	return user, nil
}

// Create adds a new user.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actor models.Actor) (*models.User, error) {
	if err := rbac.Evaluate(actor, rbac.ActionManageUsers, ""); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid create user payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, upstream(err, "failed to check email uniqueness")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	user := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		FullName:  strings.TrimSpace(req.FullName),
		Role:      req.Role,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry, err := s.recorder.Mutation(ctx, actor, models.AuditEntityUser, user.ID, models.AuditActionUserCreate, nil, user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build audit entry")
	}
	if err := s.repo.Create(ctx, user, entry); err != nil {
		return nil, upstream(err, "failed to create user")
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)), zap.String("actor_id", actor.UserID))
	return user, nil
}

// Update modifies the user attributes.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actor models.Actor) (*models.User, error) {
	if err := rbac.Evaluate(actor, rbac.ActionManageUsers, ""); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid update payload")
	}
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *current
	updated.FullName = strings.TrimSpace(req.FullName)
	updated.Role = req.Role
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if id == actor.UserID && (updated.Role != models.RoleAdmin || !updated.Active) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "administrators cannot demote or deactivate themselves")
	}
	return s.save(ctx, actor, current, &updated, models.AuditActionUserUpdate)
}

// Deactivate marks a user inactive. Users are never deleted.
func (s *UserService) Deactivate(ctx context.Context, id string, actor models.Actor) (*models.User, error) {
	if err := rbac.Evaluate(actor, rbac.ActionManageUsers, ""); err != nil {
		return nil, err
	}
	if id == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "administrators cannot deactivate themselves")
	}
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Active {
		return current, nil
	}
	updated := *current
	updated.Active = false
	return s.save(ctx, actor, current, &updated, models.AuditActionUserDeactivate)
}

func (s *UserService) save(ctx context.Context, actor models.Actor, current, updated *models.User, action models.AuditAction) (*models.User, error) {
	updated.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
	if !updated.UpdatedAt.After(current.UpdatedAt) {
		updated.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}
	entry, err := s.recorder.Mutation(ctx, actor, models.AuditEntityUser, current.ID, action, current, updated)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build audit entry")
	}
	if err := s.repo.Update(ctx, updated, entry); err != nil {
		return nil, notFoundOr(err, "user not found", "failed to update user")
	}
	s.logger.Info("user updated", zap.String("user_id", updated.ID), zap.String("action", string(action)), zap.String("actor_id", actor.UserID))
	return updated, nil
}

func (s *UserService) find(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	return user, nil
}
