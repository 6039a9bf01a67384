package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
)

type mockUserRepo struct {
	users          map[string]*models.User
	listUsers      []models.User
	listCount      int
	listErr        error
	findByIDErr    error
	findByEmailErr error
	entries        []*models.AuditLogEntry
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	if m.listUsers != nil {
		return m.listUsers, m.listCount, nil
	}
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User, entry *models.AuditLogEntry) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User, entry *models.AuditLogEntry) error {
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *user
	m.users[user.ID] = &copy
	m.entries = append(m.entries, entry)
	return nil
}

func seededUsers() *mockUserRepo {
	return &mockUserRepo{users: map[string]*models.User{
		"a-1": {ID: "a-1", Email: "admin@example.com", FullName: "Admin", Role: models.RoleAdmin, Active: true},
		"s-1": {ID: "s-1", Email: "sales@example.com", FullName: "Sales", Role: models.RoleSales, Active: true},
	}}
}

func TestUserServiceCreateAudited(t *testing.T) {
	repo := seededUsers()
	svc := NewUserService(repo, nil, nil)

	user, err := svc.Create(context.Background(), CreateUserRequest{Email: "New@Example.com", FullName: "New User", Role: models.RoleEndUser}, admin)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.True(t, user.Active)
	require.Len(t, repo.entries, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.entries[0].Action)
	assert.Equal(t, models.AuditEntityUser, repo.entries[0].Entity)

	_, err = svc.Create(context.Background(), CreateUserRequest{Email: "sales@example.com", FullName: "Dup", Role: models.RoleSales}, admin)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = svc.Create(context.Background(), CreateUserRequest{Email: "x@example.com", FullName: "X", Role: "superuser"}, admin)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), CreateUserRequest{Email: "y@example.com", FullName: "Y", Role: models.RoleSales}, salesRep)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestUserServiceUpdateRoleDiff(t *testing.T) {
	repo := seededUsers()
	svc := NewUserService(repo, nil, nil)

	updated, err := svc.Update(context.Background(), "s-1", UpdateUserRequest{FullName: "Sales", Role: models.RoleAdmin}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.Role)
	require.Len(t, repo.entries, 1)
	assert.ElementsMatch(t, []string{"role", "updated_at"}, repo.entries[0].Diff.Fields())

	_, err = svc.Update(context.Background(), "a-1", UpdateUserRequest{FullName: "Admin", Role: models.RoleSales}, admin)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = svc.Update(context.Background(), "missing", UpdateUserRequest{FullName: "M", Role: models.RoleSales}, admin)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestUserServiceDeactivate(t *testing.T) {
	repo := seededUsers()
	svc := NewUserService(repo, nil, nil)

	user, err := svc.Deactivate(context.Background(), "s-1", admin)
	require.NoError(t, err)
	assert.False(t, user.Active)
	require.Len(t, repo.entries, 1)
	assert.Equal(t, models.AuditActionUserDeactivate, repo.entries[0].Action)

	_, err = svc.Deactivate(context.Background(), "s-1", admin)
	require.NoError(t, err)
	assert.Len(t, repo.entries, 1)

	_, err = svc.Deactivate(context.Background(), "a-1", admin)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestUserServiceListAndGet(t *testing.T) {
	repo := seededUsers()
	svc := NewUserService(repo, nil, nil)

	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 0, PageSize: 500}, admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)

	_, _, err = svc.List(context.Background(), models.UserFilter{}, salesRep)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	self, err := svc.Get(context.Background(), "s-1", salesRep)
	require.NoError(t, err)
	assert.Equal(t, "sales@example.com", self.Email)
	_, err = svc.Get(context.Background(), "a-1", salesRep)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	me, err := svc.Me(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, "a-1", me.ID)
}

func TestResolveActorPrefersStoredUser(t *testing.T) {
	repo := seededUsers()
	repo.users["s-1"].Active = false
	svc := NewUserService(repo, nil, nil)

	actor, err := svc.ResolveActor(context.Background(), &models.JWTClaims{UserID: "s-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, models.RoleSales, actor.Role)
	assert.False(t, actor.Active)

	actor, err = svc.ResolveActor(context.Background(), &models.JWTClaims{UserID: "ext-9", Role: models.RoleEndUser})
	require.NoError(t, err)
	assert.Equal(t, models.Actor{UserID: "ext-9", Role: models.RoleEndUser, Active: true}, actor)

	_, err = svc.ResolveActor(context.Background(), &models.JWTClaims{UserID: "ext-9", Role: "root"})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	repo.findByIDErr = errors.New("db down")
	_, err = svc.ResolveActor(context.Background(), &models.JWTClaims{UserID: "s-1", Role: models.RoleSales})
	assert.True(t, appErrors.Is(err, appErrors.ErrUpstreamUnavailable))
}
