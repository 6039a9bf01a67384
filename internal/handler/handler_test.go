package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/migration-estimator-api/internal/dto"
	"github.com/noah-isme/migration-estimator-api/internal/estimator"
	"github.com/noah-isme/migration-estimator-api/internal/middleware"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/internal/service"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withActor(c *gin.Context, userID string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID, Role: role, Active: true})
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type estimateServiceMock struct {
	inputs models.TechnicalInputs
	cached bool
	err    error
}

func (m *estimateServiceMock) Evaluate(ctx context.Context, inputs models.TechnicalInputs) (models.EstimateBreakdown, bool, error) {
	m.inputs = inputs
	if m.err != nil {
		return models.EstimateBreakdown{}, false, m.err
	}
	breakdown, err := estimator.Calculate(estimator.DefaultRules(), inputs)
	return breakdown, m.cached, err
}

func (m *estimateServiceMock) Catalog() []estimator.AddonDefinition {
	return estimator.DefaultRules().Catalog()
}

func (m *estimateServiceMock) RulesVersion() string { return estimator.DefaultRulesVersion }

func (m *estimateServiceMock) QuoteAddons(services []models.AddonService, weeks int64) (models.AddonQuote, error) {
	return models.AddonQuote{Weeks: weeks, Total: decimal.NewFromInt(weeks)}, nil
}

func TestEstimateHandlerEvaluate(t *testing.T) {
	svc := &estimateServiceMock{}
	h := NewEstimateHandler(svc)

	c, w := newGinContext(http.MethodPost, "/estimates", []byte(`{"messageVolume": 7000000}`))
	h.Evaluate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7_000_000), svc.inputs.MessageVolume)

	var body dto.EstimateResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	assert.True(t, body.Estimate.TotalCost.Equal(decimal.NewFromInt(48000)))
	assert.Equal(t, int64(10), body.Estimate.TotalWeeks)
}

func TestEstimateHandlerRejectsFractionalVolume(t *testing.T) {
	h := NewEstimateHandler(&estimateServiceMock{})

	c, w := newGinContext(http.MethodPost, "/estimates", []byte(`{"messageVolume": 1.5}`))
	h.Evaluate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, w).Error.Code)

	c, w = newGinContext(http.MethodPost, "/estimates", []byte(`{"messageVolume": "lots"}`))
	h.Evaluate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Error.Code)
}

func TestEstimateHandlerAddons(t *testing.T) {
	h := NewEstimateHandler(&estimateServiceMock{})

	c, w := newGinContext(http.MethodGet, "/estimates/addons", nil)
	h.Addons(c)
	require.Equal(t, http.StatusOK, w.Code)
	var catalog dto.AddonCatalogResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &catalog))
	assert.Len(t, catalog.Addons, 3)

	c, w = newGinContext(http.MethodPost, "/estimates/addons/quote", []byte(`{"addonServices":["hypercare_support"],"weeks":0}`))
	h.QuoteAddons(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type submissionServiceMock struct {
	submission *models.Submission
	err        error
	expected   time.Time
	next       models.SubmissionStatus
	filter     models.SubmissionFilter
	actor      models.Actor
}

func (m *submissionServiceMock) Create(ctx context.Context, info models.CustomerInfo, inputs models.TechnicalInputs, actor models.Actor) (*models.Submission, error) {
	m.actor = actor
	return m.submission, m.err
}

func (m *submissionServiceMock) Get(ctx context.Context, id string, actor models.Actor) (*models.Submission, error) {
	return m.submission, m.err
}

func (m *submissionServiceMock) List(ctx context.Context, actor models.Actor, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	m.filter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	return []models.Submission{*m.submission}, 1, nil
}

func (m *submissionServiceMock) TransitionStatus(ctx context.Context, id string, next models.SubmissionStatus, actor models.Actor, expectedUpdatedAt time.Time) (*models.Submission, error) {
	m.next = next
	m.expected = expectedUpdatedAt
	return m.submission, m.err
}

func (m *submissionServiceMock) AppendComment(ctx context.Context, id, text string, actor models.Actor) (*models.Submission, error) {
	return m.submission, m.err
}

func (m *submissionServiceMock) Recompute(ctx context.Context, id string, actor models.Actor) (*models.Submission, bool, error) {
	return m.submission, false, m.err
}

type auditTrailMock struct{ entries []models.AuditLogEntry }

func (m *auditTrailMock) Trail(ctx context.Context, entity, entityID string, actor models.Actor) ([]models.AuditLogEntry, error) {
	return m.entries, nil
}

func TestSubmissionHandlerCreateRequiresActor(t *testing.T) {
	svc := &submissionServiceMock{submission: &models.Submission{ID: "sub-1", Status: models.StatusNew}}
	h := NewSubmissionHandler(svc, &auditTrailMock{})

	payload := []byte(`{"customerInfo":{"companyName":"Acme"},"technicalInputs":{"messageVolume":100,"licenseTier":"E3"}}`)
	c, w := newGinContext(http.MethodPost, "/submissions", payload)
	h.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/submissions", payload)
	withActor(c, "u-1", models.RoleEndUser)
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u-1", svc.actor.UserID)
}

func TestSubmissionHandlerTransitionPassesToken(t *testing.T) {
	svc := &submissionServiceMock{submission: &models.Submission{ID: "sub-1", Status: models.StatusContacted}}
	h := NewSubmissionHandler(svc, &auditTrailMock{})

	c, w := newGinContext(http.MethodPatch, "/submissions/sub-1/status", []byte(`{"status":"Contacted","expectedUpdatedAt":"2024-04-02T09:30:00.000001Z"}`))
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	withActor(c, "s-1", models.RoleSales)
	h.TransitionStatus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusContacted, svc.next)
	assert.Equal(t, time.Date(2024, 4, 2, 9, 30, 0, 1000, time.UTC), svc.expected.UTC())

	svc.err = appErrors.Clone(appErrors.ErrConcurrencyConflict, "stale")
	c, w = newGinContext(http.MethodPatch, "/submissions/sub-1/status", []byte(`{"status":"Contacted","expectedUpdatedAt":"2024-04-02T09:29:00Z"}`))
	withActor(c, "s-1", models.RoleSales)
	h.TransitionStatus(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONCURRENCY_CONFLICT", decode(t, w).Error.Code)
}

func TestSubmissionHandlerTransitionRequiresToken(t *testing.T) {
	svc := &submissionServiceMock{submission: &models.Submission{ID: "sub-1", Status: models.StatusContacted}}
	h := NewSubmissionHandler(svc, &auditTrailMock{})

	c, w := newGinContext(http.MethodPatch, "/submissions/sub-1/status", []byte(`{"status":"Contacted"}`))
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	withActor(c, "s-1", models.RoleSales)
	h.TransitionStatus(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Error.Code)
	assert.Empty(t, svc.next)
}

func TestSubmissionHandlerListParsesQuery(t *testing.T) {
	svc := &submissionServiceMock{submission: &models.Submission{ID: "sub-1"}}
	h := NewSubmissionHandler(svc, &auditTrailMock{})

	c, w := newGinContext(http.MethodGet, "/submissions?status=New,Contacted&limit=10&offset=5", nil)
	withActor(c, "s-1", models.RoleSales)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.SubmissionStatus{models.StatusNew, models.StatusContacted}, svc.filter.Status)
	assert.Equal(t, 10, svc.filter.Limit)
	assert.Equal(t, 5, svc.filter.Offset)
	assert.EqualValues(t, 1, decode(t, w).Meta["total"])

	c, w = newGinContext(http.MethodGet, "/submissions?limit=-1", nil)
	withActor(c, "s-1", models.RoleSales)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type reportServiceMock struct {
	artifact *models.ReportArtifact
	download *service.ReportDownload
	err      error
	format   models.ReportFormat
}

func (m *reportServiceMock) Generate(ctx context.Context, submissionID string, format models.ReportFormat, actor models.Actor) (*models.ReportArtifact, error) {
	m.format = format
	return m.artifact, m.err
}

func (m *reportServiceMock) Open(token string) (*service.ReportDownload, error) {
	return m.download, m.err
}

func TestReportHandlerGenerate(t *testing.T) {
	svc := &reportServiceMock{artifact: &models.ReportArtifact{URL: "/api/v1/reports/tok", Format: models.ReportFormatCSV, ExpiresAt: time.Now().Add(time.Hour)}}
	h := NewReportHandler(svc, nil)

	c, w := newGinContext(http.MethodPost, "/submissions/sub-1/report", []byte(`{"format":"csv"}`))
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	withActor(c, "u-1", models.RoleEndUser)
	h.Generate(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.ReportFormatCSV, svc.format)

	c, w = newGinContext(http.MethodPost, "/submissions/sub-1/report", nil)
	withActor(c, "u-1", models.RoleEndUser)
	h.Generate(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.ReportFormat(""), svc.format)
}

func TestReportHandlerDownload(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "estimate*.csv")
	require.NoError(t, err)
	_, _ = file.WriteString("line,amount\n")
	_, _ = file.Seek(0, 0)

	svc := &reportServiceMock{download: &service.ReportDownload{File: file, Filename: "estimate-sub-1.csv", ContentType: "text/csv"}}
	h := NewReportHandler(svc, nil)

	c, w := newGinContext(http.MethodGet, "/reports/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "estimate-sub-1.csv")
	assert.Equal(t, "line,amount\n", w.Body.String())

	svc.err = appErrors.Clone(appErrors.ErrNotFound, "report link has expired")
	c, w = newGinContext(http.MethodGet, "/reports/tok", nil)
	h.Download(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type auditServiceMock struct {
	filter models.AuditFilter
	days   int
}

func (m *auditServiceMock) Trail(ctx context.Context, entity, entityID string, actor models.Actor) ([]models.AuditLogEntry, error) {
	return nil, appErrors.ErrForbidden
}

func (m *auditServiceMock) Search(ctx context.Context, filter models.AuditFilter, actor models.Actor) ([]models.AuditLogEntry, int, error) {
	m.filter = filter
	return []models.AuditLogEntry{{ID: "e-1"}}, 1, nil
}

func (m *auditServiceMock) Stats(ctx context.Context, days int, actor models.Actor) (*models.AuditStats, error) {
	m.days = days
	return &models.AuditStats{Days: days}, nil
}

func (m *auditServiceMock) Verify(ctx context.Context, entity, entityID string, actor models.Actor) (*models.ChainVerification, error) {
	return &models.ChainVerification{Entity: entity, EntityID: entityID, Valid: true}, nil
}

func (m *auditServiceMock) ExportCSV(ctx context.Context, filter models.AuditFilter, actor models.Actor) ([]byte, error) {
	return []byte("id,timestamp\n"), nil
}

func TestAuditHandlerSearchAndExport(t *testing.T) {
	svc := &auditServiceMock{}
	h := NewAuditHandler(svc)
	h.now = func() time.Time { return time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC) }

	c, w := newGinContext(http.MethodGet, "/audit?entity=submission&from=2024-04-01T00:00:00Z&limit=5", nil)
	withActor(c, "a-1", models.RoleAdmin)
	h.Search(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "submission", svc.filter.Entity)
	require.NotNil(t, svc.filter.From)
	assert.Equal(t, 5, svc.filter.Limit)

	c, w = newGinContext(http.MethodGet, "/audit?from=yesterday", nil)
	withActor(c, "a-1", models.RoleAdmin)
	h.Search(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/audit/export", nil)
	withActor(c, "a-1", models.RoleAdmin)
	h.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "audit-20240402-093000.csv")

	c, w = newGinContext(http.MethodGet, "/audit/submission/sub-1", nil)
	withActor(c, "s-1", models.RoleSales)
	h.Trail(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newGinContext(http.MethodGet, "/audit/stats?days=abc", nil)
	withActor(c, "a-1", models.RoleAdmin)
	h.Stats(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return appErrors.ErrUpstreamUnavailable },
	})

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)

	h = NewMetricsHandler(nil, nil)
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

type tokenIssuerMock struct{ user models.User }

func (m *tokenIssuerMock) IssueToken(user models.User, ttl time.Duration) (string, error) {
	m.user = user
	return "signed", nil
}

type userLookupMock map[string]*models.User

func (m userLookupMock) ByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m[email]; ok {
		return user, nil
	}
	return nil, appErrors.ErrNotFound
}

func TestAuthHandlerDevToken(t *testing.T) {
	issuer := &tokenIssuerMock{}
	users := userLookupMock{
		"sales@example.com":   {ID: "s-1", Email: "sales@example.com", Role: models.RoleSales, Active: true},
		"retired@example.com": {ID: "s-2", Email: "retired@example.com", Role: models.RoleSales},
	}
	h := NewAuthHandler(issuer, users, time.Hour)

	c, w := newGinContext(http.MethodPost, "/auth/dev-token", []byte(`{"email":"sales@example.com"}`))
	h.DevToken(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s-1", issuer.user.ID)

	c, w = newGinContext(http.MethodPost, "/auth/dev-token", []byte(`{"email":"retired@example.com"}`))
	h.DevToken(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/dev-token", []byte(`{"email":"nobody@example.com"}`))
	h.DevToken(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
