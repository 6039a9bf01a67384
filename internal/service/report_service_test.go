package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
	"github.com/noah-isme/migration-estimator-api/pkg/storage"
)

type reportFixture struct {
	svc        *ReportService
	submission *models.Submission
	store      *memorySubmissionStore
	clock      *time.Time
}

func newReportFixture(t *testing.T) reportFixture {
	t.Helper()
	store := newMemorySubmissionStore()
	submissions := newSubmissionServiceForTest(store)
	submission := createSample(t, submissions)

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	clock := fixedNow
	signer := storage.NewSignedURLSigner("report-secret", time.Hour).WithClock(func() time.Time { return clock })

	svc := NewReportService(submissions, NewEstimateRenderer(), files, signer, nil, ReportServiceConfig{DownloadPath: "/api/v1/reports/download/"})
	svc.now = func() time.Time { return clock }
	return reportFixture{svc: svc, submission: submission, store: store, clock: &clock}
}

func tokenFromURL(t *testing.T, url string) string {
	t.Helper()
	idx := strings.LastIndex(url, "/")
	require.True(t, idx >= 0)
	return url[idx+1:]
}

func TestReportGenerateAndOpenPDF(t *testing.T) {
	fx := newReportFixture(t)

	artifact, err := fx.svc.Generate(context.Background(), fx.submission.ID, "", endUser)
	require.NoError(t, err)
	assert.Equal(t, models.ReportFormatPDF, artifact.Format)
	assert.True(t, strings.HasPrefix(artifact.URL, "/api/v1/reports/download/"))
	assert.Equal(t, fixedNow.Add(time.Hour), artifact.ExpiresAt)

	download, err := fx.svc.Open(tokenFromURL(t, artifact.URL))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "application/pdf", download.ContentType)
	assert.Equal(t, "estimate-"+fx.submission.ID+".pdf", download.Filename)

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "%PDF"))
}

func TestReportGenerateCSV(t *testing.T) {
	fx := newReportFixture(t)

	artifact, err := fx.svc.Generate(context.Background(), fx.submission.ID, models.ReportFormatCSV, salesRep)
	require.NoError(t, err)

	download, err := fx.svc.Open(tokenFromURL(t, artifact.URL))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "total")
}

func TestReportGenerateRejectsUnknownFormatAndStrangers(t *testing.T) {
	fx := newReportFixture(t)

	_, err := fx.svc.Generate(context.Background(), fx.submission.ID, "xlsx", admin)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = fx.svc.Generate(context.Background(), fx.submission.ID, models.ReportFormatPDF, otherEnd)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.NotEmpty(t, fx.store.failures)
	assert.Equal(t, models.AuditActionAccessDenied, fx.store.failures[len(fx.store.failures)-1].Action)

	_, err = fx.svc.Generate(context.Background(), "missing", models.ReportFormatPDF, admin)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestReportOpenRejectsExpiredAndForgedTokens(t *testing.T) {
	fx := newReportFixture(t)

	artifact, err := fx.svc.Generate(context.Background(), fx.submission.ID, models.ReportFormatPDF, admin)
	require.NoError(t, err)
	token := tokenFromURL(t, artifact.URL)

	_, err = fx.svc.Open(token + "x")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	_, err = fx.svc.Open("garbage")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	*fx.clock = fixedNow.Add(2 * time.Hour)
	_, err = fx.svc.Open(token)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Contains(t, err.Error(), "expired")
}
