package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/internal/rbac"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
	"github.com/noah-isme/migration-estimator-api/pkg/storage"
)

type submissionAuthorizer interface {
	Authorize(ctx context.Context, id string, actor models.Actor, capability rbac.Action) (*models.Submission, error)
}

type reportRenderer interface {
	Render(report models.EstimateReport, format models.ReportFormat) ([]byte, string, error)
}

type artifactStore interface {
	Save(relPath string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ReportServiceConfig governs download links and artifact retention.
type ReportServiceConfig struct {
	// DownloadPath is prefixed to tokens to form download URLs.
	DownloadPath    string
	CleanupInterval time.Duration
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ReportService renders estimate reports and hands out signed download links.
type ReportService struct {
	submissions submissionAuthorizer
	renderer    reportRenderer
	store       artifactStore
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ReportServiceConfig
	now         func() time.Time
}

// NewReportService constructs the report service.
func NewReportService(submissions submissionAuthorizer, renderer reportRenderer, store artifactStore, signer *storage.SignedURLSigner, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/reports"
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	return &ReportService{
		submissions: submissions,
		renderer:    renderer,
		store:       store,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Generate renders the submission's estimate and returns a signed link to it.
func (s *ReportService) Generate(ctx context.Context, submissionID string, format models.ReportFormat, actor models.Actor) (*models.ReportArtifact, error) {
	if format == "" {
		format = models.ReportFormatPDF
	}
	if format != models.ReportFormatPDF && format != models.ReportFormatCSV {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", format))
	}
	submission, err := s.submissions.Authorize(ctx, submissionID, actor, rbac.ActionGenerateReport)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	report := models.NewEstimateReport(*submission, actor.UserID, now)
	data, _, err := s.renderer.Render(report, format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	relPath := path.Join(submission.ID, fmt.Sprintf("estimate-%d.%s", now.UnixNano(), format))
	if _, err := s.store.Save(relPath, data); err != nil {
		return nil, upstream(err, "failed to store report")
	}
	token, expiresAt, err := s.signer.Generate(submission.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign report link")
	}
	s.logger.Info("estimate report generated",
		zap.String("submission_id", submission.ID),
		zap.String("format", string(format)),
		zap.String("actor_id", actor.UserID),
	)
	return &models.ReportArtifact{
		URL:       strings.TrimRight(s.cfg.DownloadPath, "/") + "/" + token,
		Format:    format,
		ExpiresAt: expiresAt,
	}, nil
}

// Open resolves a signed token to the stored artifact. The token is the credential.
func (s *ReportService) Open(token string) (*ReportDownload, error) {
	submissionID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report link has expired")
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report link is invalid")
	}
	if !strings.HasPrefix(relPath, submissionID+"/") {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report link is invalid")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "report not found")
	}
	ext := path.Ext(relPath)
	contentType := "application/pdf"
	if ext == ".csv" {
		contentType = "text/csv"
	}
	return &ReportDownload{
		File:        file,
		Filename:    "estimate-" + submissionID + ext,
		ContentType: contentType,
		ExpiresAt:   expiresAt,
	}, nil
}

// StartCleanup removes artifacts older than the link TTL until ctx is done.
func (s *ReportService) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Cleanup deletes expired artifacts once.
func (s *ReportService) Cleanup() {
	deleted, err := s.store.CleanupOlderThan(s.signer.TTL())
	if err != nil {
		s.logger.Warn("report cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("expired reports removed", zap.Int("count", len(deleted)))
	}
}
