package dto

import (
	"strconv"
	"time"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
)

// AuditQuery holds the GET /audit query string.
type AuditQuery struct {
	Entity   string `form:"entity"`
	EntityID string `form:"entityId"`
	ActorID  string `form:"actorId"`
	Action   string `form:"action"`
	From     string `form:"from"`
	To       string `form:"to"`
	Limit    string `form:"limit"`
	Offset   string `form:"offset"`
}

// Filter parses the query. Timestamps are RFC3339.
func (q AuditQuery) Filter() (models.AuditFilter, error) {
	filter := models.AuditFilter{
		Entity:   q.Entity,
		EntityID: q.EntityID,
		ActorID:  q.ActorID,
		Action:   models.AuditAction(q.Action),
		Limit:    100,
	}
	var err error
	if filter.From, err = parseTime(q.From, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime(q.To, "to"); err != nil {
		return filter, err
	}
	if q.Limit != "" {
		limit, convErr := strconv.Atoi(q.Limit)
		if convErr != nil || limit <= 0 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer")
		}
		filter.Limit = limit
	}
	if q.Offset != "" {
		offset, convErr := strconv.Atoi(q.Offset)
		if convErr != nil || offset < 0 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "offset must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}

func parseTime(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, field+" must be an RFC3339 timestamp")
	}
	ts = ts.UTC()
	return &ts, nil
}

// AuditPage is a page of audit entries with its total.
type AuditPage struct {
	Entries []models.AuditLogEntry `json:"entries"`
	Total   int                    `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}
