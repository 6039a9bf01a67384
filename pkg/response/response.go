package response

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response with optional pagination and metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data, Pagination: pagination}
	for _, m := range meta {
		for k, v := range m {
			if envelope.Meta == nil {
				envelope.Meta = make(map[string]interface{}, len(m))
			}
			envelope.Meta[k] = v
		}
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Accepted responds with HTTP 202 for work handed to a background queue.
func Accepted(c *gin.Context, data interface{}) {
	JSON(c, http.StatusAccepted, data, nil)
}

// Window sends an offset-paginated list. The window bounds go in meta so
// clients can page without a second count query.
func Window(c *gin.Context, items interface{}, total, limit, offset int, meta ...map[string]interface{}) {
	window := map[string]interface{}{"total": total, "limit": limit, "offset": offset}
	JSON(c, http.StatusOK, items, nil, append([]map[string]interface{}{window}, meta...)...)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// RateLimited rejects the request with a Retry-After hint rounded up to whole seconds.
func RateLimited(c *gin.Context, retryAfter time.Duration) {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	Error(c, appErrors.ErrRateLimited)
}

// Attachment sends an in-memory file as a download.
func Attachment(c *gin.Context, filename, contentType string, body []byte) {
	disposition(c, filename)
	c.Data(http.StatusOK, contentType, body)
}

// Stream sends a file of known size as a download.
func Stream(c *gin.Context, filename, contentType string, size int64, body io.Reader) {
	disposition(c, filename)
	c.DataFromReader(http.StatusOK, size, contentType, body, nil)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

func disposition(c *gin.Context, filename string) {
	noStore(c)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
