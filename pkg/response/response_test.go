package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestWindowMergesMeta(t *testing.T) {
	c, w := newContext()
	Window(c, []string{"a"}, 12, 5, 10, map[string]interface{}{"processing_time_ms": 3}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []string               `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"a"}, body.Data)
	assert.EqualValues(t, 12, body.Meta["total"])
	assert.EqualValues(t, 5, body.Meta["limit"])
	assert.EqualValues(t, 10, body.Meta["offset"])
	assert.EqualValues(t, 3, body.Meta["processing_time_ms"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestJSONOmitsEmptyMeta(t *testing.T) {
	c, w := newContext()
	JSON(c, http.StatusOK, "ok", nil, nil)
	assert.NotContains(t, w.Body.String(), "meta")
}

func TestRateLimitedRoundsRetryAfterUp(t *testing.T) {
	c, w := newContext()
	RateLimited(c, 1500*time.Millisecond)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	c, w = newContext()
	RateLimited(c, 0)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestAttachmentSetsDisposition(t *testing.T) {
	c, w := newContext()
	Attachment(c, "audit.csv", "text/csv", []byte("a,b\n"))
	assert.Equal(t, `attachment; filename="audit.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n", w.Body.String())
}
