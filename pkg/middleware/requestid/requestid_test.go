package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareKeepsOrAssignsID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware())
	var seen, fromCtx string
	router.GET("/", func(c *gin.Context) {
		seen = Value(c)
		fromCtx = FromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", fromCtx)
	assert.Equal(t, "abc-123", rec.Header().Get(headerKey))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, strings.Repeat("x", maxLength+1))
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Len(t, seen, 36)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "id with spaces")
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, fromCtx)
}

func TestFromContextOutsideRequest(t *testing.T) {
	assert.Empty(t, FromContext(context.Background()))
}
