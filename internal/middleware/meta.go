package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// Meta keys shared by handlers.
const (
	MetaCached         = "cached"
	MetaProcessingTime = "processing_time_ms"
	MetaRequestID      = "request_id"
)

// WithResponseMeta gives every request a metadata bag that handlers merge into
// the envelope. Processing time and request id are filled in after the handler
// unless the handler set them itself.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, gin.H{})
		c.Next()

		meta := metaBag(c)
		if _, ok := meta[MetaProcessingTime]; !ok {
			meta[MetaProcessingTime] = time.Since(start).Milliseconds()
		}
		if id := c.Writer.Header().Get("X-Request-ID"); id != "" {
			if _, ok := meta[MetaRequestID]; !ok {
				meta[MetaRequestID] = id
			}
		}
	}
}

// SetMeta stores a single metadata value for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	metaBag(c)[key] = value
}

// SetCacheHit records whether the estimate came from the cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, MetaCached, hit)
}

// ExtractMeta returns the metadata collected so far, or nil when the request
// was not routed through WithResponseMeta.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	raw, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, _ := raw.(gin.H)
	return meta
}

func metaBag(c *gin.Context) gin.H {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := gin.H{}
	c.Set(responseMetaKey, meta)
	return meta
}
