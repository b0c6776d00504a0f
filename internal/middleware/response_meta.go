package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-principal-report/pkg/middleware/requestid"
)

const (
	responseMetaKey = "response_meta"

	MetaCacheHit       = "cache_hit"
	MetaProcessingTime = "processing_time_ms"
	MetaRequestID      = "request_id"
)

// WithResponseMeta starts the metadata block echoed in the response envelope,
// seeded with the request id when one was assigned.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := map[string]interface{}{}
		if id := requestid.Value(c); id != "" {
			meta[MetaRequestID] = id
		}
		c.Set(responseMetaKey, meta)
		c.Next()
	}
}

// SetMeta records one metadata entry for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	ensureMeta(c)[key] = value
}

// SetCacheHit records whether the response was served from the report cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, MetaCacheHit, hit)
}

// ExtractMeta returns the metadata collected for the request. Never nil.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	return ensureMeta(c)
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
