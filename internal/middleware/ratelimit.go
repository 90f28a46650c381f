package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/sessiond/internal/ratelimit"
	"github.com/charlesng35/sessiond/pkg/errors"
	"github.com/charlesng35/sessiond/pkg/logger"
	"github.com/charlesng35/sessiond/pkg/metrics"
	"github.com/charlesng35/sessiond/pkg/response"
)

// RateLimit rejects requests with 429 once the client address made max
// requests to scope within the sliding window. Store errors let the request
// through.
func RateLimit(store ratelimit.Store, scope string, max int, window time.Duration) gin.HandlerFunc {
	log := logger.WithModule("ratelimit")
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))

	return func(c *gin.Context) {
		if store == nil || max <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := ratelimit.Key(scope, c.ClientIP())
		limited, err := store.IsLimited(c.Request.Context(), key, max, window)
		if err != nil {
			log.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(max))
		if limited {
			metrics.RateLimited.WithLabelValues(scope).Inc()
			c.Header("Retry-After", retryAfter)
			response.Error(c, errors.ErrTooManyRequests)
			return
		}

		c.Next()
	}
}
