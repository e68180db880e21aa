package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"token-aggregator/internal/cache"
	"token-aggregator/internal/observability"
)

// observe records request metrics and logs each request at debug level.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		observability.RecordHTTPRequest(route, strconv.Itoa(status), elapsed.Seconds())
		s.log.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"route":       route,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"client_ip":   c.ClientIP(),
		}).Debug("http request")
	}
}

// rateLimit allows RateLimit.Requests per client IP per window. Cache
// failures let the request through.
func (s *Server) rateLimit() gin.HandlerFunc {
	limit := s.opts.RateLimit.Requests
	window := s.opts.RateLimit.Window
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	retryAfter := strconv.Itoa(int(window.Seconds()))

	return func(c *gin.Context) {
		key := cache.PrefixRateLimit + c.ClientIP()
		n, err := s.opts.Cache.IncrementWithExpiry(c.Request.Context(), key, window)
		if err != nil {
			observability.RecordCacheError("incr")
			s.log.WithError(err).Warn("rate limit check failed, allowing request")
			c.Next()
			return
		}

		remaining := int64(limit) - n
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if n > int64(limit) {
			observability.RecordRateLimited()
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
