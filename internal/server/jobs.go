package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// TriggerDunningSweep runs one sweep synchronously and reports
// aggregate counts. Individual failures stay in logs and
// notifications; the caller only sees totals.
func (s *Server) TriggerDunningSweep(c *gin.Context) {
	allowed, retryAfter, err := s.sweepLimiter.Allow(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !allowed {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		AbortWithError(c, ErrTooManyRequests)
		return
	}

	report, err := s.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sentByTier := make(map[string]int, len(report.SentByTier))
	for tier, count := range report.SentByTier {
		sentByTier["tier_"+strconv.Itoa(tier)] = count
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"processed":    report.Processed,
		"sent":         report.Sent(),
		"sent_by_tier": sentByTier,
		"skipped":      report.Skipped,
		"errored":      report.Errored,
	}})
}
