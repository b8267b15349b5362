package middleware

import (
	"net/http"

	"github.com/chrlshc/Huntaze-sub010/health"
	"github.com/gin-gonic/gin"
)

// HealthHandler serves the aggregated health report. Degraded still answers
// 200 because fail-open limiting keeps the service usable.
func HealthHandler(agg *health.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := agg.Check(c.Request.Context())
		status := http.StatusOK
		if resp.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	}
}

// LivenessHandler answers without checking dependencies
func LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	}
}
