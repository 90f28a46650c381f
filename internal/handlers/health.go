package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sessiond/internal/monitoring"
	"github.com/charlesng35/sessiond/pkg/response"
)

// Health reports the dependency checks; any failing check yields 503.
func Health(health *monitoring.Health) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := health.Evaluate(requestContext(c))

		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
		}
		response.JSON(c, status, report)
	}
}
