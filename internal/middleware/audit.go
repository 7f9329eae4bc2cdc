package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/moneyquiz/routing-gateway/internal/models"
)

// Audit records successful admin mutations on the operational log. Rollback
// and flag changes need an attributable trail beyond the database events.
func Audit(logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		operator := ""
		if claims, ok := c.Get(ContextUserKey); ok {
			if typed, ok := claims.(*models.OperatorClaims); ok {
				operator = typed.Email
			}
		}

		logger.Info("admin action",
			zap.String("action", action),
			zap.String("resource", resource),
			zap.String("operator", operator),
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.String("ip", c.ClientIP()),
		)
	}
}
