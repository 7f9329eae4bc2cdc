package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/moneyquiz/routing-gateway/internal/middleware"
	"github.com/moneyquiz/routing-gateway/internal/models"
)

func claimsFromContext(c *gin.Context) *models.OperatorClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.OperatorClaims)
	if !ok {
		return nil
	}
	return claims
}

func operatorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.Email
	}
	return "unknown"
}
