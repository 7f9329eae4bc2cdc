package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moneyquiz/routing-gateway/internal/models"
)

// RouteDispatcher is the subset of the router used by the handler.
type RouteDispatcher interface {
	Dispatch(ctx context.Context, action string, data map[string]interface{}) models.RouterResult
}

// RouteHandler exposes the public dispatch endpoint.
type RouteHandler struct {
	router RouteDispatcher
}

// NewRouteHandler constructs a RouteHandler.
func NewRouteHandler(router RouteDispatcher) *RouteHandler {
	return &RouteHandler{router: router}
}

// Dispatch godoc
// @Summary Dispatch a quiz action
// @Description Routes the action to the modern or legacy implementation
// @Tags Routing
// @Accept json
// @Produce json
// @Param action path string true "Action name"
// @Param payload body map[string]interface{} false "Action payload"
// @Success 200 {object} models.RouterResult
// @Router /route/{action} [post]
func (h *RouteHandler) Dispatch(c *gin.Context) {
	action := c.Param("action")
	if action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}

	data := map[string]interface{}{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}
	}

	result := h.router.Dispatch(c.Request.Context(), action, data)

	// The dispatch result is returned verbatim so legacy clients see the
	// exact shape the bridge produced. Terminal errors map to 502.
	status := http.StatusOK
	if result.System == models.SystemError {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}
