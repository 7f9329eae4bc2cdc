package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/moneyquiz/routing-gateway/internal/models"
)

// ActionFunc adapts a plain function into an action implementation.
type ActionFunc func(ctx context.Context, data map[string]interface{}) (models.HandlerResult, error)

// ModernHandler dispatches actions to in-process Go implementations. An
// action with no registered implementation is a handler fault, which makes
// the router fall back to legacy.
type ModernHandler struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

// NewModernHandler constructs an empty registry.
func NewModernHandler() *ModernHandler {
	return &ModernHandler{actions: make(map[string]ActionFunc)}
}

// Register binds an implementation to an action name, replacing any
// previous binding.
func (h *ModernHandler) Register(action string, fn ActionFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions[action] = fn
}

// Actions lists the registered action names.
func (h *ModernHandler) Actions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.actions))
	for name := range h.actions {
		names = append(names, name)
	}
	return names
}

// Handle invokes the registered implementation for the action.
func (h *ModernHandler) Handle(ctx context.Context, action string, data map[string]interface{}) (models.HandlerResult, error) {
	h.mu.RLock()
	fn, ok := h.actions[action]
	h.mu.RUnlock()

	if !ok {
		return models.HandlerResult{}, fmt.Errorf("no modern implementation for action %q", action)
	}
	return fn(ctx, data)
}
