package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/moneyquiz/routing-gateway/internal/models"
	"github.com/moneyquiz/routing-gateway/pkg/config"
)

// LegacyHandler proxies an action to the legacy WordPress backend over its
// REST bridge. A non-2xx response or transport fault is a handler error,
// which the router treats as terminal for the legacy path.
type LegacyHandler struct {
	baseURL string
	client  *http.Client
}

// NewLegacyHandler constructs a proxy for the configured legacy backend.
func NewLegacyHandler(cfg config.RoutingConfig) *LegacyHandler {
	timeout := cfg.LegacyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LegacyHandler{
		baseURL: strings.TrimRight(cfg.LegacyBaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Handle forwards the action payload and decodes the bridge response.
func (h *LegacyHandler) Handle(ctx context.Context, action string, data map[string]interface{}) (models.HandlerResult, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return models.HandlerResult{}, fmt.Errorf("encode legacy payload: %w", err)
	}

	url := fmt.Sprintf("%s/wp-json/moneyquiz/v1/route/%s", h.baseURL, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return models.HandlerResult{}, fmt.Errorf("build legacy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return models.HandlerResult{}, fmt.Errorf("legacy backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.HandlerResult{}, fmt.Errorf("legacy backend returned status %d for action %q", resp.StatusCode, action)
	}

	var result models.HandlerResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.HandlerResult{}, fmt.Errorf("decode legacy response: %w", err)
	}
	return result, nil
}
