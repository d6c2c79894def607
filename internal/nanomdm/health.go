package nanomdm

import (
	"context"
	"time"
)

// HealthCheck reports whether the MDM server answers its version endpoint.
// It satisfies the gin-healthcheck checks.Check interface.
type HealthCheck struct {
	client  *Client
	timeout time.Duration
}

func NewHealthCheck(client *Client) *HealthCheck {
	return &HealthCheck{client: client, timeout: 2 * time.Second}
}

func (h *HealthCheck) Name() string {
	return "nanomdm"
}

func (h *HealthCheck) Pass() bool {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if _, err := h.client.attempt(ctx, h.client.versionRequest()); err != nil {
		h.client.logger.Warn("nanomdm health check failed", "error", err)
		return false
	}
	return true
}
