// Package device implements the downstream collaborator switchsentry's
// device-command executor talks to: a thin HTTP bridge that actually
// drives hardware, plus the signer that lets the bridge verify a command
// really came from switchsentry.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/switchsentry/internal/automation"
	"github.com/nerrad567/switchsentry/internal/infrastructure/logging"
)

// HTTPController invokes device methods by posting signed commands to a
// configured bridge endpoint. It implements automation.DeviceController.
type HTTPController struct {
	BaseURL string
	Client  *http.Client
	Logger  *logging.Logger
}

// New returns an HTTPController posting to baseURL.
func New(baseURL string, logger *logging.Logger) *HTTPController {
	return &HTTPController{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Logger:  logger,
	}
}

type invokeRequest struct {
	Address string         `json:"address"`
	Config  map[string]any `json:"config,omitempty"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	Token   string         `json:"token,omitempty"`
}

// Invoke posts cmd to the bridge's /invoke endpoint. A non-2xx response is
// reported as an error; the caller (DeviceCommandExecutor) already treats
// every error as fire-and-forget per spec.md §7.
func (c *HTTPController) Invoke(ctx context.Context, cmd automation.DeviceCommand) error {
	body, err := json.Marshal(invokeRequest{
		Address: cmd.Address,
		Config:  cmd.Config,
		Method:  cmd.Method,
		Params:  cmd.Params,
		Token:   cmd.Token,
	})
	if err != nil {
		return fmt.Errorf("encoding device command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building device command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("device bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("device bridge returned status %d", resp.StatusCode)
	}
	return nil
}
