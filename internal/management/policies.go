package management

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Policy is the scan policy document attached to an agent. The backend
// applies thresholds server-side; the SDK only reads and writes the
// document.
type Policy struct {
	AgentID        string    `json:"agent_id"`
	FailMode       string    `json:"fail_mode"`
	BlockThreshold float64   `json:"block_threshold"`
	MutedThreats   []string  `json:"muted_threats,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GetPolicy fetches the policy for one agent.
func (c *Client) GetPolicy(ctx context.Context, agentID string) (*Policy, error) {
	var p Policy
	if err := c.get(ctx, "/api/v1/policies/"+agentID, &p); err != nil {
		return nil, fmt.Errorf("get policy for %s: %w", agentID, err)
	}
	return &p, nil
}

// SetPolicy replaces the policy for one agent and returns the stored
// version.
func (c *Client) SetPolicy(ctx context.Context, agentID string, p Policy) (*Policy, error) {
	var stored Policy
	if err := c.post(ctx, http.MethodPut, "/api/v1/policies/"+agentID, p, &stored); err != nil {
		return nil, fmt.Errorf("set policy for %s: %w", agentID, err)
	}
	return &stored, nil
}
