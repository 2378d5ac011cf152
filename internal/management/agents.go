package management

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Agent is a registered application identity on the control plane. Scan
// policies are attached per agent.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	FailMode    string    `json:"fail_mode"`
	CreatedAt   time.Time `json:"created_at"`
}

// RegisterAgentRequest is the payload for RegisterAgent.
type RegisterAgentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FailMode    string `json:"fail_mode,omitempty"`
}

// RegisterAgent creates a new agent record.
func (c *Client) RegisterAgent(ctx context.Context, req RegisterAgentRequest) (*Agent, error) {
	var agent Agent
	if err := c.post(ctx, http.MethodPost, "/api/v1/agents", req, &agent); err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}
	return &agent, nil
}

// GetAgent fetches one agent by ID.
func (c *Client) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var agent Agent
	if err := c.get(ctx, "/api/v1/agents/"+id, &agent); err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return &agent, nil
}

// ListAgents returns every agent on the account.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var wrapper struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.get(ctx, "/api/v1/agents", &wrapper); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return wrapper.Agents, nil
}

// DeleteAgent removes an agent and its policy.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	if err := c.post(ctx, http.MethodDelete, "/api/v1/agents/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	return nil
}
