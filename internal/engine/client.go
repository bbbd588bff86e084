// Package engine manages automation graph lifecycles on the external
// workflow engine over its REST API.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"whatsbot/internal/common/errors"
	"whatsbot/internal/common/httpclient"
	"whatsbot/internal/common/logger"
	"whatsbot/internal/common/metrics"
	"whatsbot/internal/graph"
)

// Workflow is the engine's view of a registered graph.
type Workflow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Execution is a single run of a registered workflow.
type Execution struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflowId"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	StoppedAt  *time.Time `json:"stoppedAt,omitempty"`
}

// Client talks to the workflow engine's management API.
type Client struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client
	logger  logger.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpclient.NewClient(timeout),
		logger:  log,
	}
}

// Register creates the workflow on the engine and returns its assigned id.
func (c *Client) Register(ctx context.Context, g *graph.Graph) (string, error) {
	var created Workflow
	if err := c.call(ctx, "register", http.MethodPost, "/api/v1/workflows", workflowPayload(g), &created); err != nil {
		return "", err
	}
	c.logger.Info("Workflow registered", map[string]interface{}{
		"workflow_id": created.ID,
		"bot_id":      g.BotID,
	})
	return created.ID, nil
}

// Update replaces the definition of an already registered workflow.
func (c *Client) Update(ctx context.Context, workflowID string, g *graph.Graph) error {
	path := fmt.Sprintf("/api/v1/workflows/%s", workflowID)
	if err := c.call(ctx, "update", http.MethodPatch, path, workflowPayload(g), nil); err != nil {
		return err
	}
	c.logger.Info("Workflow updated", map[string]interface{}{
		"workflow_id": workflowID,
		"bot_id":      g.BotID,
	})
	return nil
}

// Activate enables the workflow. Activating an already active workflow
// is a no-op on the engine side, so callers may retry freely.
func (c *Client) Activate(ctx context.Context, workflowID string) error {
	path := fmt.Sprintf("/api/v1/workflows/%s/activate", workflowID)
	return c.call(ctx, "activate", http.MethodPost, path, nil, nil)
}

// Deactivate disables the workflow without deleting it.
func (c *Client) Deactivate(ctx context.Context, workflowID string) error {
	path := fmt.Sprintf("/api/v1/workflows/%s/deactivate", workflowID)
	return c.call(ctx, "deactivate", http.MethodPost, path, nil, nil)
}

// Delete removes the workflow from the engine entirely.
func (c *Client) Delete(ctx context.Context, workflowID string) error {
	path := fmt.Sprintf("/api/v1/workflows/%s", workflowID)
	return c.call(ctx, "delete", http.MethodDelete, path, nil, nil)
}

// ListExecutions returns recent runs of the workflow, newest first.
func (c *Client) ListExecutions(ctx context.Context, workflowID string, limit int) ([]Execution, error) {
	path := fmt.Sprintf("/api/v1/executions?workflowId=%s&limit=%d", workflowID, limit)
	var out struct {
		Data []Execution `json:"data"`
	}
	if err := c.call(ctx, "list_executions", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) call(ctx context.Context, operation, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.NewValidationFailedError(fmt.Sprintf("encode %s payload: %v", operation, err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.NewValidationFailedError(fmt.Sprintf("build %s request: %v", operation, err))
	}
	req.Header.Set("X-N8N-API-KEY", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.EngineCalls.WithLabelValues(operation, "unreachable").Inc()
		c.logger.WithError(err).Error("Workflow engine unreachable", map[string]interface{}{
			"operation": operation,
		})
		return errors.NewEngineUnreachableError(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.EngineCalls.WithLabelValues(operation, "rejected").Inc()
		c.logger.Error("Workflow engine rejected request", map[string]interface{}{
			"operation": operation,
			"status":    resp.StatusCode,
			"body":      string(raw),
		})
		return errors.NewEngineRejectedError(resp.StatusCode, string(raw))
	}

	metrics.EngineCalls.WithLabelValues(operation, "success").Inc()

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.NewMalformedUpstreamResponseError(fmt.Sprintf("decode %s response: %v", operation, err))
		}
	}
	return nil
}

// workflowPayload converts the compiled graph into the engine's wire format:
// a flat node list plus a name-keyed connections map.
func workflowPayload(g *graph.Graph) map[string]interface{} {
	nodes := make([]map[string]interface{}, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, nodePayload(n))
	}

	connections := make(map[string]interface{}, len(g.Connections))
	for from, targets := range g.Connections {
		mains := make([]map[string]interface{}, 0, len(targets))
		for _, to := range targets {
			mains = append(mains, map[string]interface{}{"node": to, "type": "main", "index": 0})
		}
		connections[from] = map[string]interface{}{"main": []interface{}{mains}}
	}

	return map[string]interface{}{
		"name":        g.Name,
		"nodes":       nodes,
		"connections": connections,
		"settings":    map[string]interface{}{},
	}
}

func nodePayload(n graph.Node) map[string]interface{} {
	p := map[string]interface{}{
		"name": n.Name,
		"type": string(n.Kind),
	}
	switch n.Kind {
	case graph.KindTrigger:
		p["parameters"] = map[string]interface{}{
			"httpMethod": n.Trigger.Method,
			"path":       n.Trigger.Path,
		}
	case graph.KindTransform:
		p["parameters"] = map[string]interface{}{
			"produces": n.Transform.Produces,
			"mapping":  n.Transform.Mapping,
		}
	case graph.KindExternalCall:
		p["parameters"] = map[string]interface{}{
			"method":  n.ExternalCall.Method,
			"url":     n.ExternalCall.URL,
			"headers": n.ExternalCall.Headers,
			"body":    n.ExternalCall.BodyTemplate,
		}
	case graph.KindBranch:
		cases := make([]map[string]interface{}, 0, len(n.Branch.Cases))
		for _, bc := range n.Branch.Cases {
			cases = append(cases, map[string]interface{}{"value": bc.Value, "target": bc.Target})
		}
		p["parameters"] = map[string]interface{}{
			"on":      n.Branch.On,
			"cases":   cases,
			"default": n.Branch.DefaultTarget,
		}
	case graph.KindTerminal:
		p["parameters"] = map[string]interface{}{
			"statusCode": n.Terminal.StatusCode,
			"body":       n.Terminal.Body,
		}
	}
	return p
}
