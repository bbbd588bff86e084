package graph

import (
	"fmt"
	"sort"
	"strings"

	"whatsbot/internal/botconfig"
	"whatsbot/internal/common/errors"
)

// Endpoints parameterizes the external collaborators the compiled graph
// calls. The compiler treats them as opaque strings; it never dials them.
type Endpoints struct {
	StoreBaseURL   string
	StoreAPIKey    string
	AIBaseURL      string
	ChannelSendURL string
	ChannelAPIKey  string
}

// Fixed node names. Deterministic names make repeated compilation of the same
// inputs yield structurally identical graphs.
const (
	nodeTrigger     = "whatsapp_webhook"
	nodeParse       = "parse_message"
	nodeContact     = "resolve_contact"
	nodeAIProcess   = "ai_process"
	nodeDispatch    = "dispatch_intent"
	nodeDeliver     = "send_response"
	nodePersist     = "save_conversation"
	nodeAcknowledge = "webhook_response"
)

// Compile turns a bot's automation configuration into its executable graph.
// Pure and deterministic: same (botID, cfg, endpoints) always produces the
// same graph. Node templates are validated against the fields produced
// upstream; a reference to an undeclared field fails compilation rather than
// silently dropping the node.
func Compile(botID, botName string, cfg *botconfig.AutomationConfig, ep Endpoints) (*Graph, error) {
	if botID == "" {
		return nil, errors.NewGraphInvalidError("bot id is required")
	}
	if cfg == nil {
		return nil, errors.NewGraphInvalidError("automation config is required")
	}

	nodes := buildNodes(botID, cfg, ep)

	g := &Graph{
		BotID:       botID,
		Name:        fmt.Sprintf("Bot WhatsApp - %s", botName),
		Nodes:       nodes,
		Connections: linearConnections(nodes),
		Entry:       nodes[0].Name,
		Terminal:    nodes[len(nodes)-1].Name,
	}

	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

func buildNodes(botID string, cfg *botconfig.AutomationConfig, ep Endpoints) []Node {
	storeHeaders := map[string]string{
		"Content-Type": "application/json",
		"apikey":       ep.StoreAPIKey,
	}

	dispatch := &BranchParams{
		On:            "intent",
		DefaultTarget: nodeDeliver,
	}
	for _, action := range cfg.AvailableActions {
		dispatch.Cases = append(dispatch.Cases, BranchCase{
			Value:  action.Name,
			Target: nodeDeliver,
		})
	}

	return []Node{
		{
			Name: nodeTrigger,
			Kind: KindTrigger,
			Trigger: &TriggerParams{
				Method: "POST",
				Path:   fmt.Sprintf("whatsapp-%s", botID),
			},
		},
		{
			Name: nodeParse,
			Kind: KindTransform,
			Transform: &TransformParams{
				Produces: []string{"sender", "text", "timestamp", "message_id"},
				Mapping: map[string]string{
					"sender":     "body.from",
					"text":       "body.text.body",
					"timestamp":  "body.timestamp",
					"message_id": "body.id",
				},
			},
		},
		{
			Name: nodeContact,
			Kind: KindExternalCall,
			ExternalCall: &ExternalCallParams{
				Method:       "POST",
				URL:          ep.StoreBaseURL + "/functions/v1/check-contact",
				Headers:      storeHeaders,
				BodyTemplate: fmt.Sprintf(`{"phone": "{{sender}}", "bot_id": %q}`, botID),
				Produces:     []string{"contact_id", "contact_status"},
			},
		},
		{
			Name: nodeAIProcess,
			Kind: KindExternalCall,
			ExternalCall: &ExternalCallParams{
				Method:       "POST",
				URL:          ep.AIBaseURL + "/functions/v1/process-ai",
				Headers:      storeHeaders,
				BodyTemplate: fmt.Sprintf(`{"message": "{{text}}", "phone": "{{sender}}", "bot_id": %q, "system_prompt": %q}`, botID, cfg.SystemPrompt),
				Produces:     []string{"intent", "response"},
			},
		},
		{
			Name:   nodeDispatch,
			Kind:   KindBranch,
			Branch: dispatch,
		},
		{
			Name: nodeDeliver,
			Kind: KindExternalCall,
			ExternalCall: &ExternalCallParams{
				Method: "POST",
				URL:    ep.ChannelSendURL,
				Headers: map[string]string{
					"Content-Type":  "application/json",
					"Authorization": "Bearer " + ep.ChannelAPIKey,
				},
				BodyTemplate: `{"messaging_product": "whatsapp", "to": "{{sender}}", "type": "text", "text": {"body": "{{response}}"}}`,
			},
		},
		{
			Name: nodePersist,
			Kind: KindExternalCall,
			ExternalCall: &ExternalCallParams{
				Method:       "POST",
				URL:          ep.StoreBaseURL + "/functions/v1/save-conversation",
				Headers:      storeHeaders,
				BodyTemplate: fmt.Sprintf(`{"bot_id": %q, "phone": "{{sender}}", "message": "{{text}}", "response": "{{response}}", "intent": "{{intent}}"}`, botID),
			},
		},
		{
			Name: nodeAcknowledge,
			Kind: KindTerminal,
			Terminal: &TerminalParams{
				StatusCode: 200,
				Body:       `{"status": "success"}`,
			},
		},
	}
}

// linearConnections wires each node to its successor in list order.
func linearConnections(nodes []Node) map[string][]string {
	conns := make(map[string][]string, len(nodes)-1)
	for i := 0; i < len(nodes)-1; i++ {
		conns[nodes[i].Name] = []string{nodes[i+1].Name}
	}
	return conns
}

// Validate enforces the compile-time invariants: unique node names, a single
// trigger and terminal, branch targets that exist, and templates that only
// reference fields produced by earlier nodes.
func Validate(g *Graph) error {
	seen := make(map[string]bool, len(g.Nodes))
	declared := make(map[string]bool)
	var triggers, terminals int

	for i := range g.Nodes {
		n := &g.Nodes[i]

		if n.Name == "" {
			return errors.NewGraphInvalidError(fmt.Sprintf("node %d has no name", i))
		}
		if seen[n.Name] {
			return errors.NewGraphInvalidError(fmt.Sprintf("duplicate node name %q", n.Name))
		}
		seen[n.Name] = true

		switch n.Kind {
		case KindTrigger:
			triggers++
			if i != 0 {
				return errors.NewGraphInvalidError("trigger must be the entry node")
			}
		case KindTransform:
			for _, f := range n.Transform.Produces {
				declared[f] = true
			}
		case KindExternalCall:
			for _, field := range referencedFields(n.ExternalCall.URL, n.ExternalCall.BodyTemplate) {
				if !declared[field] {
					return errors.NewUndeclaredReferenceError(n.Name, field)
				}
			}
			for _, f := range n.ExternalCall.Produces {
				declared[f] = true
			}
		case KindBranch:
			if !declared[n.Branch.On] {
				return errors.NewUndeclaredReferenceError(n.Name, n.Branch.On)
			}
			for _, c := range n.Branch.Cases {
				if !seen[c.Target] && !nodeExists(g, c.Target) {
					return errors.NewGraphInvalidError(fmt.Sprintf("branch %q targets unknown node %q", n.Name, c.Target))
				}
			}
			if n.Branch.DefaultTarget != "" && !nodeExists(g, n.Branch.DefaultTarget) {
				return errors.NewGraphInvalidError(fmt.Sprintf("branch %q default targets unknown node %q", n.Name, n.Branch.DefaultTarget))
			}
		case KindTerminal:
			terminals++
			if i != len(g.Nodes)-1 {
				return errors.NewGraphInvalidError("terminal must be the last node")
			}
		default:
			return errors.NewGraphInvalidError(fmt.Sprintf("node %q has unknown kind %q", n.Name, n.Kind))
		}
	}

	if triggers != 1 {
		return errors.NewGraphInvalidError(fmt.Sprintf("graph needs exactly one trigger, found %d", triggers))
	}
	if terminals != 1 {
		return errors.NewGraphInvalidError(fmt.Sprintf("graph needs exactly one terminal, found %d", terminals))
	}

	for from, targets := range g.Connections {
		if !seen[from] {
			return errors.NewGraphInvalidError(fmt.Sprintf("connection from unknown node %q", from))
		}
		for _, to := range targets {
			if !seen[to] {
				return errors.NewGraphInvalidError(fmt.Sprintf("connection to unknown node %q", to))
			}
		}
	}

	return nil
}

func nodeExists(g *Graph, name string) bool {
	return g.NodeByName(name) != nil
}

// referencedFields extracts the set of {{field}} placeholders used across the
// given templates, sorted for deterministic error reporting.
func referencedFields(templates ...string) []string {
	set := make(map[string]bool)
	for _, tpl := range templates {
		rest := tpl
		for {
			open := strings.Index(rest, "{{")
			if open < 0 {
				break
			}
			rest = rest[open+2:]
			end := strings.Index(rest, "}}")
			if end < 0 {
				break
			}
			field := strings.TrimSpace(rest[:end])
			if field != "" {
				set[field] = true
			}
			rest = rest[end+2:]
		}
	}

	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
