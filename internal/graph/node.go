// Package graph defines the automation graph model and its compiler. A graph
// is a wired, typed node list an external workflow engine executes per
// inbound event. Compilation is pure: no I/O, deterministic output.
package graph

import "encoding/json"

// Kind tags the node variants. Executors and the compiler switch exhaustively
// over it; there is no inheritance hierarchy behind the Node struct.
type Kind string

const (
	KindTrigger      Kind = "trigger"
	KindTransform    Kind = "transform"
	KindExternalCall Kind = "external_call"
	KindBranch       Kind = "branch"
	KindTerminal     Kind = "terminal"
)

// Node is the tagged union over the variants. Exactly one of the parameter
// pointers matching Kind is set. Name is the wiring key and must be unique
// within a graph.
type Node struct {
	Name         string              `json:"name"`
	Kind         Kind                `json:"kind"`
	Trigger      *TriggerParams      `json:"trigger,omitempty"`
	Transform    *TransformParams    `json:"transform,omitempty"`
	ExternalCall *ExternalCallParams `json:"external_call,omitempty"`
	Branch       *BranchParams       `json:"branch,omitempty"`
	Terminal     *TerminalParams     `json:"terminal,omitempty"`
}

// TriggerParams opens the graph on an inbound webhook delivery.
type TriggerParams struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// TransformParams reshapes the payload. Produces lists the field names the
// transform adds to the execution payload; downstream templates may reference
// only produced fields.
type TransformParams struct {
	Produces []string          `json:"produces"`
	Mapping  map[string]string `json:"mapping"`
}

// ExternalCallParams calls an external collaborator over HTTP. URL, headers,
// and body are templates that may reference upstream payload fields via
// {{field}} placeholders. Produces lists fields the call's response adds to
// the payload.
type ExternalCallParams struct {
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate string            `json:"body_template,omitempty"`
	Produces     []string          `json:"produces,omitempty"`
}

// BranchParams dispatches on the value of one payload field. Cases are
// ordered; DefaultTarget receives everything unmatched.
type BranchParams struct {
	On            string       `json:"on"`
	Cases         []BranchCase `json:"cases"`
	DefaultTarget string       `json:"default_target"`
}

// BranchCase routes one matched value to a target node.
type BranchCase struct {
	Value  string `json:"value"`
	Target string `json:"target"`
}

// TerminalParams acknowledges the webhook caller and closes the execution.
type TerminalParams struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// Graph is the compiled automation for one bot. Nodes are in execution order;
// Connections wires node name to successor names.
type Graph struct {
	BotID       string              `json:"bot_id"`
	Name        string              `json:"name"`
	Nodes       []Node              `json:"nodes"`
	Connections map[string][]string `json:"connections"`
	Entry       string              `json:"entry"`
	Terminal    string              `json:"terminal"`
}

// node lookups used by validation and tests

// NodeByName returns the named node, or nil.
func (g *Graph) NodeByName(name string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Name == name {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Fingerprint serializes the graph for structural comparison. Two graphs with
// equal fingerprints are structurally identical.
func (g *Graph) Fingerprint() string {
	data, _ := json.Marshal(g)
	return string(data)
}
