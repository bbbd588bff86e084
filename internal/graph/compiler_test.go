package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbot/internal/botconfig"
	"whatsbot/internal/common/errors"
)

func testEndpoints() Endpoints {
	return Endpoints{
		StoreBaseURL:   "https://store.example.com",
		StoreAPIKey:    "store-key",
		AIBaseURL:      "https://store.example.com",
		ChannelSendURL: "https://graph.facebook.com/v17.0/12345/messages",
		ChannelAPIKey:  "channel-key",
	}
}

func testConfig() *botconfig.AutomationConfig {
	return &botconfig.AutomationConfig{
		SystemPrompt:    "Eres el asistente de una barbería.",
		AutomationTypes: []string{"scheduling"},
		AvailableActions: []botconfig.Action{
			{Name: "agendar_cita", Description: "Agenda citas"},
			{Name: "consultar_precio", Description: "Consulta precios"},
		},
		ResponseTemplates: map[string]string{"greeting": "hola"},
		BusinessInfo:      botconfig.BusinessInfo{Name: "El Clásico", Type: "barbershop"},
		Integrations:      map[string]bool{"crm": true},
	}
}

func TestCompile_FixedTopology(t *testing.T) {
	g, err := Compile("bot-1", "El Clásico", testConfig(), testEndpoints())
	require.NoError(t, err)

	wantOrder := []string{
		"whatsapp_webhook",
		"parse_message",
		"resolve_contact",
		"ai_process",
		"dispatch_intent",
		"send_response",
		"save_conversation",
		"webhook_response",
	}
	require.Len(t, g.Nodes, len(wantOrder))
	for i, name := range wantOrder {
		assert.Equal(t, name, g.Nodes[i].Name, "node %d", i)
	}

	assert.Equal(t, "whatsapp_webhook", g.Entry)
	assert.Equal(t, "webhook_response", g.Terminal)
	assert.Equal(t, KindTrigger, g.Nodes[0].Kind)
	assert.Equal(t, KindTerminal, g.Nodes[len(g.Nodes)-1].Kind)

	// Each node links to its successor.
	for i := 0; i < len(wantOrder)-1; i++ {
		assert.Equal(t, []string{wantOrder[i+1]}, g.Connections[wantOrder[i]])
	}
	// The terminal has no successor.
	assert.NotContains(t, g.Connections, g.Terminal)
}

func TestCompile_Deterministic(t *testing.T) {
	a, err := Compile("bot-1", "El Clásico", testConfig(), testEndpoints())
	require.NoError(t, err)
	b, err := Compile("bot-1", "El Clásico", testConfig(), testEndpoints())
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestCompile_ParameterizedPerBot(t *testing.T) {
	g, err := Compile("bot-42", "Mi Tienda", testConfig(), testEndpoints())
	require.NoError(t, err)

	assert.Equal(t, "bot-42", g.BotID)
	assert.Equal(t, "Bot WhatsApp - Mi Tienda", g.Name)
	assert.Equal(t, "whatsapp-bot-42", g.NodeByName("whatsapp_webhook").Trigger.Path)
	assert.Contains(t, g.NodeByName("resolve_contact").ExternalCall.BodyTemplate, `"bot-42"`)
	assert.Contains(t, g.NodeByName("ai_process").ExternalCall.BodyTemplate, "Eres el asistente de una barbería.")
}

func TestCompile_BranchPerAction(t *testing.T) {
	g, err := Compile("bot-1", "El Clásico", testConfig(), testEndpoints())
	require.NoError(t, err)

	branch := g.NodeByName("dispatch_intent").Branch
	require.NotNil(t, branch)
	assert.Equal(t, "intent", branch.On)
	require.Len(t, branch.Cases, 2)
	assert.Equal(t, "agendar_cita", branch.Cases[0].Value)
	assert.Equal(t, "consultar_precio", branch.Cases[1].Value)
	assert.NotEmpty(t, branch.DefaultTarget)
}

func TestCompile_RejectsMissingInputs(t *testing.T) {
	_, err := Compile("", "x", testConfig(), testEndpoints())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGraphInvalid, errors.CodeOf(err))

	_, err = Compile("bot-1", "x", nil, testEndpoints())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGraphInvalid, errors.CodeOf(err))
}

func TestValidate_RejectsUndeclaredFieldReference(t *testing.T) {
	g, err := Compile("bot-1", "El Clásico", testConfig(), testEndpoints())
	require.NoError(t, err)

	// Corrupt one node so its template pulls a field nothing upstream produced.
	g.NodeByName("send_response").ExternalCall.BodyTemplate = `{"to": "{{sender}}", "text": "{{tarot_reading}}"}`

	err = Validate(g)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUndeclaredReference, errors.CodeOf(err))
}

func TestValidate_RejectsForwardReference(t *testing.T) {
	g, err := Compile("bot-1", "El Clásico", testConfig(), testEndpoints())
	require.NoError(t, err)

	// resolve_contact runs before ai_process, so "response" is not yet produced.
	g.NodeByName("resolve_contact").ExternalCall.BodyTemplate = `{"phone": "{{sender}}", "echo": "{{response}}"}`

	err = Validate(g)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUndeclaredReference, errors.CodeOf(err))
}

func TestValidate_RejectsDuplicateNodeNames(t *testing.T) {
	g, err := Compile("bot-1", "El Clásico", testConfig(), testEndpoints())
	require.NoError(t, err)

	g.Nodes[2].Name = g.Nodes[1].Name

	err = Validate(g)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGraphInvalid, errors.CodeOf(err))
}

func TestValidate_RejectsBranchToUnknownNode(t *testing.T) {
	g, err := Compile("bot-1", "El Clásico", testConfig(), testEndpoints())
	require.NoError(t, err)

	g.NodeByName("dispatch_intent").Branch.Cases[0].Target = "no_such_node"

	err = Validate(g)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGraphInvalid, errors.CodeOf(err))
}

func TestReferencedFields(t *testing.T) {
	fields := referencedFields(
		`{"a": "{{sender}}", "b": "{{ text }}"}`,
		`https://x/{{sender}}/y`,
	)
	assert.Equal(t, []string{"sender", "text"}, fields)

	assert.Empty(t, referencedFields(`{"a": "plain"}`))
	assert.Empty(t, referencedFields(`{"a": "{{unterminated`))
}
