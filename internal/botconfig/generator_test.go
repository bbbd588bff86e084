package botconfig

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbot/internal/common/logger"
	"whatsbot/internal/llm"
	"whatsbot/internal/models"
)

// stubCompleter returns a fixed response or error.
type stubCompleter struct {
	response string
	err      error
	lastReq  llm.CompletionRequest
}

func (s *stubCompleter) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	s.lastReq = req
	return s.response, s.err
}

func testProfile(businessType string) models.BusinessProfile {
	return models.BusinessProfile{
		BusinessType:    businessType,
		Description:     "Barbería El Clásico en Medellín",
		AutomationTypes: []string{"scheduling", "support"},
		ConnectCalendar: true,
	}
}

func validGeneratedConfig() string {
	cfg := AutomationConfig{
		SystemPrompt:    "Eres el asistente de Barbería El Clásico.",
		AutomationTypes: []string{"scheduling"},
		AvailableActions: []Action{
			{Name: "agendar_cita", Description: "Agenda citas", TriggerWords: []string{"cita"}, Parameters: []string{"fecha"}},
		},
		ResponseTemplates: map[string]string{"greeting": "¡Hola!"},
		BusinessInfo:      BusinessInfo{Name: "El Clásico", Type: "barbershop"},
		Integrations:      map[string]bool{"crm": true},
	}
	data, _ := json.Marshal(cfg)
	return string(data)
}

func assertComplete(t *testing.T, cfg *AutomationConfig) {
	t.Helper()
	assert.NotEmpty(t, cfg.SystemPrompt)
	assert.NotEmpty(t, cfg.AutomationTypes)
	assert.NotEmpty(t, cfg.AvailableActions)
	assert.NotEmpty(t, cfg.ResponseTemplates)
	assert.NotEmpty(t, cfg.BusinessInfo.Name)
	assert.NotNil(t, cfg.Integrations)
}

func TestGenerate_UsesLLMOutput(t *testing.T) {
	stub := &stubCompleter{response: "Claro, aquí está:\n" + validGeneratedConfig()}
	gen := NewGenerator(stub, logger.NewNoOpLogger())

	cfg := gen.Generate(context.Background(), testProfile("barbershop"))

	require.NotNil(t, cfg)
	assert.Equal(t, "Eres el asistente de Barbería El Clásico.", cfg.SystemPrompt)
	assert.Len(t, cfg.AvailableActions, 1)
	// Caller's calendar flag always wins.
	assert.True(t, cfg.Integrations["google_calendar"])
}

func TestGenerate_FallbackOnCallError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("connection refused")}
	gen := NewGenerator(stub, logger.NewNoOpLogger())

	cfg := gen.Generate(context.Background(), testProfile("barbershop"))

	require.NotNil(t, cfg)
	assertComplete(t, cfg)
	assert.Equal(t, []string{"scheduling", "support"}, cfg.AutomationTypes)
	assert.True(t, cfg.Integrations["google_calendar"])
	assert.Contains(t, cfg.SystemPrompt, "barbería")
}

func TestGenerate_FallbackOnGarbageOutput(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"plain prose", "Lo siento, no puedo generar esa configuración."},
		{"unbalanced json", `{"system_prompt": "hola"`},
		{"missing required keys", `{"system_prompt": "hola"}`},
		{"wrong types", `{"system_prompt": 42, "automation_types": "x", "available_actions": {}, "response_templates": [], "business_info": [], "integrations": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubCompleter{response: tt.response}
			gen := NewGenerator(stub, logger.NewNoOpLogger())

			cfg := gen.Generate(context.Background(), testProfile("restaurant"))

			require.NotNil(t, cfg)
			assertComplete(t, cfg)
			assert.Contains(t, cfg.SystemPrompt, "restaurante")
		})
	}
}

func TestGenerate_FallbackCoversEveryBusinessType(t *testing.T) {
	stub := &stubCompleter{err: errors.New("down")}
	gen := NewGenerator(stub, logger.NewNoOpLogger())

	for _, businessType := range []string{"barbershop", "restaurant", "retail", "consulting", "health", ""} {
		cfg := gen.Generate(context.Background(), testProfile(businessType))
		require.NotNil(t, cfg, "business type %q", businessType)
		assertComplete(t, cfg)
	}
}

func TestGenerate_PromptCarriesProfile(t *testing.T) {
	stub := &stubCompleter{err: errors.New("skip")}
	gen := NewGenerator(stub, logger.NewNoOpLogger())

	gen.Generate(context.Background(), testProfile("barbershop"))

	assert.Contains(t, stub.lastReq.User, "barbershop")
	assert.Contains(t, stub.lastReq.User, "Barbería El Clásico")
	assert.Contains(t, stub.lastReq.User, "scheduling, support")
	assert.Contains(t, stub.lastReq.User, "Google Calendar")
	assert.NotEmpty(t, stub.lastReq.System)
}

func TestFallbackConfig_NameDerivation(t *testing.T) {
	cfg := fallbackConfig(models.BusinessProfile{BusinessType: "retail", Description: ""})
	assert.Equal(t, "Mi Negocio", cfg.BusinessInfo.Name)

	cfg = fallbackConfig(models.BusinessProfile{BusinessType: "retail", Description: "Tienda de ropa urbana para jóvenes"})
	assert.Equal(t, "Tienda de ropa", cfg.BusinessInfo.Name)
}
