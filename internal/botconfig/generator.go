package botconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"whatsbot/internal/common/logger"
	"whatsbot/internal/common/metrics"
	"whatsbot/internal/llm"
	"whatsbot/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

const generatorSystemPrompt = "Eres un experto en automatización de WhatsApp para pequeños negocios. Generas configuraciones precisas y efectivas para bots de WhatsApp."

// configSchema enforces the structural contract on LLM output. Anything that
// fails it is discarded in favor of the fallback.
const configSchema = `{
	"type": "object",
	"required": ["system_prompt", "automation_types", "available_actions", "response_templates", "business_info", "integrations"],
	"properties": {
		"system_prompt": {"type": "string", "minLength": 1},
		"automation_types": {"type": "array", "items": {"type": "string"}},
		"available_actions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "description"],
				"properties": {
					"name": {"type": "string"},
					"description": {"type": "string"},
					"trigger_words": {"type": "array", "items": {"type": "string"}},
					"parameters": {"type": "array", "items": {"type": "string"}}
				}
			}
		},
		"response_templates": {"type": "object"},
		"business_info": {"type": "object"},
		"integrations": {"type": "object"}
	}
}`

var compiledConfigSchema = gojsonschema.NewStringLoader(configSchema)

// Generator produces an AutomationConfig from a BusinessProfile. It never
// returns an error to callers: LLM failures, malformed responses, and schema
// violations all resolve to the deterministic fallback.
type Generator struct {
	completer llm.Completer
	logger    logger.Logger
}

func NewGenerator(completer llm.Completer, log logger.Logger) *Generator {
	return &Generator{
		completer: completer,
		logger:    log.WithFields(map[string]interface{}{"component": "config-generator"}),
	}
}

// Generate builds the automation configuration for a profile. Total function:
// failures are logged and recovered, never surfaced.
func (g *Generator) Generate(ctx context.Context, profile models.BusinessProfile) *AutomationConfig {
	raw, err := g.completer.Complete(ctx, llm.CompletionRequest{
		System:      generatorSystemPrompt,
		User:        buildConfigPrompt(profile),
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		g.logger.Warn("config generation call failed, using fallback", map[string]interface{}{
			"businessType": profile.BusinessType,
			"error":        err.Error(),
		})
		metrics.LLMFallbacks.WithLabelValues("generate_config").Inc()
		return fallbackConfig(profile)
	}

	cfg, err := parseGeneratedConfig(raw)
	if err != nil {
		g.logger.Warn("config generation returned unusable output, using fallback", map[string]interface{}{
			"businessType": profile.BusinessType,
			"error":        err.Error(),
		})
		metrics.LLMFallbacks.WithLabelValues("generate_config").Inc()
		return fallbackConfig(profile)
	}

	// The caller's requested capabilities win over whatever the model wrote.
	if len(cfg.AutomationTypes) == 0 {
		cfg.AutomationTypes = append([]string{}, profile.AutomationTypes...)
	}
	if cfg.Integrations == nil {
		cfg.Integrations = map[string]bool{}
	}
	cfg.Integrations["google_calendar"] = profile.ConnectCalendar

	g.logger.Info("bot configuration generated", map[string]interface{}{
		"businessType": profile.BusinessType,
		"actionCount":  len(cfg.AvailableActions),
	})
	return cfg
}

// parseGeneratedConfig extracts, schema-checks, and unmarshals the completion
// output.
func parseGeneratedConfig(raw string) (*AutomationConfig, error) {
	text, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	result, err := gojsonschema.Validate(compiledConfigSchema, gojsonschema.NewStringLoader(text))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return nil, fmt.Errorf("generated config violates schema: %s", strings.Join(details, "; "))
	}

	var cfg AutomationConfig
	if err := json.Unmarshal([]byte(text), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func buildConfigPrompt(profile models.BusinessProfile) string {
	calendar := "No requiere Google Calendar"
	if profile.ConnectCalendar {
		calendar = "Requiere integración con Google Calendar"
	}

	return fmt.Sprintf(`Crea una configuración detallada para un bot de WhatsApp para el siguiente negocio:

Tipo de negocio: %s
Descripción: %s
Tipos de automatización requeridos: %s
%s

Genera un JSON con la siguiente estructura:
{
  "system_prompt": "Un prompt detallado que define la personalidad y comportamiento del bot",
  "automation_types": ["lista de tipos de automatización"],
  "available_actions": [
    {
      "name": "nombre de la acción",
      "description": "descripción de lo que hace",
      "trigger_words": ["palabras que activan esta acción"],
      "parameters": ["parámetros requeridos"]
    }
  ],
  "response_templates": {
    "greeting": "Mensaje de bienvenida",
    "goodbye": "Mensaje de despedida",
    "help": "Mensaje de ayuda",
    "error": "Mensaje de error"
  },
  "business_info": {
    "name": "Nombre del negocio",
    "type": "%s",
    "services": ["lista de servicios principales"],
    "contact_info": "Información de contacto",
    "schedule": "Horario de atención"
  },
  "integrations": {
    "google_calendar": %t,
    "crm": true,
    "notifications": true
  }
}

El bot debe:
1. Sonar natural y profesional en español colombiano
2. Entender el contexto del negocio específico
3. Hacer preguntas relevantes para obtener información
4. Ofrecer opciones claras al usuario
5. Manejar errores gracefully
6. Ser persuasivo pero no agresivo

Responde SOLO con el JSON, sin explicaciones adicionales.`,
		profile.BusinessType,
		profile.Description,
		strings.Join(profile.AutomationTypes, ", "),
		calendar,
		profile.BusinessType,
		profile.ConnectCalendar,
	)
}
