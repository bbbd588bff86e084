// Package intent classifies inbound messages into a fixed intent set using
// the LLM, degrading to a neutral default whenever the call or its output is
// unusable.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"whatsbot/internal/common/logger"
	"whatsbot/internal/common/metrics"
	"whatsbot/internal/llm"
)

// Fixed intent enumeration. IntentGeneral doubles as the fallback.
const (
	IntentSchedule    = "schedule"
	IntentInquiry     = "inquiry"
	IntentSale        = "sale"
	IntentCancel      = "cancel"
	IntentInformation = "information"
	IntentGreeting    = "greeting"
	IntentFarewell    = "farewell"
	IntentComplaint   = "complaint"
	IntentGeneral     = "general"
)

// knownIntents guards against the model inventing labels outside the set.
var knownIntents = map[string]bool{
	IntentSchedule:    true,
	IntentInquiry:     true,
	IntentSale:        true,
	IntentCancel:      true,
	IntentInformation: true,
	IntentGreeting:    true,
	IntentFarewell:    true,
	IntentComplaint:   true,
	IntentGeneral:     true,
}

const classifierSystemPrompt = "Eres un clasificador de intenciones para mensajes de WhatsApp. Analiza el mensaje y determina la intención principal."

// Entity is a span of the message the classifier labeled.
type Entity struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Position []int  `json:"position,omitempty"`
}

// Result is always fully populated so downstream dispatch never branches on
// partial data.
type Result struct {
	Intent          string   `json:"intent"`
	Confidence      float64  `json:"confidence"`
	Entities        []Entity `json:"entities"`
	SuggestedAction string   `json:"suggested_action"`
}

// Context supplies conversation framing for the classification prompt.
type Context struct {
	BusinessType   string
	RecentMessages []string
}

// fallbackResult is the guaranteed answer when classification cannot complete.
func fallbackResult() *Result {
	return &Result{
		Intent:          IntentGeneral,
		Confidence:      0.5,
		Entities:        []Entity{},
		SuggestedAction: "continue_conversation",
	}
}

// Classifier is a stateless wrapper around the completion client.
type Classifier struct {
	completer llm.Completer
	logger    logger.Logger
}

func NewClassifier(completer llm.Completer, log logger.Logger) *Classifier {
	return &Classifier{
		completer: completer,
		logger:    log.WithFields(map[string]interface{}{"component": "intent-classifier"}),
	}
}

// Classify returns a Result for any message text. Total function: every
// failure path yields the fallback result.
func (c *Classifier) Classify(ctx context.Context, message string, cctx Context) *Result {
	raw, err := c.completer.Complete(ctx, llm.CompletionRequest{
		System:      classifierSystemPrompt,
		User:        buildClassificationPrompt(message, cctx),
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		c.logger.Warn("intent classification call failed", map[string]interface{}{
			"error": err.Error(),
		})
		metrics.LLMFallbacks.WithLabelValues("classify_intent").Inc()
		return fallbackResult()
	}

	result, err := parseClassification(raw)
	if err != nil {
		c.logger.Warn("intent classification returned unusable output", map[string]interface{}{
			"error": err.Error(),
		})
		metrics.LLMFallbacks.WithLabelValues("classify_intent").Inc()
		return fallbackResult()
	}

	c.logger.Debug("message classified", map[string]interface{}{
		"intent":     result.Intent,
		"confidence": result.Confidence,
	})
	return result
}

func parseClassification(raw string) (*Result, error) {
	text, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("unmarshal classification: %w", err)
	}

	if !knownIntents[result.Intent] {
		return nil, fmt.Errorf("unknown intent %q", result.Intent)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v outside [0,1]", result.Confidence)
	}
	if result.Entities == nil {
		result.Entities = []Entity{}
	}
	if result.SuggestedAction == "" {
		result.SuggestedAction = "continue_conversation"
	}
	return &result, nil
}

func buildClassificationPrompt(message string, cctx Context) string {
	businessType := cctx.BusinessType
	if businessType == "" {
		businessType = "general"
	}
	history := "Ninguno"
	if len(cctx.RecentMessages) > 0 {
		history = strings.Join(cctx.RecentMessages, " | ")
	}

	return fmt.Sprintf(`Clasifica la intención del siguiente mensaje de WhatsApp:

Mensaje: "%s"

Contexto:
- Tipo de negocio: %s
- Historial reciente: %s

Las posibles intenciones son:
- schedule: Usuario quiere hacer una cita/reserva
- inquiry: Usuario tiene una pregunta general
- sale: Usuario está interesado en comprar
- cancel: Usuario quiere cancelar algo
- information: Usuario solicita información
- greeting: Mensaje de saludo inicial
- farewell: Mensaje de despedida
- complaint: Usuario está inconforme
- general: Intención no específica

Responde con un JSON:
{
  "intent": "nombre de la intención",
  "confidence": 0.0-1.0,
  "entities": [
    {
      "type": "tipo de entidad",
      "value": "valor extraído",
      "position": [inicio, fin]
    }
  ],
  "suggested_action": "acción recomendada"
}

Responde SOLO con el JSON.`, message, businessType, history)
}
