// Package botconfig turns a business profile into a structurally complete
// automation configuration, via the LLM when possible and a deterministic
// per-business-type fallback otherwise.
package botconfig

import (
	"encoding/json"
	"fmt"

	"whatsbot/internal/common/errors"
)

// AutomationConfig is the configuration blob owned by a bot record. It is
// always structurally complete regardless of which generator produced it, so
// callers never special-case the source.
type AutomationConfig struct {
	SystemPrompt      string            `json:"system_prompt"`
	AutomationTypes   []string          `json:"automation_types"`
	AvailableActions  []Action          `json:"available_actions"`
	ResponseTemplates map[string]string `json:"response_templates"`
	BusinessInfo      BusinessInfo      `json:"business_info"`
	Integrations      map[string]bool   `json:"integrations"`
}

// Action identifies something the automation graph can execute. Trigger words
// and parameters are advisory metadata for the dispatch node, not an enforced
// schema.
type Action struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	TriggerWords []string `json:"trigger_words"`
	Parameters   []string `json:"parameters"`
}

// BusinessInfo describes the business the bot fronts.
type BusinessInfo struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Services    []string `json:"services"`
	ContactInfo string   `json:"contact_info"`
	Schedule    string   `json:"schedule"`
}

// Parse decodes a persisted configuration blob. An empty blob is an error;
// callers that can tolerate a missing config handle it themselves.
func Parse(raw []byte) (*AutomationConfig, error) {
	if len(raw) == 0 {
		return nil, errors.NewValidationFailedError("empty automation config")
	}
	var cfg AutomationConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.NewValidationFailedError(fmt.Sprintf("decode automation config: %v", err))
	}
	return &cfg, nil
}
