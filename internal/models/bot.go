package models

import (
	"encoding/json"
	"time"
)

// Bot status lifecycle. A bot is created in StatusSetup and moves to
// StatusActive once its automation graph is registered and activated.
const (
	StatusSetup  = "setup"
	StatusActive = "active"
	StatusPaused = "paused"
)

// Business types with dedicated fallback configurations. Any other value is
// served by the generic default.
const (
	BusinessBarbershop = "barbershop"
	BusinessRestaurant = "restaurant"
	BusinessRetail     = "retail"
)

// Bot is one configured automation instance for one business.
type Bot struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Name           string          `json:"name"`
	BusinessType   string          `json:"business_type"`
	Description    string          `json:"description"`
	WhatsAppNumber string          `json:"whatsapp_number"`
	Status         string          `json:"status"`
	ConfigJSON     json.RawMessage `json:"config_json"`
	WorkflowID     string          `json:"workflow_id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// BusinessProfile is the immutable input supplied once per bot, from which
// the automation configuration is generated.
type BusinessProfile struct {
	BusinessType    string   `json:"business_type"`
	Description     string   `json:"description"`
	AutomationTypes []string `json:"automation_types"` // scheduling, sales, support, marketing
	ConnectCalendar bool     `json:"connect_calendar"`
}
