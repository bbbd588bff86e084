package models

import "time"

// Contact lifecycle states.
const (
	ContactLead     = "lead"
	ContactCustomer = "customer"
	ContactInactive = "inactive"
)

// Contact is a message-channel sender tracked per bot.
type Contact struct {
	ID              string    `json:"id"`
	BotID           string    `json:"bot_id"`
	Phone           string    `json:"phone"`
	Name            string    `json:"name"`
	Status          string    `json:"status"`
	LastInteraction time.Time `json:"last_interaction"`
	CreatedAt       time.Time `json:"created_at"`
}
