package models

import "time"

// Conversation is one persisted message/reply/intent triple.
type Conversation struct {
	ID        string    `json:"id"`
	BotID     string    `json:"bot_id"`
	ContactID string    `json:"contact_id"`
	Phone     string    `json:"phone"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Intent    string    `json:"intent"`
	CreatedAt time.Time `json:"created_at"`
}
