// Package store persists users, bots, contacts, and conversations in
// PostgreSQL, with a Redis cache in front of the hot contact and recent
// conversation lookups.
package store

import (
	"context"

	"whatsbot/internal/models"
)

// Users reads and mutates platform accounts.
type Users interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserSubscription(ctx context.Context, userID, status, gatewayTransactionID string) error
}

// Bots manages bot records and their lifecycle fields.
type Bots interface {
	CreateBot(ctx context.Context, bot *models.Bot) error
	GetBot(ctx context.Context, id string) (*models.Bot, error)
	ListBotsByUser(ctx context.Context, userID string) ([]*models.Bot, error)
	UpdateBotWorkflow(ctx context.Context, botID, workflowID, status string) error
	UpdateBotStatus(ctx context.Context, botID, status string) error
}

// Contacts tracks message senders per bot.
type Contacts interface {
	UpsertContact(ctx context.Context, botID, phone string) (*models.Contact, error)
}

// Conversations persists the message/reply/intent history.
type Conversations interface {
	SaveConversation(ctx context.Context, conv *models.Conversation) error
	RecentConversations(ctx context.Context, botID, phone string, limit int) ([]*models.Conversation, error)
}

// Store aggregates every repository behind one dependency.
type Store interface {
	Users
	Bots
	Contacts
	Conversations
}
