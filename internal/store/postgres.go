package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"whatsbot/internal/common/errors"
	"whatsbot/internal/common/logger"
	"whatsbot/internal/models"
)

// PostgresStore is the canonical Store implementation.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: log}
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `
		SELECT id, email, name, subscription_status, COALESCE(wompi_subscription_id, ''), created_at, updated_at
		FROM users
		WHERE email = $1`

	var u models.User
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.Name, &u.SubscriptionStatus, &u.GatewayTransaction, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewRecordNotFoundError("user", email)
	}
	if err != nil {
		s.logger.WithError(err).Error("User lookup failed", map[string]interface{}{"email": email})
		return nil, errors.NewStoreQueryFailedError("get_user_by_email", err)
	}
	return &u, nil
}

func (s *PostgresStore) UpdateUserSubscription(ctx context.Context, userID, status, gatewayTransactionID string) error {
	const query = `
		UPDATE users
		SET subscription_status = $2, wompi_subscription_id = $3, updated_at = $4
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, userID, status, gatewayTransactionID, time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).Error("Subscription update failed", map[string]interface{}{"user_id": userID})
		return errors.NewStoreQueryFailedError("update_user_subscription", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewRecordNotFoundError("user", userID)
	}

	s.logger.Info("Subscription updated", map[string]interface{}{
		"user_id": userID,
		"status":  status,
	})
	return nil
}

func (s *PostgresStore) CreateBot(ctx context.Context, bot *models.Bot) error {
	if bot.ID == "" {
		bot.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	bot.CreatedAt = now
	bot.UpdatedAt = now

	const query = `
		INSERT INTO bots (id, user_id, name, business_type, description, whatsapp_number, status, config_json, workflow_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		bot.ID, bot.UserID, bot.Name, bot.BusinessType, bot.Description,
		bot.WhatsAppNumber, bot.Status, []byte(bot.ConfigJSON), bot.WorkflowID,
		bot.CreatedAt, bot.UpdatedAt,
	)
	if err != nil {
		s.logger.WithError(err).Error("Bot insert failed", map[string]interface{}{"user_id": bot.UserID})
		return errors.NewStoreQueryFailedError("create_bot", err)
	}
	return nil
}

func (s *PostgresStore) GetBot(ctx context.Context, id string) (*models.Bot, error) {
	const query = `
		SELECT id, user_id, name, business_type, description, whatsapp_number, status, config_json, COALESCE(workflow_id, ''), created_at, updated_at
		FROM bots
		WHERE id = $1`

	var b models.Bot
	var cfg []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.UserID, &b.Name, &b.BusinessType, &b.Description,
		&b.WhatsAppNumber, &b.Status, &cfg, &b.WorkflowID,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewRecordNotFoundError("bot", id)
	}
	if err != nil {
		return nil, errors.NewStoreQueryFailedError("get_bot", err)
	}
	b.ConfigJSON = cfg
	return &b, nil
}

func (s *PostgresStore) ListBotsByUser(ctx context.Context, userID string) ([]*models.Bot, error) {
	const query = `
		SELECT id, user_id, name, business_type, description, whatsapp_number, status, config_json, COALESCE(workflow_id, ''), created_at, updated_at
		FROM bots
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.NewStoreQueryFailedError("list_bots_by_user", err)
	}
	defer rows.Close()

	var bots []*models.Bot
	for rows.Next() {
		var b models.Bot
		var cfg []byte
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.Name, &b.BusinessType, &b.Description,
			&b.WhatsAppNumber, &b.Status, &cfg, &b.WorkflowID,
			&b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, errors.NewStoreQueryFailedError("list_bots_by_user", err)
		}
		b.ConfigJSON = cfg
		bots = append(bots, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreQueryFailedError("list_bots_by_user", err)
	}
	return bots, nil
}

func (s *PostgresStore) UpdateBotWorkflow(ctx context.Context, botID, workflowID, status string) error {
	const query = `
		UPDATE bots
		SET workflow_id = $2, status = $3, updated_at = $4
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, botID, workflowID, status, time.Now().UTC())
	if err != nil {
		return errors.NewStoreQueryFailedError("update_bot_workflow", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewRecordNotFoundError("bot", botID)
	}
	return nil
}

func (s *PostgresStore) UpdateBotStatus(ctx context.Context, botID, status string) error {
	const query = `
		UPDATE bots
		SET status = $2, updated_at = $3
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, botID, status, time.Now().UTC())
	if err != nil {
		return errors.NewStoreQueryFailedError("update_bot_status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewRecordNotFoundError("bot", botID)
	}
	return nil
}

// UpsertContact creates the contact on first sight of a (bot, phone) pair and
// refreshes last_interaction on every subsequent one. New contacts start as
// leads.
func (s *PostgresStore) UpsertContact(ctx context.Context, botID, phone string) (*models.Contact, error) {
	const query = `
		INSERT INTO contacts (id, bot_id, phone, name, status, last_interaction, created_at)
		VALUES ($1, $2, $3, '', $4, $5, $5)
		ON CONFLICT (bot_id, phone)
		DO UPDATE SET last_interaction = EXCLUDED.last_interaction
		RETURNING id, bot_id, phone, name, status, last_interaction, created_at`

	now := time.Now().UTC()
	var c models.Contact
	err := s.db.QueryRowContext(ctx, query, uuid.New().String(), botID, phone, models.ContactLead, now).Scan(
		&c.ID, &c.BotID, &c.Phone, &c.Name, &c.Status, &c.LastInteraction, &c.CreatedAt,
	)
	if err != nil {
		s.logger.WithError(err).Error("Contact upsert failed", map[string]interface{}{
			"bot_id": botID,
			"phone":  phone,
		})
		return nil, errors.NewStoreQueryFailedError("upsert_contact", err)
	}
	return &c, nil
}

func (s *PostgresStore) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	conv.CreatedAt = time.Now().UTC()

	const query = `
		INSERT INTO conversations (id, bot_id, contact_id, phone, message, response, intent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID, conv.BotID, conv.ContactID, conv.Phone,
		conv.Message, conv.Response, conv.Intent, conv.CreatedAt,
	)
	if err != nil {
		s.logger.WithError(err).Error("Conversation insert failed", map[string]interface{}{
			"bot_id": conv.BotID,
		})
		return errors.NewStoreQueryFailedError("save_conversation", err)
	}
	return nil
}

func (s *PostgresStore) RecentConversations(ctx context.Context, botID, phone string, limit int) ([]*models.Conversation, error) {
	const query = `
		SELECT id, bot_id, contact_id, phone, message, response, intent, created_at
		FROM conversations
		WHERE bot_id = $1 AND phone = $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, botID, phone, limit)
	if err != nil {
		return nil, errors.NewStoreQueryFailedError("recent_conversations", err)
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(
			&c.ID, &c.BotID, &c.ContactID, &c.Phone,
			&c.Message, &c.Response, &c.Intent, &c.CreatedAt,
		); err != nil {
			return nil, errors.NewStoreQueryFailedError("recent_conversations", err)
		}
		convs = append(convs, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreQueryFailedError("recent_conversations", err)
	}
	return convs, nil
}
