// Package bots orchestrates the bot lifecycle: configuration generation,
// persistence, and automation graph registration on the workflow engine.
package bots

import (
	"context"
	"encoding/json"

	"whatsbot/internal/botconfig"
	"whatsbot/internal/common/errors"
	"whatsbot/internal/common/logger"
	"whatsbot/internal/graph"
	"whatsbot/internal/models"
	"whatsbot/internal/store"
)

// Generator produces the automation configuration for a new bot.
type Generator interface {
	Generate(ctx context.Context, profile models.BusinessProfile) *botconfig.AutomationConfig
}

// Lifecycle manages graphs on the workflow engine.
type Lifecycle interface {
	Register(ctx context.Context, g *graph.Graph) (string, error)
	Update(ctx context.Context, workflowID string, g *graph.Graph) error
	Activate(ctx context.Context, workflowID string) error
	Deactivate(ctx context.Context, workflowID string) error
	Delete(ctx context.Context, workflowID string) error
}

// CreateBotRequest carries everything a new bot needs.
type CreateBotRequest struct {
	UserID         string                 `json:"user_id"`
	Name           string                 `json:"name"`
	WhatsAppNumber string                 `json:"whatsapp_number"`
	Profile        models.BusinessProfile `json:"profile"`
}

// Service wires the bot flows together.
type Service struct {
	store     store.Store
	generator Generator
	lifecycle Lifecycle
	endpoints graph.Endpoints
	logger    logger.Logger
}

func NewService(st store.Store, gen Generator, lc Lifecycle, ep graph.Endpoints, log logger.Logger) *Service {
	return &Service{
		store:     st,
		generator: gen,
		lifecycle: lc,
		endpoints: ep,
		logger:    log,
	}
}

// CreateBot provisions a bot end to end. The bot record always persists; if
// graph registration or activation fails, the bot stays in setup with an
// empty workflow id and the failure is logged for a later retry.
func (s *Service) CreateBot(ctx context.Context, req CreateBotRequest) (*models.Bot, error) {
	if req.UserID == "" {
		return nil, errors.NewValidationFailedError("user id is required")
	}
	if req.Name == "" {
		return nil, errors.NewValidationFailedError("bot name is required")
	}
	if req.Profile.BusinessType == "" {
		return nil, errors.NewValidationFailedError("business type is required")
	}

	cfg := s.generator.Generate(ctx, req.Profile)
	rawCfg, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.NewValidationFailedError("automation config is not serializable")
	}

	bot := &models.Bot{
		UserID:         req.UserID,
		Name:           req.Name,
		BusinessType:   req.Profile.BusinessType,
		Description:    req.Profile.Description,
		WhatsAppNumber: req.WhatsAppNumber,
		Status:         models.StatusSetup,
		ConfigJSON:     rawCfg,
	}
	if err := s.store.CreateBot(ctx, bot); err != nil {
		return nil, err
	}

	s.registerGraph(ctx, bot, cfg)
	return bot, nil
}

// registerGraph compiles and registers the bot's graph. Failures never
// propagate; the bot simply stays in setup.
func (s *Service) registerGraph(ctx context.Context, bot *models.Bot, cfg *botconfig.AutomationConfig) {
	g, err := graph.Compile(bot.ID, bot.Name, cfg, s.endpoints)
	if err != nil {
		s.logger.WithError(err).Error("Graph compilation failed, bot left in setup", map[string]interface{}{
			"bot_id": bot.ID,
		})
		return
	}

	workflowID, err := s.lifecycle.Register(ctx, g)
	if err != nil {
		s.logger.WithError(err).Warn("Graph registration failed, bot left in setup", map[string]interface{}{
			"bot_id": bot.ID,
		})
		return
	}

	if err := s.lifecycle.Activate(ctx, workflowID); err != nil {
		s.logger.WithError(err).Warn("Graph activation failed, bot left in setup", map[string]interface{}{
			"bot_id":      bot.ID,
			"workflow_id": workflowID,
		})
		return
	}

	if err := s.store.UpdateBotWorkflow(ctx, bot.ID, workflowID, models.StatusActive); err != nil {
		s.logger.WithError(err).Error("Bot workflow update failed after activation", map[string]interface{}{
			"bot_id":      bot.ID,
			"workflow_id": workflowID,
		})
		return
	}

	bot.WorkflowID = workflowID
	bot.Status = models.StatusActive
	s.logger.Info("Bot activated", map[string]interface{}{
		"bot_id":      bot.ID,
		"workflow_id": workflowID,
	})
}

// ListBots returns every bot the user owns.
func (s *Service) ListBots(ctx context.Context, userID string) ([]*models.Bot, error) {
	if userID == "" {
		return nil, errors.NewValidationFailedError("user id is required")
	}
	return s.store.ListBotsByUser(ctx, userID)
}

// SetStatus flips a bot between active and paused, toggling the engine graph
// with it. Unlike creation, a lifecycle failure here is surfaced: the caller
// asked for this specific transition.
func (s *Service) SetStatus(ctx context.Context, botID, status string) (*models.Bot, error) {
	if status != models.StatusActive && status != models.StatusPaused {
		return nil, errors.NewValidationFailedError("status must be active or paused")
	}

	bot, err := s.store.GetBot(ctx, botID)
	if err != nil {
		return nil, err
	}

	if bot.WorkflowID != "" {
		switch status {
		case models.StatusActive:
			err = s.lifecycle.Activate(ctx, bot.WorkflowID)
		case models.StatusPaused:
			err = s.lifecycle.Deactivate(ctx, bot.WorkflowID)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateBotStatus(ctx, botID, status); err != nil {
		return nil, err
	}
	bot.Status = status
	return bot, nil
}

// RetrySetup re-runs graph registration for a bot stuck in setup, and
// refreshes the engine definition when a workflow id already exists.
func (s *Service) RetrySetup(ctx context.Context, botID string) (*models.Bot, error) {
	bot, err := s.store.GetBot(ctx, botID)
	if err != nil {
		return nil, err
	}

	cfg, err := botconfig.Parse(bot.ConfigJSON)
	if err != nil {
		return nil, err
	}

	if bot.WorkflowID == "" {
		s.registerGraph(ctx, bot, cfg)
		return bot, nil
	}

	g, err := graph.Compile(bot.ID, bot.Name, cfg, s.endpoints)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.Update(ctx, bot.WorkflowID, g); err != nil {
		return nil, err
	}
	if err := s.lifecycle.Activate(ctx, bot.WorkflowID); err != nil {
		return nil, err
	}
	if bot.Status != models.StatusActive {
		if err := s.store.UpdateBotStatus(ctx, bot.ID, models.StatusActive); err != nil {
			return nil, err
		}
		bot.Status = models.StatusActive
	}
	return bot, nil
}

// Decommission removes the bot's engine graph and pauses the record. The
// record itself is retained for history. A failed engine removal is logged
// and the bot is still paused.
func (s *Service) Decommission(ctx context.Context, botID string) error {
	bot, err := s.store.GetBot(ctx, botID)
	if err != nil {
		return err
	}

	if bot.WorkflowID != "" {
		if err := s.lifecycle.Delete(ctx, bot.WorkflowID); err != nil {
			s.logger.WithError(err).Warn("Engine graph removal failed", map[string]interface{}{
				"bot_id":      botID,
				"workflow_id": bot.WorkflowID,
			})
		}
	}
	return s.store.UpdateBotStatus(ctx, botID, models.StatusPaused)
}
