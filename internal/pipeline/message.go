// Package pipeline drives the two inbound webhook flows: the message channel
// (classify and reply) and the payment channel (verify and apply). Each
// execution is request-scoped; collaborators are injected once at startup.
package pipeline

import (
	"context"
	"time"

	"whatsbot/internal/botconfig"
	"whatsbot/internal/common/errors"
	"whatsbot/internal/common/logger"
	"whatsbot/internal/common/metrics"
	"whatsbot/internal/intent"
	"whatsbot/internal/models"
	"whatsbot/internal/store"
)

// Stage names the pipeline states in execution order. An execution is
// terminal on its first hard failure or on acknowledgment.
type Stage string

const (
	StageReceived        Stage = "received"
	StageAuthenticated   Stage = "authenticated"
	StageParsed          Stage = "parsed"
	StageContactResolved Stage = "contact_resolved"
	StageClassified      Stage = "classified"
	StageDispatched      Stage = "dispatched"
	StageDelivered       Stage = "delivered"
	StagePersisted       Stage = "persisted"
	StageAcknowledged    Stage = "acknowledged"
)

// InboundMessage is the message-channel webhook payload.
type InboundMessage struct {
	From      string      `json:"from"`
	Type      string      `json:"type"`
	Text      MessageText `json:"text"`
	Timestamp string      `json:"timestamp"`
	ID        string      `json:"id"`
}

type MessageText struct {
	Body string `json:"body"`
}

// Outcome reports how far one execution got and what it produced. Delivered
// and Persisted are best-effort flags: false means the stage failed but the
// execution was still acknowledged.
type Outcome struct {
	Stage     Stage
	Intent    string
	Response  string
	Delivered bool
	Persisted bool
}

// Sender delivers the reply on the messaging channel.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Classifier resolves the intent of one message.
type Classifier interface {
	Classify(ctx context.Context, message string, cctx intent.Context) *intent.Result
}

// Responder produces the reply text for a classified message.
type Responder interface {
	Respond(ctx context.Context, bot *models.Bot, message string, result *intent.Result) string
}

// MessagePipeline handles inbound message-channel webhooks for all bots.
type MessagePipeline struct {
	verifyToken string
	store       store.Store
	classifier  Classifier
	responder   Responder
	sender      Sender
	logger      logger.Logger
}

func NewMessagePipeline(verifyToken string, st store.Store, cl Classifier, re Responder, se Sender, log logger.Logger) *MessagePipeline {
	return &MessagePipeline{
		verifyToken: verifyToken,
		store:       st,
		classifier:  cl,
		responder:   re,
		sender:      se,
		logger:      log,
	}
}

// recentContextLimit bounds how much history feeds the classifier.
const recentContextLimit = 5

// Process runs one inbound message through the pipeline. An error return
// means a hard rejection (bad token, unusable payload); everything past
// authentication is acknowledged, with degraded stages recorded on the
// Outcome.
func (p *MessagePipeline) Process(ctx context.Context, botID, token string, msg InboundMessage) (*Outcome, error) {
	started := time.Now()
	metrics.WebhooksReceived.WithLabelValues("whatsapp").Inc()
	out := &Outcome{Stage: StageReceived}

	if p.verifyToken != "" && token != p.verifyToken {
		metrics.WebhooksRejected.WithLabelValues("whatsapp", "bad_token").Inc()
		p.logger.Warn("Webhook token mismatch", map[string]interface{}{"bot_id": botID})
		return out, errors.NewAuthenticationFailedError("verification token mismatch")
	}
	out.Stage = StageAuthenticated

	if msg.From == "" {
		metrics.WebhooksRejected.WithLabelValues("whatsapp", "missing_sender").Inc()
		return out, errors.NewValidationFailedError("message sender is required")
	}
	out.Stage = StageParsed

	if msg.Type != "text" || msg.Text.Body == "" {
		p.logger.Info("Non-text message acknowledged without classification", map[string]interface{}{
			"bot_id": botID,
			"from":   msg.From,
			"type":   msg.Type,
		})
		out.Stage = StageAcknowledged
		metrics.PipelineDuration.WithLabelValues("whatsapp").Observe(time.Since(started).Seconds())
		return out, nil
	}

	bot, err := p.store.GetBot(ctx, botID)
	if err != nil {
		metrics.PipelineStageFailures.WithLabelValues(string(StageContactResolved)).Inc()
		p.logger.WithError(err).Warn("Bot lookup failed, continuing without profile", map[string]interface{}{
			"bot_id": botID,
		})
		bot = &models.Bot{ID: botID}
	}

	contact, err := p.store.UpsertContact(ctx, botID, msg.From)
	if err != nil {
		metrics.PipelineStageFailures.WithLabelValues(string(StageContactResolved)).Inc()
		p.logger.WithError(err).Warn("Contact resolution failed, continuing without contact", map[string]interface{}{
			"bot_id": botID,
			"from":   msg.From,
		})
	}
	out.Stage = StageContactResolved

	cctx := intent.Context{BusinessType: bot.BusinessType}
	if recent, err := p.store.RecentConversations(ctx, botID, msg.From, recentContextLimit); err == nil {
		for _, conv := range recent {
			cctx.RecentMessages = append(cctx.RecentMessages, conv.Message)
		}
	} else {
		metrics.PipelineStageFailures.WithLabelValues(string(StageClassified)).Inc()
		p.logger.WithError(err).Warn("Recent context unavailable", map[string]interface{}{"bot_id": botID})
	}

	result := p.classifier.Classify(ctx, msg.Text.Body, cctx)
	out.Stage = StageClassified
	out.Intent = result.Intent

	out.Response = p.responder.Respond(ctx, bot, msg.Text.Body, result)
	out.Stage = StageDispatched

	if _, err := p.sender.SendText(ctx, msg.From, out.Response); err != nil {
		metrics.PipelineStageFailures.WithLabelValues(string(StageDelivered)).Inc()
		p.logger.WithError(err).Error("Reply delivery failed", map[string]interface{}{
			"bot_id": botID,
			"to":     msg.From,
		})
	} else {
		out.Delivered = true
	}
	out.Stage = StageDelivered

	conv := &models.Conversation{
		BotID:    botID,
		Phone:    msg.From,
		Message:  msg.Text.Body,
		Response: out.Response,
		Intent:   result.Intent,
	}
	if contact != nil {
		conv.ContactID = contact.ID
	}
	if err := p.store.SaveConversation(ctx, conv); err != nil {
		metrics.PipelineStageFailures.WithLabelValues(string(StagePersisted)).Inc()
		p.logger.WithError(err).Error("Conversation persistence failed", map[string]interface{}{
			"bot_id": botID,
		})
	} else {
		out.Persisted = true
	}
	out.Stage = StagePersisted

	out.Stage = StageAcknowledged
	metrics.PipelineDuration.WithLabelValues("whatsapp").Observe(time.Since(started).Seconds())
	p.logger.Info("Message acknowledged", map[string]interface{}{
		"bot_id":    botID,
		"intent":    result.Intent,
		"delivered": out.Delivered,
		"persisted": out.Persisted,
	})
	return out, nil
}

// VerifyChallenge answers the channel's endpoint-ownership handshake. It
// returns the literal challenge value on a subscribe request carrying the
// configured token.
func (p *MessagePipeline) VerifyChallenge(mode, token, challenge string) (string, error) {
	if mode == "" || token == "" {
		return "", errors.NewValidationFailedError("mode and verify_token are required")
	}
	if mode != "subscribe" || token != p.verifyToken {
		metrics.WebhooksRejected.WithLabelValues("whatsapp", "bad_challenge_token").Inc()
		return "", errors.NewAuthenticationFailedError("verification token mismatch")
	}
	p.logger.Info("Webhook endpoint verified", nil)
	return challenge, nil
}

// TemplateResponder replies from the bot's configured response templates,
// keyed by intent, with a generic default. It never calls out, so dispatch
// cannot fail.
type TemplateResponder struct {
	logger logger.Logger
}

func NewTemplateResponder(log logger.Logger) *TemplateResponder {
	return &TemplateResponder{logger: log}
}

const defaultReply = "Gracias por tu mensaje. En un momento te atendemos. 😊"

// templateKeyForIntent maps classifier intents onto template names the
// config generator produces.
func templateKeyForIntent(in string) string {
	switch in {
	case intent.IntentGreeting:
		return "greeting"
	case intent.IntentFarewell:
		return "goodbye"
	case intent.IntentInformation, intent.IntentInquiry:
		return "help"
	default:
		return ""
	}
}

func (r *TemplateResponder) Respond(ctx context.Context, bot *models.Bot, message string, result *intent.Result) string {
	cfg, err := botconfig.Parse(bot.ConfigJSON)
	if err != nil {
		r.logger.WithError(err).Warn("Bot config unreadable, using default reply", map[string]interface{}{
			"bot_id": bot.ID,
		})
		return defaultReply
	}

	if key := templateKeyForIntent(result.Intent); key != "" {
		if tpl, ok := cfg.ResponseTemplates[key]; ok && tpl != "" {
			return tpl
		}
	}
	if tpl, ok := cfg.ResponseTemplates["help"]; ok && tpl != "" {
		return tpl
	}
	return defaultReply
}
