// Package server exposes the HTTP surface: webhook endpoints, bot management,
// health, and metrics.
package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"whatsbot/internal/bots"
	"whatsbot/internal/common/errors"
	"whatsbot/internal/common/logger"
	"whatsbot/internal/models"
	"whatsbot/internal/pipeline"
)

// maxWebhookBody bounds inbound payload reads.
const maxWebhookBody = 1 << 20

// Server holds the request handlers and their collaborators.
type Server struct {
	messages *pipeline.MessagePipeline
	payments *pipeline.PaymentPipeline
	bots     *bots.Service
	logger   logger.Logger
}

func New(messages *pipeline.MessagePipeline, payments *pipeline.PaymentPipeline, botSvc *bots.Service, log logger.Logger) *Server {
	return &Server{
		messages: messages,
		payments: payments,
		bots:     botSvc,
		logger:   log,
	}
}

// Router wires all routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhooks := r.Group("/api/webhooks")
	{
		webhooks.GET("/whatsapp", s.verifyWhatsApp)
		webhooks.POST("/whatsapp/:botID", s.receiveWhatsApp)
		webhooks.POST("/payments", s.receivePayment)
	}

	botRoutes := r.Group("/api/bots")
	{
		botRoutes.POST("", s.createBot)
		botRoutes.GET("", s.listBots)
		botRoutes.PATCH("/:id/status", s.setBotStatus)
		botRoutes.POST("/:id/retry", s.retryBotSetup)
		botRoutes.DELETE("/:id", s.decommissionBot)
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeAuthenticationFailed, errors.ErrCodeSignatureInvalid:
		return http.StatusUnauthorized
	case errors.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case errors.ErrCodeRecordNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) verifyWhatsApp(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	result, err := s.messages.VerifyChallenge(mode, token, challenge)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeValidationFailed {
			c.String(http.StatusBadRequest, "missing required parameters")
			return
		}
		c.String(http.StatusForbidden, "invalid verification token")
		return
	}
	c.String(http.StatusOK, result)
}

func (s *Server) receiveWhatsApp(c *gin.Context) {
	var msg pipeline.InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}

	token := c.GetHeader("X-Hub-Verify-Token")
	out, err := s.messages.Process(c.Request.Context(), c.Param("botID"), token, msg)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "webhook processed",
		"intent":  out.Intent,
	})
}

func (s *Server) receivePayment(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable body"})
		return
	}

	signature := c.GetHeader("X-Wompi-Signature")
	if err := s.payments.Process(c.Request.Context(), body, signature); err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "webhook processed"})
}

func (s *Server) createBot(c *gin.Context) {
	var req bots.CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}

	bot, err := s.bots.CreateBot(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "bot": bot})
}

func (s *Server) listBots(c *gin.Context) {
	list, err := s.bots.ListBots(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bots": list})
}

func (s *Server) setBotStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}

	bot, err := s.bots.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bot": bot})
}

func (s *Server) retryBotSetup(c *gin.Context) {
	bot, err := s.bots.RetrySetup(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	activated := bot.Status == models.StatusActive && bot.WorkflowID != ""
	c.JSON(http.StatusOK, gin.H{"success": true, "bot": bot, "activated": activated})
}

func (s *Server) decommissionBot(c *gin.Context) {
	if err := s.bots.Decommission(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "bot decommissioned"})
}
