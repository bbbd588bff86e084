package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbot/internal/botconfig"
	"whatsbot/internal/bots"
	"whatsbot/internal/common/errors"
	"whatsbot/internal/common/logger"
	"whatsbot/internal/graph"
	"whatsbot/internal/intent"
	"whatsbot/internal/models"
	"whatsbot/internal/pipeline"
	"whatsbot/internal/store"
)

const (
	verifyToken   = "verify-me"
	paymentSecret = "pay-secret"
)

// memStore backs every repository with maps.
type memStore struct {
	store.Store
	users map[string]*models.User
	bots  map[string]*models.Bot
	saved []*models.Conversation
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*models.User{}, bots: map[string]*models.Bot{}}
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, errors.NewRecordNotFoundError("user", email)
	}
	return u, nil
}

func (m *memStore) UpdateUserSubscription(ctx context.Context, userID, status, txID string) error {
	for _, u := range m.users {
		if u.ID == userID {
			u.SubscriptionStatus = status
			u.GatewayTransaction = txID
			return nil
		}
	}
	return errors.NewRecordNotFoundError("user", userID)
}

func (m *memStore) CreateBot(ctx context.Context, bot *models.Bot) error {
	if bot.ID == "" {
		bot.ID = "bot-1"
	}
	m.bots[bot.ID] = bot
	return nil
}

func (m *memStore) GetBot(ctx context.Context, id string) (*models.Bot, error) {
	b, ok := m.bots[id]
	if !ok {
		return nil, errors.NewRecordNotFoundError("bot", id)
	}
	return b, nil
}

func (m *memStore) ListBotsByUser(ctx context.Context, userID string) ([]*models.Bot, error) {
	var out []*models.Bot
	for _, b := range m.bots {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) UpdateBotWorkflow(ctx context.Context, botID, workflowID, status string) error {
	b, ok := m.bots[botID]
	if !ok {
		return errors.NewRecordNotFoundError("bot", botID)
	}
	b.WorkflowID = workflowID
	b.Status = status
	return nil
}

func (m *memStore) UpdateBotStatus(ctx context.Context, botID, status string) error {
	b, ok := m.bots[botID]
	if !ok {
		return errors.NewRecordNotFoundError("bot", botID)
	}
	b.Status = status
	return nil
}

func (m *memStore) UpsertContact(ctx context.Context, botID, phone string) (*models.Contact, error) {
	return &models.Contact{ID: "c-1", BotID: botID, Phone: phone, Status: models.ContactLead}, nil
}

func (m *memStore) RecentConversations(ctx context.Context, botID, phone string, limit int) ([]*models.Conversation, error) {
	return nil, nil
}

func (m *memStore) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	m.saved = append(m.saved, conv)
	return nil
}

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, message string, cctx intent.Context) *intent.Result {
	return &intent.Result{Intent: intent.IntentSchedule, Confidence: 0.9, Entities: []intent.Entity{}, SuggestedAction: "agendar_cita"}
}

type stubSender struct{}

func (stubSender) SendText(ctx context.Context, to, body string) (string, error) {
	return "wamid.1", nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, profile models.BusinessProfile) *botconfig.AutomationConfig {
	return &botconfig.AutomationConfig{
		SystemPrompt:     "Eres un asistente.",
		AvailableActions: []botconfig.Action{{Name: "agendar_cita"}},
		ResponseTemplates: map[string]string{
			"greeting": "¡Hola!",
			"help":     "¿En qué puedo ayudarte?",
		},
	}
}

type stubLifecycle struct {
	fail bool
}

func (s *stubLifecycle) Register(ctx context.Context, g *graph.Graph) (string, error) {
	if s.fail {
		return "", errors.NewEngineUnreachableError(assert.AnError)
	}
	return "wf-1", nil
}
func (s *stubLifecycle) Update(ctx context.Context, id string, g *graph.Graph) error { return nil }
func (s *stubLifecycle) Activate(ctx context.Context, id string) error               { return nil }
func (s *stubLifecycle) Deactivate(ctx context.Context, id string) error             { return nil }
func (s *stubLifecycle) Delete(ctx context.Context, id string) error                 { return nil }

func testRouter(t *testing.T, st *memStore, lc *stubLifecycle) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNoOpLogger()

	messages := pipeline.NewMessagePipeline(verifyToken, st, stubClassifier{}, pipeline.NewTemplateResponder(log), stubSender{}, log)
	payments := pipeline.NewPaymentPipeline(paymentSecret, st, nil, log)
	botSvc := bots.NewService(st, stubGenerator{}, lc, graph.Endpoints{
		StoreBaseURL:   "https://store.example.com",
		ChannelSendURL: "https://channel.example.com",
	}, log)

	return New(messages, payments, botSvc, log).Router()
}

func seedBot(t *testing.T, st *memStore) *models.Bot {
	t.Helper()
	cfg, err := json.Marshal(stubGenerator{}.Generate(context.Background(), models.BusinessProfile{}))
	require.NoError(t, err)
	bot := &models.Bot{
		ID:           "bot-1",
		BusinessType: models.BusinessBarbershop,
		Status:       models.StatusActive,
		WorkflowID:   "wf-1",
		ConfigJSON:   cfg,
	}
	st.bots[bot.ID] = bot
	return bot
}

func signPayment(body []byte) string {
	mac := hmac.New(sha256.New, []byte(paymentSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestHealth(t *testing.T) {
	r := testRouter(t, newMemStore(), &stubLifecycle{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWhatsAppWebhook_TextMessage(t *testing.T) {
	st := newMemStore()
	seedBot(t, st)
	r := testRouter(t, st, &stubLifecycle{})

	body := []byte(`{"from":"573001112233","type":"text","text":{"body":"quiero agendar una cita para el viernes"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/whatsapp/bot-1", bytes.NewReader(body))
	req.Header.Set("X-Hub-Verify-Token", verifyToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "schedule", resp["intent"])
	require.Len(t, st.saved, 1)
}

func TestWhatsAppWebhook_BadToken(t *testing.T) {
	st := newMemStore()
	seedBot(t, st)
	r := testRouter(t, st, &stubLifecycle{})

	body := []byte(`{"from":"573001112233","type":"text","text":{"body":"hola"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/whatsapp/bot-1", bytes.NewReader(body))
	req.Header.Set("X-Hub-Verify-Token", "guessed")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, st.saved)
}

func TestWhatsAppVerification(t *testing.T) {
	r := testRouter(t, newMemStore(), &stubLifecycle{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())
}

func TestWhatsAppVerification_WrongToken(t *testing.T) {
	r := testRouter(t, newMemStore(), &stubLifecycle{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=guessed&hub.challenge=42", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWhatsAppVerification_MissingParams(t *testing.T) {
	r := testRouter(t, newMemStore(), &stubLifecycle{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/webhooks/whatsapp", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentWebhook_ApprovedActivates(t *testing.T) {
	st := newMemStore()
	st.users["a@b.co"] = &models.User{ID: "u-1", Email: "a@b.co", SubscriptionStatus: models.SubscriptionInactive}
	r := testRouter(t, st, &stubLifecycle{})

	body := []byte(`{"event":"transaction.updated","data":{"transaction":{"status":"APPROVED","customer_email":"a@b.co","id":"tx1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payments", bytes.NewReader(body))
	req.Header.Set("X-Wompi-Signature", signPayment(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SubscriptionActive, st.users["a@b.co"].SubscriptionStatus)
	assert.Equal(t, "tx1", st.users["a@b.co"].GatewayTransaction)
}

func TestPaymentWebhook_BadSignature(t *testing.T) {
	st := newMemStore()
	st.users["a@b.co"] = &models.User{ID: "u-1", Email: "a@b.co", SubscriptionStatus: models.SubscriptionInactive}
	r := testRouter(t, st, &stubLifecycle{})

	body := []byte(`{"event":"transaction.updated","data":{"transaction":{"status":"APPROVED","customer_email":"a@b.co","id":"tx1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payments", bytes.NewReader(body))
	req.Header.Set("X-Wompi-Signature", "bm9wZQ==")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.SubscriptionInactive, st.users["a@b.co"].SubscriptionStatus)
}

func TestCreateBot(t *testing.T) {
	st := newMemStore()
	r := testRouter(t, st, &stubLifecycle{})

	body := []byte(`{
		"user_id": "u-1",
		"name": "El Clásico",
		"whatsapp_number": "+573001234567",
		"profile": {"business_type": "barbershop", "description": "Barbería en Medellín", "automation_types": ["scheduling"]}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/api/bots", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Success bool       `json:"success"`
		Bot     models.Bot `json:"bot"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, models.StatusActive, resp.Bot.Status)
	assert.Equal(t, "wf-1", resp.Bot.WorkflowID)
}

func TestCreateBot_EngineDownStillCreates(t *testing.T) {
	st := newMemStore()
	r := testRouter(t, st, &stubLifecycle{fail: true})

	body := []byte(`{
		"user_id": "u-1",
		"name": "El Clásico",
		"profile": {"business_type": "barbershop"}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/api/bots", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Bot models.Bot `json:"bot"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusSetup, resp.Bot.Status)
	assert.Empty(t, resp.Bot.WorkflowID)
}

func TestListBots(t *testing.T) {
	st := newMemStore()
	bot := seedBot(t, st)
	bot.UserID = "u-1"
	r := testRouter(t, st, &stubLifecycle{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bots?user_id=u-1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool         `json:"success"`
		Bots    []models.Bot `json:"bots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Bots, 1)
	assert.Equal(t, "bot-1", resp.Bots[0].ID)
}

func TestListBots_MissingUserID(t *testing.T) {
	r := testRouter(t, newMemStore(), &stubLifecycle{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bots", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetBotStatus(t *testing.T) {
	st := newMemStore()
	seedBot(t, st)
	r := testRouter(t, st, &stubLifecycle{})

	req := httptest.NewRequest(http.MethodPatch, "/api/bots/bot-1/status",
		bytes.NewReader([]byte(`{"status": "paused"}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusPaused, st.bots["bot-1"].Status)
}

func TestSetBotStatus_UnknownBot(t *testing.T) {
	r := testRouter(t, newMemStore(), &stubLifecycle{})

	req := httptest.NewRequest(http.MethodPatch, "/api/bots/ghost/status",
		bytes.NewReader([]byte(`{"status": "paused"}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
