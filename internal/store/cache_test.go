package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbot/internal/common/logger"
	"whatsbot/internal/models"
)

// fakeBacking counts hits so tests can tell cache hits from passthroughs.
// The contact counter is mutex-guarded: cache hits touch the backing store
// from a detached goroutine.
type fakeBacking struct {
	Store
	mu           sync.Mutex
	contact      *models.Contact
	convs        []*models.Conversation
	contactCalls int
	recentCalls  int
	saveCalls    int
}

func (f *fakeBacking) UpsertContact(ctx context.Context, botID, phone string) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contactCalls++
	return f.contact, nil
}

func (f *fakeBacking) contactCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contactCalls
}

func (f *fakeBacking) RecentConversations(ctx context.Context, botID, phone string, limit int) ([]*models.Conversation, error) {
	f.recentCalls++
	return f.convs, nil
}

func (f *fakeBacking) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	f.saveCalls++
	return nil
}

func TestCachedUpsertContact_MissThenFill(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	backing := &fakeBacking{contact: &models.Contact{ID: "c-1", BotID: "bot-1", Phone: "+57300", Status: models.ContactLead}}
	s := NewCachedStore(backing, rdb, logger.NewNoOpLogger())

	key := contactKey("bot-1", "+57300")
	raw, _ := json.Marshal(backing.contact)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, raw, contactCacheTTL).SetVal("OK")

	c, err := s.UpsertContact(context.Background(), "bot-1", "+57300")
	require.NoError(t, err)
	assert.Equal(t, "c-1", c.ID)
	assert.Equal(t, 1, backing.contactCallCount())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedUpsertContact_HitTouchesBackingBehind(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	backing := &fakeBacking{contact: &models.Contact{ID: "c-9"}}
	s := NewCachedStore(backing, rdb, logger.NewNoOpLogger())

	cached := models.Contact{ID: "c-9", BotID: "bot-1", Phone: "+57300", Status: models.ContactCustomer}
	raw, _ := json.Marshal(cached)
	mock.ExpectGet(contactKey("bot-1", "+57300")).SetVal(string(raw))

	c, err := s.UpsertContact(context.Background(), "bot-1", "+57300")
	require.NoError(t, err)
	assert.Equal(t, "c-9", c.ID)

	// The hit returns the cached contact, while last_interaction is
	// refreshed in the backing store behind the request.
	assert.Eventually(t, func() bool { return backing.contactCallCount() == 1 },
		time.Second, 10*time.Millisecond)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedUpsertContact_RedisErrorDegradesToBacking(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	backing := &fakeBacking{contact: &models.Contact{ID: "c-1"}}
	s := NewCachedStore(backing, rdb, logger.NewNoOpLogger())

	key := contactKey("bot-1", "+57300")
	mock.ExpectGet(key).SetErr(assert.AnError)
	raw, _ := json.Marshal(backing.contact)
	mock.ExpectSet(key, raw, contactCacheTTL).SetErr(assert.AnError)

	c, err := s.UpsertContact(context.Background(), "bot-1", "+57300")
	require.NoError(t, err)
	assert.Equal(t, "c-1", c.ID)
	assert.Equal(t, 1, backing.contactCallCount())
}

func TestCachedRecentConversations_MissThenFill(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	backing := &fakeBacking{convs: []*models.Conversation{
		{ID: "v-1", BotID: "bot-1", Phone: "+57300", Intent: "greeting", CreatedAt: time.Now().UTC()},
	}}
	s := NewCachedStore(backing, rdb, logger.NewNoOpLogger())

	key := recentKey("bot-1", "+57300")
	raw, _ := json.Marshal(backing.convs)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, raw, recentCacheTTL).SetVal("OK")

	convs, err := s.RecentConversations(context.Background(), "bot-1", "+57300", 1)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, backing.recentCalls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedSaveConversation_InvalidatesRecent(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	backing := &fakeBacking{}
	s := NewCachedStore(backing, rdb, logger.NewNoOpLogger())

	mock.ExpectDel(recentKey("bot-1", "+57300")).SetVal(1)

	err := s.SaveConversation(context.Background(), &models.Conversation{BotID: "bot-1", Phone: "+57300"})
	require.NoError(t, err)
	assert.Equal(t, 1, backing.saveCalls)
	require.NoError(t, mock.ExpectationsWereMet())
}
