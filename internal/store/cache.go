package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"whatsbot/internal/common/logger"
	"whatsbot/internal/models"
)

const (
	contactCacheTTL = 10 * time.Minute
	recentCacheTTL  = 60 * time.Second

	// touchTimeout bounds the write-behind last_interaction refresh that
	// runs after a contact cache hit.
	touchTimeout = 5 * time.Second
)

// CachedStore fronts a Store with Redis for the two lookups every inbound
// message hits: contact resolution and recent conversation context. Cache
// failures degrade to the backing store, never to the caller.
type CachedStore struct {
	Store
	redis  *redis.Client
	logger logger.Logger
}

func NewCachedStore(backing Store, rdb *redis.Client, log logger.Logger) *CachedStore {
	return &CachedStore{Store: backing, redis: rdb, logger: log}
}

func contactKey(botID, phone string) string {
	return fmt.Sprintf("contact:%s:%s", botID, phone)
}

func recentKey(botID, phone string) string {
	return fmt.Sprintf("recent:%s:%s", botID, phone)
}

// UpsertContact serves repeat senders from Redis. A cache hit still refreshes
// last_interaction in the backing store, but write-behind so the hot path
// never waits on Postgres.
func (s *CachedStore) UpsertContact(ctx context.Context, botID, phone string) (*models.Contact, error) {
	key := contactKey(botID, phone)

	if raw, err := s.redis.Get(ctx, key).Result(); err == nil {
		var c models.Contact
		if json.Unmarshal([]byte(raw), &c) == nil {
			go s.touchContact(botID, phone)
			return &c, nil
		}
	} else if err != redis.Nil {
		s.logger.WithError(err).Warn("Contact cache read failed", map[string]interface{}{"key": key})
	}

	c, err := s.Store.UpsertContact(ctx, botID, phone)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(c); err == nil {
		if err := s.redis.Set(ctx, key, raw, contactCacheTTL).Err(); err != nil {
			s.logger.WithError(err).Warn("Contact cache write failed", map[string]interface{}{"key": key})
		}
	}
	return c, nil
}

// touchContact refreshes last_interaction for a contact that was served from
// cache. Runs detached from the request, failures are only logged.
func (s *CachedStore) touchContact(botID, phone string) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()

	if _, err := s.Store.UpsertContact(ctx, botID, phone); err != nil {
		s.logger.WithError(err).Warn("Contact touch failed", map[string]interface{}{
			"bot_id": botID,
		})
	}
}

func (s *CachedStore) RecentConversations(ctx context.Context, botID, phone string, limit int) ([]*models.Conversation, error) {
	key := recentKey(botID, phone)

	if raw, err := s.redis.Get(ctx, key).Result(); err == nil {
		var convs []*models.Conversation
		if json.Unmarshal([]byte(raw), &convs) == nil && len(convs) >= limit {
			return convs[:limit], nil
		}
	} else if err != redis.Nil {
		s.logger.WithError(err).Warn("Recent cache read failed", map[string]interface{}{"key": key})
	}

	convs, err := s.Store.RecentConversations(ctx, botID, phone, limit)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(convs); err == nil {
		if err := s.redis.Set(ctx, key, raw, recentCacheTTL).Err(); err != nil {
			s.logger.WithError(err).Warn("Recent cache write failed", map[string]interface{}{"key": key})
		}
	}
	return convs, nil
}

// SaveConversation writes through and drops the now stale recent-context
// entry for the sender.
func (s *CachedStore) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	if err := s.Store.SaveConversation(ctx, conv); err != nil {
		return err
	}
	if err := s.redis.Del(ctx, recentKey(conv.BotID, conv.Phone)).Err(); err != nil {
		s.logger.WithError(err).Warn("Recent cache invalidation failed", map[string]interface{}{
			"bot_id": conv.BotID,
		})
	}
	return nil
}
