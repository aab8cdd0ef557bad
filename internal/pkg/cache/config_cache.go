package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paulexconde/followup/internal/models"
)

// ConfigCache caches assembled graph snapshots. Questionnaire configuration
// is read-mostly, so a short TTL plus explicit invalidation on configuration
// change keeps reads cheap without guarding concurrent edits.
type ConfigCache interface {
	GetSnapshot(ctx context.Context, graphID string) (*models.GraphSnapshot, error)
	SetSnapshot(ctx context.Context, snapshot *models.GraphSnapshot) error
	Invalidate(ctx context.Context, graphID string) error
}

type configCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewConfigCache(client *redis.Client, ttl time.Duration) ConfigCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &configCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *configCache) GetSnapshot(ctx context.Context, graphID string) (*models.GraphSnapshot, error) {
	data, err := c.client.Get(ctx, "graph:"+graphID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var snapshot models.GraphSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *configCache) SetSnapshot(ctx context.Context, snapshot *models.GraphSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "graph:"+snapshot.Graph.ID, data, c.ttl).Err()
}

func (c *configCache) Invalidate(ctx context.Context, graphID string) error {
	return c.client.Del(ctx, "graph:"+graphID).Err()
}
