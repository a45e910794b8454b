package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// PlanEntry is one step of a track's quiz plan: how many questions to draw
// from a block, in fill order.
type PlanEntry struct {
	BlockID   uint   `json:"block_id"`
	BlockName string `json:"block_name"`
	Required  int    `json:"required"`
	Position  int    `json:"position"`
}

// PlanCache keeps track plans close to the engine. A miss or a cache failure
// falls back to the database.
type PlanCache interface {
	GetPlan(ctx context.Context, trackID uint) ([]PlanEntry, bool)
	SetPlan(ctx context.Context, trackID uint, plan []PlanEntry)
	Invalidate(ctx context.Context, trackID uint)
}

type RedisPlanCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisPlanCache(client *redis.Client, ttl time.Duration) *RedisPlanCache {
	return &RedisPlanCache{redis: client, ttl: ttl}
}

func planKey(trackID uint) string {
	return fmt.Sprintf("quiz:track:%d:plan", trackID)
}

func (c *RedisPlanCache) GetPlan(ctx context.Context, trackID uint) ([]PlanEntry, bool) {
	data, err := c.redis.Get(ctx, planKey(trackID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Redis error getting plan for track %d: %v", trackID, err)
		}
		return nil, false
	}

	var plan []PlanEntry
	if err := json.Unmarshal(data, &plan); err != nil {
		log.Printf("Failed to unmarshal plan for track %d: %v", trackID, err)
		return nil, false
	}

	VerboseLog("Plan cache hit for track %d (%d blocks)", trackID, len(plan))
	return plan, true
}

func (c *RedisPlanCache) SetPlan(ctx context.Context, trackID uint, plan []PlanEntry) {
	data, err := json.Marshal(plan)
	if err != nil {
		log.Printf("Failed to marshal plan for track %d: %v", trackID, err)
		return
	}

	if err := c.redis.Set(ctx, planKey(trackID), data, c.ttl).Err(); err != nil {
		log.Printf("Failed to store plan for track %d in Redis: %v", trackID, err)
	}
}

func (c *RedisPlanCache) Invalidate(ctx context.Context, trackID uint) {
	if err := c.redis.Del(ctx, planKey(trackID)).Err(); err != nil {
		log.Printf("Failed to invalidate plan for track %d: %v", trackID, err)
	}
}
