package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shulepro/shulepro-api/internal/models"
)

// SummaryCache stores computed class assessment summaries in Redis.
// A nil client disables caching; every method then reports a miss.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache creates a summary cache. client may be nil.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(submissionID string) string {
	return fmt.Sprintf("summary:submission:%s", submissionID)
}

// Get returns the cached summary or (nil, nil) on a miss.
func (c *SummaryCache) Get(ctx context.Context, submissionID string) (*models.ClassAssessmentSummary, error) {
	if c.client == nil {
		return nil, nil
	}
	raw, err := c.client.Get(ctx, summaryKey(submissionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary cache: %w", err)
	}
	var summary models.ClassAssessmentSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("decode summary cache: %w", err)
	}
	return &summary, nil
}

// Set stores a summary with the configured TTL.
func (c *SummaryCache) Set(ctx context.Context, submissionID string, summary *models.ClassAssessmentSummary) error {
	if c.client == nil {
		return nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary cache: %w", err)
	}
	if err := c.client.Set(ctx, summaryKey(submissionID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set summary cache: %w", err)
	}
	return nil
}

// Invalidate drops a cached summary, e.g. after a review transition.
func (c *SummaryCache) Invalidate(ctx context.Context, submissionID string) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, summaryKey(submissionID)).Err(); err != nil {
		return fmt.Errorf("invalidate summary cache: %w", err)
	}
	return nil
}
