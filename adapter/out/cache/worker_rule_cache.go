// Package cache implements the rule cache and message lock on Redis.
package cache

import (
	"context"
	"fmt"
	"time"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"
	"crm_worker/pkg/cache"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	rulesKey    = "rules:enabled"
	mappingsKey = "rules:category_mappings"
	lockPrefix  = "rules:lock:email:"
)

// RuleCacheAdapter implements out.RuleCache.
type RuleCacheAdapter struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewRuleCacheAdapter creates a rule cache whose entries expire after ttl.
func NewRuleCacheAdapter(c *cache.RedisCache, ttl time.Duration) *RuleCacheAdapter {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RuleCacheAdapter{cache: c, ttl: ttl}
}

func (a *RuleCacheAdapter) GetRules(ctx context.Context) ([]*domain.Rule, bool, error) {
	var rules []*domain.Rule
	ok, err := a.cache.GetJSON(ctx, rulesKey, &rules)
	return rules, ok, err
}

func (a *RuleCacheAdapter) SetRules(ctx context.Context, rules []*domain.Rule) error {
	return a.cache.SetJSON(ctx, rulesKey, rules, a.ttl)
}

func (a *RuleCacheAdapter) GetMappings(ctx context.Context) ([]*domain.CategoryMapping, bool, error) {
	var mappings []*domain.CategoryMapping
	ok, err := a.cache.GetJSON(ctx, mappingsKey, &mappings)
	return mappings, ok, err
}

func (a *RuleCacheAdapter) SetMappings(ctx context.Context, mappings []*domain.CategoryMapping) error {
	return a.cache.SetJSON(ctx, mappingsKey, mappings, a.ttl)
}

func (a *RuleCacheAdapter) Invalidate(ctx context.Context) error {
	return a.cache.DeleteMulti(ctx, rulesKey, mappingsKey)
}

// =============================================================================
// Message lock
// =============================================================================

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// MessageLockAdapter implements out.MessageLock with SET NX.
type MessageLockAdapter struct {
	cache *cache.RedisCache
	ttl   time.Duration
	owner string
}

// NewMessageLockAdapter creates a lock whose keys expire after ttl so a
// crashed holder cannot block a message forever.
func NewMessageLockAdapter(c *cache.RedisCache, ttl time.Duration) *MessageLockAdapter {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &MessageLockAdapter{cache: c, ttl: ttl, owner: uuid.NewString()}
}

func lockKey(messageID int64) string {
	return fmt.Sprintf("%s%d", lockPrefix, messageID)
}

func (l *MessageLockAdapter) Acquire(ctx context.Context, messageID int64) (bool, error) {
	return l.cache.SetNX(ctx, lockKey(messageID), l.owner, l.ttl)
}

func (l *MessageLockAdapter) Release(ctx context.Context, messageID int64) error {
	return releaseScript.Run(ctx, l.cache.Client(), []string{lockKey(messageID)}, l.owner).Err()
}

var (
	_ out.RuleCache   = (*RuleCacheAdapter)(nil)
	_ out.MessageLock = (*MessageLockAdapter)(nil)
)
