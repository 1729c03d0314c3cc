// Package omnicache implements the Cache Layer: four namespaced caches —
// embeddings, completions, entity resolutions, and fetch payloads — each
// with its own eviction policy, built on top of the Redis-backed
// internal/cache.Manager used project-wide. A miss is never an error the
// caller must handle specially: every Get here returns (value, bool).
package omnicache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omniboxhq/omnibox/internal/cache"
)

// Config configures every namespace's TTL in one place, mirroring the
// nested-config-struct convention used throughout config.Config.
type Config struct {
	CompletionTTL  time.Duration `yaml:"completion_ttl" env:"COMPLETION_TTL"`
	ResolutionTTL  time.Duration `yaml:"resolution_ttl" env:"RESOLUTION_TTL"`
	PayloadTTL     time.Duration `yaml:"payload_ttl" env:"PAYLOAD_TTL"`
	EmbeddingLRUSize int         `yaml:"embedding_lru_size" env:"EMBEDDING_LRU_SIZE"`
}

// DefaultConfig returns the TTLs spec.md calls for: completions cached
// for hours, resolutions for roughly 15 minutes (and invalidated early
// on subscription writes), payloads for a few minutes.
func DefaultConfig() Config {
	return Config{
		CompletionTTL:    2 * time.Hour,
		ResolutionTTL:    15 * time.Minute,
		PayloadTTL:       5 * time.Minute,
		EmbeddingLRUSize: 4096,
	}
}

// Layer bundles all four namespaced caches behind one constructor so
// callers wire it once at startup.
type Layer struct {
	Embeddings  *EmbeddingCache
	Completions *CompletionCache
	Resolutions *ResolutionCache
	Payloads    *PayloadCache
}

// New builds a Layer on top of an already-connected cache.Manager.
func New(manager *cache.Manager, cfg Config, logger *zap.Logger) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Layer{
		Embeddings:  newEmbeddingCache(cfg.EmbeddingLRUSize),
		Completions: &CompletionCache{manager: manager, ttl: cfg.CompletionTTL, logger: logger.With(zap.String("cache", "completions"))},
		Resolutions: &ResolutionCache{manager: manager, ttl: cfg.ResolutionTTL, logger: logger.With(zap.String("cache", "resolutions"))},
		Payloads:    &PayloadCache{manager: manager, ttl: cfg.PayloadTTL, logger: logger.With(zap.String("cache", "payloads"))},
	}
}

// fingerprint hashes a set of ordered strings into one cache key
// component, used by both the completion fingerprint (query +
// candidate-set digest) and the payload key (route id + sorted params).
func fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sortedParamDigest renders a parameter map deterministically so the
// same logical request always hashes to the same key regardless of map
// iteration order.
func sortedParamDigest(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
		sb.WriteByte('&')
	}
	return sb.String()
}

// =============================================================================
// Embeddings — bounded in-process LRU, no TTL (embeddings for a fixed
// query string never go stale; eviction is purely about memory).
// =============================================================================

type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*lruNode
	order    *lruList
}

type lruNode struct {
	key   string
	value []float64
	prev, next *lruNode
}

// lruList is a minimal intrusive doubly-linked list used to track
// recency without pulling in a third-party LRU dependency — the teacher
// repo's own RAG stack bounds its in-memory stores with plain
// slices/maps rather than a decorator library, and this follows that
// texture (see rag.InMemoryVectorStore).
type lruList struct {
	head, tail *lruNode
}

func newLRUList() *lruList {
	head, tail := &lruNode{}, &lruNode{}
	head.next, tail.prev = tail, head
	return &lruList{head: head, tail: tail}
}

func (l *lruList) pushFront(n *lruNode) {
	n.prev, n.next = l.head, l.head.next
	l.head.next.prev = n
	l.head.next = n
}

func (l *lruList) remove(n *lruNode) {
	n.prev.next, n.next.prev = n.next, n.prev
}

func (l *lruList) back() *lruNode {
	if l.tail.prev == l.head {
		return nil
	}
	return l.tail.prev
}

func newEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &EmbeddingCache{
		capacity: capacity,
		entries:  make(map[string]*lruNode),
		order:    newLRUList(),
	}
}

// Get returns the cached embedding for the given query text, if present.
func (c *EmbeddingCache) Get(ctx context.Context, query string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[query]
	if !ok {
		return nil, false
	}
	c.order.remove(n)
	c.order.pushFront(n)
	return n.value, true
}

// Set stores query's embedding, evicting the least-recently-used entry
// if the cache is at capacity.
func (c *EmbeddingCache) Set(ctx context.Context, query string, embedding []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.entries[query]; ok {
		n.value = embedding
		c.order.remove(n)
		c.order.pushFront(n)
		return
	}

	n := &lruNode{key: query, value: embedding}
	c.entries[query] = n
	c.order.pushFront(n)

	if len(c.entries) > c.capacity {
		victim := c.order.back()
		if victim != nil {
			c.order.remove(victim)
			delete(c.entries, victim.key)
		}
	}
}

// =============================================================================
// Completions — Redis-backed, keyed by a fingerprint of (query,
// candidate-set digest) per spec.md §4.3.
// =============================================================================

type CompletionCache struct {
	manager *cache.Manager
	ttl     time.Duration
	logger  *zap.Logger
}

func (c *CompletionCache) key(query string, candidateIDs []string) string {
	sorted := append([]string(nil), candidateIDs...)
	sort.Strings(sorted)
	return "omnibox:completion:" + fingerprint(query, strings.Join(sorted, ","))
}

// Get returns a previously-cached extraction result for the same query
// against the same candidate set, if any. A nil manager (Redis
// unreachable at boot) degrades to an always-miss cache rather than a
// crash, since completion caching is a latency optimization, not a
// correctness requirement.
func (c *CompletionCache) Get(ctx context.Context, query string, candidateIDs []string, dest any) bool {
	if c.manager == nil {
		return false
	}
	if err := c.manager.GetJSON(ctx, c.key(query, candidateIDs), dest); err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("completion cache get failed", zap.Error(err))
		}
		return false
	}
	return true
}

// Set stores value under the fingerprint for (query, candidateIDs).
func (c *CompletionCache) Set(ctx context.Context, query string, candidateIDs []string, value any) {
	if c.manager == nil {
		return
	}
	if err := c.manager.SetJSON(ctx, c.key(query, candidateIDs), value, c.ttl); err != nil {
		c.logger.Warn("completion cache set failed", zap.Error(err))
	}
}

// =============================================================================
// Resolutions — Redis-backed, keyed by (platform, entity_type, raw
// name). Invalidated per-platform whenever a subscription mutates.
// =============================================================================

type ResolutionCache struct {
	manager *cache.Manager
	ttl     time.Duration
	logger  *zap.Logger
}

func (c *ResolutionCache) key(platform, entityType, rawName string) string {
	return "omnibox:resolution:" + platform + ":" + fingerprint(entityType, rawName)
}

// indexKey names the per-platform tracking set InvalidatePlatform reads to
// find every key it needs to drop. The Manager's surface has no
// SCAN/KEYS — it deliberately doesn't expose a raw *redis.Client — so
// membership is tracked explicitly instead, the same way the teacher's
// cache callers track derived state alongside a Redis-backed value
// rather than reach past the Manager for server-side iteration.
func (c *ResolutionCache) indexKey(platform string) string {
	return "omnibox:resolution:index:" + platform
}

func (c *ResolutionCache) Get(ctx context.Context, platform, entityType, rawName string, dest any) bool {
	if c.manager == nil {
		return false
	}
	if err := c.manager.GetJSON(ctx, c.key(platform, entityType, rawName), dest); err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("resolution cache get failed", zap.Error(err))
		}
		return false
	}
	return true
}

func (c *ResolutionCache) Set(ctx context.Context, platform, entityType, rawName string, value any) {
	if c.manager == nil {
		return
	}
	k := c.key(platform, entityType, rawName)
	if err := c.manager.SetJSON(ctx, k, value, c.ttl); err != nil {
		c.logger.Warn("resolution cache set failed", zap.Error(err))
		return
	}
	c.trackKey(ctx, platform, k)
}

// trackKey records k in platform's tracking set so a later
// InvalidatePlatform can find it. The set itself carries no TTL shorter
// than the longest-lived member would need; stale entries just make
// InvalidatePlatform issue a few no-op deletes.
func (c *ResolutionCache) trackKey(ctx context.Context, platform, k string) {
	var keys []string
	idxKey := c.indexKey(platform)
	if err := c.manager.GetJSON(ctx, idxKey, &keys); err != nil && !cache.IsCacheMiss(err) {
		c.logger.Warn("resolution cache index read failed", zap.Error(err))
	}
	for _, existing := range keys {
		if existing == k {
			return
		}
	}
	keys = append(keys, k)
	if err := c.manager.SetJSON(ctx, idxKey, keys, 0); err != nil {
		c.logger.Warn("resolution cache index write failed", zap.Error(err))
	}
}

// InvalidatePlatform drops every cached resolution for a platform. Called
// whenever subscription.Store writes change that platform's subscription
// set, since a stale resolution could point at a renamed or deleted
// entity.
func (c *ResolutionCache) InvalidatePlatform(ctx context.Context, platform string) {
	if c.manager == nil {
		return
	}
	idxKey := c.indexKey(platform)
	var keys []string
	if err := c.manager.GetJSON(ctx, idxKey, &keys); err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("resolution cache index read failed", zap.Error(err))
		}
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.manager.Delete(ctx, append(keys, idxKey)...); err != nil {
		c.logger.Warn("resolution cache invalidation failed", zap.String("platform", platform), zap.Error(err))
		return
	}
	c.logger.Info("resolution cache invalidated", zap.String("platform", platform), zap.Int("keys", len(keys)))
}

// =============================================================================
// Payloads — Redis-backed, keyed by (route id, filled parameters).
// =============================================================================

type PayloadCache struct {
	manager *cache.Manager
	ttl     time.Duration
	logger  *zap.Logger
}

func (c *PayloadCache) key(routeID string, params map[string]string) string {
	return "omnibox:payload:" + routeID + ":" + fingerprint(sortedParamDigest(params))
}

func (c *PayloadCache) Get(ctx context.Context, routeID string, params map[string]string, dest any) bool {
	if c.manager == nil {
		return false
	}
	if err := c.manager.GetJSON(ctx, c.key(routeID, params), dest); err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("payload cache get failed", zap.Error(err))
		}
		return false
	}
	return true
}

func (c *PayloadCache) Set(ctx context.Context, routeID string, params map[string]string, value any) {
	if c.manager == nil {
		return
	}
	if err := c.manager.SetJSON(ctx, c.key(routeID, params), value, c.ttl); err != nil {
		c.logger.Warn("payload cache set failed", zap.Error(err))
	}
}
