package diagnosis

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/couchcryptid/station-qc/internal/diagnostics"
	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/observability"
)

// CachedDiagnoser wraps a Diagnoser with an in-memory LRU cache keyed by
// the request content. Replayed packets then cost no remote call.
type CachedDiagnoser struct {
	inner   diagnostics.Diagnoser
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedDiagnoser creates a cache decorator around a diagnoser.
func NewCachedDiagnoser(inner diagnostics.Diagnoser, maxEntries int, metrics *observability.Metrics) *CachedDiagnoser {
	return &CachedDiagnoser{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedDiagnoser) Diagnose(ctx context.Context, req diagnostics.Request) (domain.DiagnosisResult, error) {
	key, err := fingerprint(req)
	if err != nil {
		return c.inner.Diagnose(ctx, req)
	}
	if res, ok := c.cache.get(key); ok {
		c.metrics.DiagnosisCache.WithLabelValues("hit").Inc()
		return res, nil
	}
	c.metrics.DiagnosisCache.WithLabelValues("miss").Inc()

	res, err := c.inner.Diagnose(ctx, req)
	if err != nil {
		return res, err
	}
	// Only cache usable results so a bad answer can be retried.
	if res.Validate() == nil {
		c.cache.put(key, res)
	}
	return res, nil
}

func fingerprint(req diagnostics.Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// lruCache is a thread-safe LRU cache of diagnosis results.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List // front is most recently used
	entries    map[string]*list.Element
}

type entry struct {
	key   string
	value domain.DiagnosisResult
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (domain.DiagnosisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return domain.DiagnosisResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

func (c *lruCache) put(key string, value domain.DiagnosisResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).value = value
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, value: value})
	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
