package openmeteo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/observability"
)

// CachedSource wraps a WeatherSource with a short-lived LRU cache so the
// threshold and scan pathways share fetches for the same point.
type CachedSource struct {
	inner     domain.WeatherSource
	current   *lruCache[domain.Observation]
	forecasts *lruCache[domain.Forecast]
	metrics   *observability.Metrics
}

// NewCachedSource creates a cache decorator around a weather source. Entries
// expire ttl after they were stored.
func NewCachedSource(inner domain.WeatherSource, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:     inner,
		current:   newLRUCache[domain.Observation](maxEntries, ttl, clock),
		forecasts: newLRUCache[domain.Forecast](maxEntries, ttl, clock),
		metrics:   metrics,
	}
}

func (c *CachedSource) CurrentWeather(ctx context.Context, lat, lon float64) (domain.Observation, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if obs, ok := c.current.get(key); ok {
		c.metrics.WeatherCache.WithLabelValues("current", "hit").Inc()
		return obs, nil
	}
	c.metrics.WeatherCache.WithLabelValues("current", "miss").Inc()

	obs, err := c.inner.CurrentWeather(ctx, lat, lon)
	if err != nil {
		// Failures are never cached so the next cycle retries upstream.
		return obs, err
	}
	c.current.put(key, obs)
	return obs, nil
}

func (c *CachedSource) Forecast(ctx context.Context, lat, lon float64, days int) (domain.Forecast, error) {
	key := fmt.Sprintf("%.4f,%.4f|%d", lat, lon, days)
	if fc, ok := c.forecasts.get(key); ok {
		c.metrics.WeatherCache.WithLabelValues("forecast", "hit").Inc()
		return fc, nil
	}
	c.metrics.WeatherCache.WithLabelValues("forecast", "miss").Inc()

	fc, err := c.inner.Forecast(ctx, lat, lon, days)
	if err != nil {
		return fc, err
	}
	c.forecasts.put(key, fc)
	return fc, nil
}

// lruCache is a thread-safe LRU cache whose entries also expire after ttl.
type lruCache[V any] struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	prev      *entry[V]
	next      *entry[V]
}

func newLRUCache[V any](maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.remove(e)
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
