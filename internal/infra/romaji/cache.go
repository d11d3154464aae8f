// Package romaji provides a non-blocking romanisation cache. Lookups are
// in-memory map reads; unknown strings are warmed in the background through
// a pluggable transliteration function.
package romaji

import (
	"context"
	"sync"
	"time"
	"unicode"

	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// TransliterateFunc resolves one string to its romanised form. An empty
// result with a nil error is a definitive miss and is cached as such.
type TransliterateFunc func(ctx context.Context, s string) (string, error)

const (
	defaultQueueSize   = 256
	defaultWorkers     = 2
	defaultWarmTimeout = 5 * time.Second
)

// Cache is a concurrency-safe romanisation cache. The zero value is not
// usable; construct with New.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string

	translit    TransliterateFunc
	group       singleflight.Group
	queue       chan string
	warmTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Config represents cache configuration.
type Config struct {
	// Transliterate resolves cache misses in the background. Nil disables
	// warming; the cache then only serves pre-seeded entries.
	Transliterate TransliterateFunc
	// QueueSize bounds the warm backlog. Scheduling past it drops the hint.
	QueueSize int
	// Workers is the number of background warm goroutines.
	Workers int
	// WarmTimeout caps a single transliteration call.
	WarmTimeout time.Duration
}

// New creates a cache and starts its warm workers.
func New(cfg Config) *Cache {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	warmTimeout := cfg.WarmTimeout
	if warmTimeout <= 0 {
		warmTimeout = defaultWarmTimeout
	}

	c := &Cache{
		entries:     make(map[string]string),
		translit:    cfg.Transliterate,
		queue:       make(chan string, queueSize),
		warmTimeout: warmTimeout,
		done:        make(chan struct{}),
	}
	if c.translit != nil {
		c.wg.Add(workers)
		for i := 0; i < workers; i++ {
			go c.worker()
		}
	}
	return c
}

// Close stops the warm workers. Cached and Put remain usable afterwards.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

// Cached returns the romanised form of s when one is known. A value equal
// to s means s needs no romanisation.
func (c *Cache) Cached(s string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[s]
	return r, ok
}

// Put stores a romanisation pair. Adapters call this when upstream metadata
// already carries the romanised form.
func (c *Cache) Put(original, romaji string) {
	if original == "" {
		return
	}
	if romaji == "" {
		romaji = original
	}
	c.mu.Lock()
	c.entries[original] = romaji
	c.mu.Unlock()
}

// Schedule queues s for background warming. It never blocks: strings that
// need no transliteration are settled inline, and a full queue drops the
// hint. Callers re-schedule on the next lookup anyway.
func (c *Cache) Schedule(s string) {
	if s == "" {
		return
	}
	if _, ok := c.Cached(s); ok {
		return
	}
	if asciiOnly(s) {
		c.Put(s, s)
		return
	}
	if c.translit == nil {
		return
	}

	select {
	case c.queue <- s:
	case <-c.done:
	default:
		zlog.Debug().Msgf("romaji warm queue full, dropping: text=%s", s)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case s := <-c.queue:
			c.warm(s)
		}
	}
}

// warm resolves one string. Concurrent warms for the same string are
// collapsed by the singleflight group.
func (c *Cache) warm(s string) {
	if _, ok := c.Cached(s); ok {
		return
	}
	_, err, _ := c.group.Do(s, func() (any, error) {
		// Recheck under the flight: an earlier flight may have settled the
		// entry between our lookup and this call.
		if r, ok := c.Cached(s); ok {
			return r, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.warmTimeout)
		defer cancel()

		romaji, err := c.translit(ctx, s)
		if err != nil {
			return nil, err
		}
		if romaji == "" {
			// Definitive miss: remember so the string is not retried.
			romaji = s
		}
		c.Put(s, romaji)
		return romaji, nil
	})
	if err != nil {
		zlog.Debug().Err(err).Msgf("romaji warm failed: text=%s", s)
	}
}

// asciiOnly reports whether s contains no characters that could need
// romanisation.
func asciiOnly(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
