package phonemize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/kokoro/pkg/kv"
)

// cachePrefix is the first key segment of every cached entry.
const cachePrefix = "phonemes"

// defaultVariant keys entries of phonemizers without a CacheVariant.
const defaultVariant = "default"

// Variant is implemented by phonemizers whose output depends on their
// configuration. The returned string becomes part of every cache key.
type Variant interface {
	CacheVariant() string
}

// Cache memoizes a Phonemizer in a kv store. Entries are keyed by the
// wrapped phonemizer's variant, the espeak-ng voice and a SHA-256 of the
// text, and stored as msgpack. Store failures are logged and never fail a
// call.
type Cache struct {
	next    Phonemizer
	variant string
	store   kv.Store
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCache wraps next. A positive ttl expires entries after that long.
func NewCache(next Phonemizer, store kv.Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	variant := defaultVariant
	if v, ok := next.(Variant); ok && v.CacheVariant() != "" {
		variant = v.CacheVariant()
	}
	return &Cache{next: next, variant: variant, store: store, ttl: ttl, logger: logger}
}

type cacheEntry struct {
	Phonemes []string  `msgpack:"p"`
	Created  time.Time `msgpack:"t"`
}

func cacheKey(variant, text, language string) kv.Key {
	sum := sha256.Sum256([]byte(text))
	return kv.Key{cachePrefix, variant, Voice(language), hex.EncodeToString(sum[:])}
}

// Phonemize returns the cached phonemes for text, calling the wrapped
// phonemizer on a miss.
func (c *Cache) Phonemize(ctx context.Context, text, language string) ([]string, error) {
	key := cacheKey(c.variant, text, language)

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var e cacheEntry
		if err := msgpack.Unmarshal(data, &e); err == nil && len(e.Phonemes) > 0 {
			c.logger.Debug("phoneme cache hit", slog.String("key", key.String()))
			return e.Phonemes, nil
		}
		c.logger.Warn("phoneme cache entry unreadable", slog.String("key", key.String()))
	case !errors.Is(err, kv.ErrNotFound):
		c.logger.Warn("phoneme cache read failed", slog.String("error", err.Error()))
	}

	phonemes, err := c.next.Phonemize(ctx, text, language)
	if err != nil {
		return nil, err
	}

	data, err = msgpack.Marshal(cacheEntry{Phonemes: phonemes, Created: time.Now().UTC()})
	if err == nil {
		err = c.store.Set(ctx, key, data, c.ttl)
	}
	if err != nil {
		c.logger.Warn("phoneme cache write failed", slog.String("error", err.Error()))
	}
	return phonemes, nil
}

// Purge deletes every cached entry and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	var keys []kv.Key
	for e, err := range c.store.List(ctx, kv.Key{cachePrefix}) {
		if err != nil {
			return 0, fmt.Errorf("phonemize: list cache: %w", err)
		}
		keys = append(keys, e.Key)
	}
	for i, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			return i, fmt.Errorf("phonemize: delete %s: %w", k, err)
		}
	}
	return len(keys), nil
}
