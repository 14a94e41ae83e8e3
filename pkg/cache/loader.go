package cache

import (
	"context"
)

// LoaderFunc computes a value for a key on a cache miss
type LoaderFunc[T any] func(ctx context.Context) (T, error)

// GetOrLoad returns the cached value or invokes the loader, coalescing
// concurrent loads of the same key into a single call. A loader error is
// returned unchanged and nothing is cached, so the next call retries.
func (c *Cache[T]) GetOrLoad(ctx context.Context, key string, loader LoaderFunc[T], opts SetOptions) (T, error) {
	var zero T
	if c.closed.Load() {
		return zero, ErrClosed
	}
	if key == "" {
		return zero, ErrEmptyKey
	}

	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check: an earlier flight may have filled the key while this
		// caller waited for its turn
		if value, ok := c.Get(ctx, key); ok {
			return value, nil
		}

		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		if err := c.Set(ctx, key, value, opts); err != nil {
			// The loaded value is still good even when the cache is not
			c.logger.Warn("Failed to cache loaded value", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return value, nil
	})
	if err != nil {
		c.metrics.IncrementCounter("cache_loader_errors_total", 1)
		return zero, err
	}

	return result.(T), nil
}
