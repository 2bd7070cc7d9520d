package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
)

// ErrNoKeys is returned when a key ring has no credentials.
var ErrNoKeys = errors.New("no API keys configured")

func cleanKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || strings.HasPrefix(k, "#") || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// KeyRing rotates through a pool of API keys for one backend.
type KeyRing struct {
	keys    []string
	shuffle func(n int, swap func(i, j int))
	logger  *slog.Logger
}

// NewKeyRing creates a ring over keys.
func NewKeyRing(keys []string, logger *slog.Logger) *KeyRing {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyRing{keys: cleanKeys(keys), shuffle: rand.Shuffle, logger: logger}
}

// Len returns the number of keys.
func (k *KeyRing) Len() int {
	return len(k.keys)
}

// order returns the keys in a fresh random order.
func (k *KeyRing) order() []string {
	out := append([]string(nil), k.keys...)
	k.shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Rotate calls fn with each key in random order, at most once per key.
// It stops at the first success, or at the first error that rotate does
// not accept. When every key has failed, the last error is returned.
// A nil rotate means IsRateLimit.
func (k *KeyRing) Rotate(ctx context.Context, rotate func(error) bool, fn func(ctx context.Context, key string) error) error {
	if len(k.keys) == 0 {
		return ErrNoKeys
	}
	if rotate == nil {
		rotate = IsRateLimit
	}

	var lastErr error
	keys := k.order()
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx, key)
		if err == nil {
			return nil
		}
		lastErr = err
		if !rotate(err) {
			return err
		}
		k.logger.Warn("credential rate limited, rotating", "attempt", i+1, "keys", len(keys), "error", err)
	}
	return fmt.Errorf("all %d API keys are rate limited: %w", len(keys), lastErr)
}
