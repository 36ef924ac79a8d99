package modality

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/vericloud/vericloud-fusion/internal/cache"
	"github.com/vericloud/vericloud-fusion/internal/models"
)

// CachedPredictor memoises a Predictor's results keyed by a content hash of
// the input. Cache failures never fail a prediction.
type CachedPredictor struct {
	next   Predictor
	cache  cache.Provider
	ttl    time.Duration
	logger *slog.Logger
}

// WithCache wraps next. A nil provider returns next unchanged.
func WithCache(next Predictor, provider cache.Provider, ttl time.Duration, logger *slog.Logger) Predictor {
	if provider == nil {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedPredictor{next: next, cache: provider, ttl: ttl, logger: logger}
}

// Modality implements Predictor.
func (c *CachedPredictor) Modality() models.Modality { return c.next.Modality() }

// Predict serves from cache when possible and stores fresh results.
func (c *CachedPredictor) Predict(ctx context.Context, in Input) (models.ModalityResult, error) {
	key := CacheKey(c.next.Modality(), in)

	if data, err := c.cache.Get(ctx, key); err == nil {
		var cached models.ModalityResult
		if err := json.Unmarshal(data, &cached); err == nil && cached.Validate() == nil {
			return cached, nil
		}
		c.logger.Warn("discarding corrupt cached prediction", "modality", c.next.Modality(), "key", key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("prediction cache read failed", "modality", c.next.Modality(), "error", err)
	}

	result, err := c.next.Predict(ctx, in)
	if err != nil {
		return models.ModalityResult{}, err
	}

	if data, err := json.Marshal(result); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("prediction cache write failed", "modality", c.next.Modality(), "error", err)
		}
	}
	return result, nil
}

// CacheKey derives the cache key for an input: the modality plus a sha256 of
// the payload the service would see.
func CacheKey(m models.Modality, in Input) string {
	h := sha256.New()
	h.Write([]byte(m))
	h.Write([]byte{0})
	if m == models.ModalityText {
		h.Write([]byte(strings.TrimSpace(in.Text)))
	} else if in.Artifact != nil {
		h.Write(in.Artifact.Data)
	}
	return "prediction:" + string(m) + ":" + hex.EncodeToString(h.Sum(nil))
}
