package detector

import (
	"fmt"
	"time"

	farmhash "github.com/leemcloughlin/gofarmhash"
	"github.com/patrickmn/go-cache"
	"gocv.io/x/gocv"
)

// Cache defaults for still-image detection.
const (
	DefaultCacheTTL     = 10 * time.Minute
	DefaultCacheCleanup = 15 * time.Minute
)

// CachedDetector memoizes detection results for identical frames.
// It is meant for still images (dataset files, uploads); live video frames
// rarely repeat and should use the wrapped detector directly.
type CachedDetector struct {
	next  Detector
	cache *cache.Cache
}

// NewCachedDetector wraps next with a TTL cache keyed by frame content.
func NewCachedDetector(next Detector, ttl time.Duration) *CachedDetector {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedDetector{
		next:  next,
		cache: cache.New(ttl, DefaultCacheCleanup),
	}
}

// Detect returns a cached result for a frame with the same pixels, or
// delegates to the wrapped detector and stores its answer.
func (c *CachedDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return c.next.Detect(frame)
	}

	key := frameKey(frame)
	if v, ok := c.cache.Get(key); ok {
		return v.([]HandLandmarks), nil
	}

	hands, err := c.next.Detect(frame)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, hands, cache.DefaultExpiration)
	return hands, nil
}

// Len returns the number of cached frames.
func (c *CachedDetector) Len() int {
	return c.cache.ItemCount()
}

// Flush drops every cached result.
func (c *CachedDetector) Flush() {
	c.cache.Flush()
}

// Close flushes the cache and closes the wrapped detector.
func (c *CachedDetector) Close() error {
	c.cache.Flush()
	return c.next.Close()
}

func frameKey(frame *gocv.Mat) string {
	return fmt.Sprintf("%dx%d/%d/%016x", frame.Cols(), frame.Rows(), frame.Type(), farmhash.Hash64(frame.ToBytes()))
}
