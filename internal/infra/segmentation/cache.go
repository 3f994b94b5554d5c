package segmentation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/redis/go-redis/v9"
	"github.com/yelerty/stickermaker/internal/gifmaker"
	"github.com/yelerty/stickermaker/internal/infra/metrics"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "gif:seg:"

// CachedSegmenter memoizes cut-outs in redis keyed by the pixel content of the input, so
// retried jobs and repeated frames skip the segmentation call. Cache failures only
// cost the lookup.
type CachedSegmenter struct {
	next   gifmaker.Segmenter
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSegmenter(next gifmaker.Segmenter, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedSegmenter {
	return &CachedSegmenter{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedSegmenter) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	key := CacheKey(img)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if out, decErr := imaging.Decode(bytes.NewReader(data)); decErr == nil {
			metrics.SegmentationCacheTotal.WithLabelValues("hit").Inc()
			return out, nil
		}
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key))
		metrics.SegmentationCacheTotal.WithLabelValues("corrupt").Inc()
	case errors.Is(err, redis.Nil):
		metrics.SegmentationCacheTotal.WithLabelValues("miss").Inc()
	default:
		c.logger.Warn("segmentation cache lookup failed", zap.Error(err))
		metrics.SegmentationCacheTotal.WithLabelValues("error").Inc()
	}

	out, err := c.next.RemoveBackground(ctx, img)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return out, nil
	}
	if err := c.client.Set(ctx, key, buf.Bytes(), c.ttl).Err(); err != nil {
		c.logger.Warn("segmentation cache store failed", zap.Error(err))
	}
	return out, nil
}

// CacheKey hashes the size and NRGBA pixels of img.
func CacheKey(img image.Image) string {
	nrgba := imaging.Clone(img)
	h := sha256.New()
	var size [8]byte
	binary.BigEndian.PutUint32(size[:4], uint32(nrgba.Rect.Dx()))
	binary.BigEndian.PutUint32(size[4:], uint32(nrgba.Rect.Dy()))
	h.Write(size[:])
	h.Write(nrgba.Pix)
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
