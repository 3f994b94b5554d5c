package usecase

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/yelerty/stickermaker/internal/gifmaker"
	"github.com/yelerty/stickermaker/internal/infra/metrics"
)

func TestRecordStats_CountsDegradedFramesByReason(t *testing.T) {
	reasons := []string{"decode", "crop_fallback", "segmentation_fallback", "empty"}
	before := map[string]float64{}
	for _, r := range reasons {
		before[r] = testutil.ToFloat64(metrics.FramesDegradedTotal.WithLabelValues(r))
	}
	encodedBefore := testutil.ToFloat64(metrics.FramesEncodedTotal)

	recordStats(gifmaker.RunStats{
		Requested:            10,
		Sampled:              8,
		CropFallbacks:        3,
		SegmentationFailures: 2,
		Encoded:              7,
	})

	want := map[string]float64{"decode": 2, "crop_fallback": 3, "segmentation_fallback": 2, "empty": 1}
	for _, r := range reasons {
		got := testutil.ToFloat64(metrics.FramesDegradedTotal.WithLabelValues(r)) - before[r]
		assert.Equal(t, want[r], got, r)
	}
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.FramesEncodedTotal)-encodedBefore)
}
