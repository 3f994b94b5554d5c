package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stickermaker_jobs_processed_total",
		Help: "Total number of jobs processed, by outcome",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stickermaker_job_processing_duration_seconds",
		Help:    "Duration of job stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesEncodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stickermaker_frames_encoded_total",
		Help: "Total number of frames written to GIFs",
	})

	FramesDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stickermaker_frames_degraded_total",
		Help: "Frames dropped (decode, empty) or kept without a requested step (crop_fallback, segmentation_fallback)",
	}, []string{"reason"})

	SegmentationCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stickermaker_segmentation_cache_total",
		Help: "Segmentation cache lookups, by result",
	}, []string{"result"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stickermaker_active_workers",
		Help: "Number of workers currently rendering a job",
	})

	ProgressSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stickermaker_progress_subscribers",
		Help: "Open websocket connections following job progress",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stickermaker_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
