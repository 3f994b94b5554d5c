package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yelerty/stickermaker/internal/domain/entity"
	"github.com/yelerty/stickermaker/internal/domain/port"
	"go.uber.org/zap/zaptest"
)

func TestProgressReporter_ThrottlesRowWrites(t *testing.T) {
	repo := newFakeRepo()
	sink := &recordingSink{}
	job := entity.NewGifJob("u1", entity.JobKindVideoGif, "u1/clip.mp4", 10, 3)
	job.MarkProcessing()

	r := newProgressReporter(context.Background(), job, repo, []port.ProgressSink{sink}, zaptest.NewLogger(t))
	r.report(0.01, "a")
	r.report(0.02, "b")
	r.report(0.06, "c")
	r.report(0.08, "d")
	r.report(1, "done")

	assert.Equal(t, []float64{0.06, 1}, repo.progress)
	assert.Len(t, sink.all(), 5)
}

func TestProgressReporter_IgnoresRegressions(t *testing.T) {
	repo := newFakeRepo()
	sink := &recordingSink{}
	job := entity.NewGifJob("u1", entity.JobKindVideoGif, "u1/clip.mp4", 10, 3)
	job.MarkProcessing()

	r := newProgressReporter(context.Background(), job, repo, []port.ProgressSink{sink}, zaptest.NewLogger(t))
	r.report(0.5, "half")
	r.report(0.4, "back")

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "half", events[0].Message)
	assert.Equal(t, 0.5, job.Progress)
}

func TestProgressReporter_SurvivesCancelledRun(t *testing.T) {
	repo := newFakeRepo()
	sink := &recordingSink{}
	job := entity.NewGifJob("u1", entity.JobKindSticker, "u1/cat.png", 1, 3)
	job.MarkProcessing()

	ctx, cancel := context.WithCancel(context.Background())
	r := newProgressReporter(ctx, job, repo, []port.ProgressSink{sink}, zaptest.NewLogger(t))
	cancel()

	r.report(0.3, "removing background")
	job.MarkFailed("boom")
	r.finish()

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, entity.JobStatusFailed, events[1].Status)
	assert.Equal(t, "boom", events[1].Message)
}
