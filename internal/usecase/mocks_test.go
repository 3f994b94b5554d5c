package usecase

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/yelerty/stickermaker/internal/domain/entity"
	"github.com/yelerty/stickermaker/internal/domain/port"
	"github.com/yelerty/stickermaker/internal/gifmaker"
)

type fakeRepo struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]entity.GifJob
	history  []entity.JobStatus
	progress []float64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: map[uuid.UUID]entity.GifJob{}}
}

func (r *fakeRepo) Create(_ context.Context, job *entity.GifJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	r.history = append(r.history, job.Status)
	return nil
}

func (r *fakeRepo) Update(_ context.Context, job *entity.GifJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	r.history = append(r.history, job.Status)
	return nil
}

func (r *fakeRepo) UpdateProgress(_ context.Context, _ uuid.UUID, fraction float64, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, fraction)
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.GifJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, port.ErrJobNotFound
	}
	return &j, nil
}

func (r *fakeRepo) job(id uuid.UUID) entity.GifJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) DownloadInput(ctx context.Context, objectKey string, destPath string) error {
	return m.Called(ctx, objectKey, destPath).Error(0)
}

func (m *mockStorage) UploadOutput(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	data, _ := io.ReadAll(reader)
	return m.Called(ctx, objectKey, data, size, contentType).Error(0)
}

type mockMaker struct {
	mock.Mock
}

func (m *mockMaker) CreateGif(ctx context.Context, req gifmaker.Request, onProgress gifmaker.ProgressFunc) (*gifmaker.GifOutput, error) {
	args := m.Called(ctx, req, onProgress)
	out, _ := args.Get(0).(*gifmaker.GifOutput)
	return out, args.Error(1)
}

func (m *mockMaker) CreateGifFromImages(ctx context.Context, images []image.Image, delaySeconds float64, opts gifmaker.TransformOptions, onProgress gifmaker.ProgressFunc) (*gifmaker.GifOutput, error) {
	args := m.Called(ctx, images, delaySeconds, opts, onProgress)
	out, _ := args.Get(0).(*gifmaker.GifOutput)
	return out, args.Error(1)
}

func (m *mockMaker) CreateSticker(ctx context.Context, req gifmaker.StickerRequest, onProgress gifmaker.ProgressFunc) (*gifmaker.StickerOutput, error) {
	args := m.Called(ctx, req, onProgress)
	out, _ := args.Get(0).(*gifmaker.StickerOutput)
	return out, args.Error(1)
}

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, path string) (*port.MediaInfo, error) {
	args := m.Called(ctx, path)
	info, _ := args.Get(0).(*port.MediaInfo)
	return info, args.Error(1)
}

type fakePacks struct {
	frames int
}

func (p *fakePacks) WritePack(_ context.Context, frames []image.Image, w io.Writer) error {
	p.frames = len(frames)
	_, err := w.Write([]byte("PK"))
	return err
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []entity.JobStatus
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	var status entity.GifStatusMessage
	if err := json.Unmarshal(msg, &status); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, status.Status)
	return nil
}

func (p *recordingPublisher) all() []entity.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entity.JobStatus(nil), p.statuses...)
}

type mockDLQ struct {
	mock.Mock
}

func (m *mockDLQ) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return m.Called(ctx, msg, reason).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyFailure(ctx context.Context, notice port.FailureNotice) error {
	return m.Called(ctx, notice).Error(0)
}

type fakeCancels struct {
	mu      sync.Mutex
	flags   map[uuid.UUID]bool
	cleared []uuid.UUID
}

func newFakeCancels() *fakeCancels {
	return &fakeCancels{flags: map[uuid.UUID]bool{}}
}

func (c *fakeCancels) RequestCancel(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags[id] = true
	return nil
}

func (c *fakeCancels) IsCancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags[id], nil
}

func (c *fakeCancels) ClearCancel(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flags, id)
	c.cleared = append(c.cleared, id)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []entity.ProgressEvent
}

func (s *recordingSink) PublishProgress(_ context.Context, ev entity.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) all() []entity.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.ProgressEvent(nil), s.events...)
}
