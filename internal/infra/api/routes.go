package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yelerty/stickermaker/internal/domain/entity"
	"github.com/yelerty/stickermaker/internal/domain/port"
	"go.uber.org/zap"
)

type JobReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.GifJob, error)
}

type ProgressReader interface {
	GetProgress(ctx context.Context, jobID uuid.UUID) (*entity.ProgressEvent, error)
}

type ServerConfig struct {
	Jobs     JobReader
	Progress ProgressReader
	Cancels  port.CancelStore
	Hub      *Hub
	Logger   *zap.Logger
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	// websocket upgrades need the raw ResponseWriter, so logging stays off this route
	r.Get("/jobs/{id}/events", eventsHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(LoggingMiddleware(cfg.Logger))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Post("/jobs/{id}/cancel", cancelJobHandler(cfg))
	})

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// loadJob writes the error response itself and returns nil when the job cannot be
// served.
func loadJob(cfg ServerConfig, w http.ResponseWriter, r *http.Request) *entity.GifJob {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "job id must be a uuid", "BAD_REQUEST")
		return nil
	}

	job, err := cfg.Jobs.FindByID(r.Context(), id)
	if errors.Is(err, port.ErrJobNotFound) {
		WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
		return nil
	}
	if err != nil {
		cfg.Logger.Error("load job failed", zap.String("job_id", id.String()), zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
		return nil
	}
	return job
}

// liveProgress overlays the cached progress of a running job; the cache is written on
// every report while the row is not.
func liveProgress(ctx context.Context, cfg ServerConfig, job *entity.GifJob) {
	if cfg.Progress == nil || job.Status != entity.JobStatusProcessing {
		return
	}
	ev, err := cfg.Progress.GetProgress(ctx, job.ID)
	if err != nil || ev.Fraction < job.Progress {
		return
	}
	job.Progress = ev.Fraction
	job.StageMessage = ev.Message
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := loadJob(cfg, w, r)
		if job == nil {
			return
		}
		liveProgress(r.Context(), cfg, job)
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func cancelJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := loadJob(cfg, w, r)
		if job == nil {
			return
		}
		if job.Status.Final() {
			WriteError(w, http.StatusConflict, "job already "+string(job.Status), "CONFLICT")
			return
		}

		if err := cfg.Cancels.RequestCancel(r.Context(), job.ID); err != nil {
			cfg.Logger.Error("cancel request failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
			return
		}

		cfg.Logger.Info("cancellation requested", zap.String("job_id", job.ID.String()))
		WriteJSON(w, http.StatusAccepted, CancelResponse{ID: job.ID.String(), Status: "cancel_requested"})
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := loadJob(cfg, w, r)
		if job == nil {
			return
		}
		liveProgress(r.Context(), cfg, job)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		snapshot := entity.ProgressEvent{
			JobID:    job.ID,
			Status:   job.Status,
			Fraction: job.Progress,
			Message:  job.StageMessage,
			At:       job.UpdatedAt,
		}
		if job.Status == entity.JobStatusFailed || job.Status == entity.JobStatusRetrying {
			snapshot.Message = job.ErrorMessage
		}
		sub := cfg.Hub.add(job.ID, conn)
		go cfg.Hub.serve(sub, &snapshot)
	}
}
