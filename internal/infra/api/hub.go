package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yelerty/stickermaker/internal/domain/entity"
	"github.com/yelerty/stickermaker/internal/infra/metrics"
	"go.uber.org/zap"
)

const (
	subscriberBuffer = 32
	writeTimeout     = 5 * time.Second
)

type subscriber struct {
	jobID uuid.UUID
	conn  *websocket.Conn
	send  chan entity.ProgressEvent
	once  sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub fans progress events out to websocket subscribers of each job. A subscriber that
// falls behind loses events rather than stalling the worker.
type Hub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[*subscriber]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[*subscriber]struct{}), logger: logger}
}

func (h *Hub) PublishProgress(_ context.Context, ev entity.ProgressEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[ev.JobID] {
		select {
		case sub.send <- ev:
		default:
			h.logger.Debug("progress subscriber lagging, event dropped", zap.String("job_id", ev.JobID.String()))
		}
	}
	return nil
}

func (h *Hub) Subscribers(jobID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

func (h *Hub) add(jobID uuid.UUID, conn *websocket.Conn) *subscriber {
	sub := &subscriber{jobID: jobID, conn: conn, send: make(chan entity.ProgressEvent, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*subscriber]struct{})
	}
	h.subs[jobID][sub] = struct{}{}
	h.mu.Unlock()

	metrics.ProgressSubscribers.Inc()
	return sub
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[sub.jobID]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			metrics.ProgressSubscribers.Dec()
		}
		if len(set) == 0 {
			delete(h.subs, sub.jobID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// serve pumps events to the connection until the job reaches a final state, the client
// goes away or the write fails.
func (h *Hub) serve(sub *subscriber, first *entity.ProgressEvent) {
	defer sub.conn.Close()
	defer h.remove(sub)

	// reads only detect the close frame; clients never send data
	go func() {
		for {
			if _, _, err := sub.conn.ReadMessage(); err != nil {
				h.remove(sub)
				return
			}
		}
	}()

	write := func(ev entity.ProgressEvent) bool {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sub.conn.WriteJSON(ev); err != nil {
			h.logger.Debug("progress write failed", zap.Error(err))
			return false
		}
		return !ev.Status.Final()
	}

	if first != nil && !write(*first) {
		h.closeNormally(sub)
		return
	}
	for ev := range sub.send {
		if !write(ev) {
			h.closeNormally(sub)
			return
		}
	}
}

func (h *Hub) closeNormally(sub *subscriber) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	_ = sub.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
