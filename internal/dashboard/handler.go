// Event handling and message formatting for the dashboard.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/cometa-fiber/fieldsync/internal/queue"
)

// Handler bridges sync-subsystem events to dashboard broadcasts.
type Handler struct {
	server *Server
	queue  *queue.Queue
	logger *log.Logger
}

// NewHandler creates an event handler connected to a dashboard server.
func NewHandler(server *Server, q *queue.Queue, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, queue: q, logger: logger}
}

// OnQueueUpdated re-reads queue counts and broadcasts the fresh depth.
func (h *Handler) OnQueueUpdated(ctx context.Context) {
	counts, err := h.queue.Counts(ctx)
	if err != nil {
		h.logger.Printf("Failed to read queue counts: %v", err)
		return
	}

	data := QueueData{
		Pending:    counts[queue.StatusPending],
		InProgress: counts[queue.StatusInProgress],
		Completed:  counts[queue.StatusCompleted],
		Failed:     counts[queue.StatusFailed],
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal queue data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeQueue,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// OnConnectivityChanged broadcasts an online/offline transition.
func (h *Handler) OnConnectivityChanged(online bool) {
	if online {
		h.logger.Printf("Connectivity restored")
	} else {
		h.logger.Printf("Connectivity lost")
	}

	dataJSON, err := json.Marshal(ConnectivityData{Online: online})
	if err != nil {
		h.logger.Printf("Failed to marshal connectivity data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeConnectivity,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// OnDrainComplete broadcasts the outcome of a finished drain pass.
func (h *Handler) OnDrainComplete(drained, failed int, duration time.Duration) {
	h.logger.Printf("Drain complete: %d synced, %d failed in %v", drained, failed, duration)

	dataJSON, err := json.Marshal(DrainData{
		Drained:  drained,
		Failed:   failed,
		Duration: duration,
	})
	if err != nil {
		h.logger.Printf("Failed to marshal drain data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeDrain,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
