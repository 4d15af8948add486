package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/scriptreel/api/internal/model"
)

// Subscription is one live observer of a job's progress. Events arrive on C
// in publish order for the lifetime of the subscription; there is no
// history replay.
type Subscription struct {
	JobID string
	C     chan []byte
}

// Hub fans progress events out to per-job subscribers. Publishing never
// blocks: a subscriber that cannot keep up is dropped.
type Hub struct {
	// Subscriptions grouped by job ID
	subs map[string]map[*Subscription]bool

	register   chan *Subscription
	unregister chan *Subscription
	broadcast  chan *broadcastMessage

	mu sync.RWMutex
}

type broadcastMessage struct {
	JobID   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		subs:       make(map[string]map[*Subscription]bool),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		broadcast:  make(chan *broadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			if h.subs[sub.JobID] == nil {
				h.subs[sub.JobID] = make(map[*Subscription]bool)
			}
			h.subs[sub.JobID][sub] = true
			h.mu.Unlock()

		case sub := <-h.unregister:
			h.mu.Lock()
			if subs, ok := h.subs[sub.JobID]; ok {
				if _, ok := subs[sub]; ok {
					delete(subs, sub)
					close(sub.C)
					if len(subs) == 0 {
						delete(h.subs, sub.JobID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			if subs, ok := h.subs[msg.JobID]; ok {
				for sub := range subs {
					select {
					case sub.C <- msg.Message:
					default:
						close(sub.C)
						delete(subs, sub)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// Subscribe registers a new observer for a job.
func (h *Hub) Subscribe(jobID string) *Subscription {
	sub := &Subscription{
		JobID: jobID,
		C:     make(chan []byte, 256),
	}
	h.register <- sub
	return sub
}

// Unsubscribe removes an observer. Its channel is closed by the hub.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.unregister <- sub
}

// BroadcastProgress sends a progress snapshot to all job subscribers.
func (h *Hub) BroadcastProgress(jobID string, status model.JobStatus, step model.PipelineStep, progress int, message string) {
	h.publish(jobID, model.WSProgressMessage{
		Type:      model.WSMessageTypeProgress,
		JobID:     jobID,
		Status:    status,
		Step:      step,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// BroadcastComplete sends the final asset to all job subscribers.
func (h *Hub) BroadcastComplete(jobID string, asset *model.VideoAsset) {
	h.publish(jobID, model.WSCompleteMessage{
		Type:      model.WSMessageTypeComplete,
		JobID:     jobID,
		Asset:     asset,
		Timestamp: time.Now().UTC(),
	})
}

// BroadcastError sends a failure to all job subscribers.
func (h *Hub) BroadcastError(jobID, code, message string) {
	h.publish(jobID, model.WSErrorMessage{
		Type:      model.WSMessageTypeError,
		JobID:     jobID,
		Error:     model.WSError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) publish(jobID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal broadcast message: %v", err)
		return
	}
	h.broadcast <- &broadcastMessage{JobID: jobID, Message: data}
}

// HandleConnection serves one WebSocket observer. catchup, if non-nil, is
// written before any live event so a late subscriber sees the current
// state once; no history is replayed.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string, catchup []byte) {
	sub := h.Subscribe(jobID)
	defer h.Unsubscribe(sub)

	done := make(chan struct{})

	// Writer goroutine
	go func() {
		defer close(done)

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		if catchup != nil {
			if err := c.WriteMessage(websocket.TextMessage, catchup); err != nil {
				return
			}
		}

		for {
			select {
			case message, ok := <-sub.C:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Keep-alive ping
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case sub.C <- pong:
			default:
			}
		}
	}

	<-done
}
