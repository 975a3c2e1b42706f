package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/model"
)

const (
	sendBuffer      = 64
	broadcastBuffer = 256
	pingInterval    = 30 * time.Second
)

// Client is one websocket subscriber to a single job
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub fans job updates out to websocket subscribers. Broadcasts never block
// the caller: when the hub or a subscriber is saturated the message is dropped,
// since polling the job record remains authoritative.
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex
}

// BroadcastMessage is an encoded message addressed to one job's subscribers
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, broadcastBuffer),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			log.Debug().Str("job_id", client.JobID).Msg("Websocket subscriber registered")

		case client := <-h.unregister:
			h.remove(client)
			log.Debug().Str("job_id", client.JobID).Msg("Websocket subscriber unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.JobID] {
				select {
				case client.Send <- msg.Message:
				default:
					// slow subscriber
					close(client.Send)
					delete(h.clients[msg.JobID], client)
				}
			}
			if len(h.clients[msg.JobID]) == 0 {
				delete(h.clients, msg.JobID)
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.JobID]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.Send)
		if len(clients) == 0 {
			delete(h.clients, client.JobID)
		}
	}
}

// Subscribers returns how many clients are listening to jobID
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastProgress publishes a checkpoint of job
func (h *Hub) BroadcastProgress(job *model.Job) {
	h.publish(job.ID, model.WSProgressMessage{
		Type:     model.WSMessageTypeProgress,
		JobID:    job.ID,
		Kind:     job.Kind,
		Progress: job.Progress,
		Status:   job.Status,
		Message:  job.Message,
	})
}

// BroadcastComplete publishes the polled view of a completed job, result URL included
func (h *Hub) BroadcastComplete(job *model.Job) {
	h.publish(job.ID, model.WSCompleteMessage{
		Type:  model.WSMessageTypeComplete,
		JobID: job.ID,
		Job:   model.NewJobResponse(job),
	})
}

// BroadcastError publishes a terminal failure or cancellation
func (h *Hub) BroadcastError(jobID string, code, message string) {
	h.publish(jobID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

func (h *Hub) publish(jobID string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to marshal websocket message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{JobID: jobID, Message: data}:
	default:
		log.Warn().Str("job_id", jobID).Msg("Websocket broadcast buffer full, dropping update")
	}
}

// reply sends data to client alone. It reports false when the client is no
// longer registered or its buffer is full.
func (h *Hub) reply(client *Client, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Send is closed only under mu, after removal from clients
	if !h.clients[client.JobID][client] {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}

// HandleConnection serves one subscriber until it disconnects
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, sendBuffer),
	}

	h.Register(client)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("job_id", jobID).Msg("Websocket read error")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.reply(client, pong)
		}
	}
}
