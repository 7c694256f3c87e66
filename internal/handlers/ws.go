package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chepyr/go-task-api/internal/models"
)

const (
	EventTaskCreated = "task_created"
	EventTaskUpdated = "task_updated"
	EventTaskDeleted = "task_deleted"

	wsWriteTimeout = 5 * time.Second
	wsSendBuffer   = 16
)

type taskEvent struct {
	Event  string            `json:"event"`
	TaskID uuid.UUID         `json:"taskId"`
	Title  string            `json:"title"`
	Status models.TaskStatus `json:"status"`
}

// wsClient is one open socket. Only its writePump goroutine writes to conn.
type wsClient struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
}

// WSHub fans task events out to every open socket of the owning user.
type WSHub struct {
	connections map[uuid.UUID]map[*wsClient]struct{}
	mutex       sync.Mutex
	logger      zerolog.Logger
}

func NewWSHub(logger zerolog.Logger) *WSHub {
	return &WSHub{
		connections: make(map[uuid.UUID]map[*wsClient]struct{}),
		logger:      logger,
	}
}

func (h *WSHub) register(userID uuid.UUID, conn *websocket.Conn) *wsClient {
	client := &wsClient{userID: userID, conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.connections[userID] == nil {
		h.connections[userID] = make(map[*wsClient]struct{})
	}
	h.connections[userID][client] = struct{}{}
	return client
}

// unregister removes client and closes its send channel, once.
func (h *WSHub) unregister(client *wsClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeLocked(client)
}

func (h *WSHub) removeLocked(client *wsClient) {
	clients := h.connections[client.userID]
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.connections, client.userID)
	}
}

// count reports how many sockets are open for userID.
func (h *WSHub) count(userID uuid.UUID) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections[userID])
}

// BroadcastTaskEvent queues the event for every socket of userID without
// blocking. A client whose queue is full is dropped. No-op on a nil hub.
func (h *WSHub) BroadcastTaskEvent(userID uuid.UUID, event string, task *models.Task) {
	if h == nil {
		return
	}
	message, err := json.Marshal(taskEvent{
		Event:  event,
		TaskID: task.ID,
		Title:  task.Title,
		Status: task.Status,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal task event")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.connections[userID] {
		select {
		case client.send <- message:
		default:
			h.logger.Warn().Str("user_id", userID.String()).Msg("dropping slow websocket connection")
			h.removeLocked(client)
		}
	}
}

// writePump sends queued events until the hub closes the queue or a write fails.
func (h *WSHub) writePump(client *wsClient) {
	defer client.conn.Close()
	for message := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Warn().Err(err).Str("user_id", client.userID.String()).Msg("websocket write failed")
			return
		}
	}
	_ = client.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades an authenticated request and streams the caller's
// task events until the client goes away.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if h.WSHub == nil {
		sendError(w, "Live updates are disabled", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		h.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := h.WSHub.register(session.UserID, conn)
	go h.WSHub.writePump(client)
	h.Logger.Debug().Str("user_id", session.UserID.String()).Msg("websocket connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			// closing the queue stops writePump, which closes conn
			h.WSHub.unregister(client)
			h.Logger.Debug().Err(err).Str("user_id", session.UserID.String()).Msg("websocket closed")
			return
		}
	}
}
