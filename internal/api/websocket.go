package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"assetintel/internal/models"
)

// --- WebSocket Hub ---

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.Mutex
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

var hub = &Hub{
	broadcast:  make(chan []byte),
	register:   make(chan *Client),
	unregister: make(chan *Client),
	clients:    make(map[*Client]bool),
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleRunEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	hub.register <- client

	go func() {
		defer func() {
			hub.unregister <- client
			conn.Close()
		}()
		for {
			message, ok := <-client.send
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			w.Close()
		}
	}()

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

type BroadcastMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WSRunEvent is the trimmed run snapshot pushed on each status transition.
type WSRunEvent struct {
	RunID           string  `json:"run_id"`
	AssetID         string  `json:"asset_id"`
	OrgID           string  `json:"org_id"`
	Processor       string  `json:"processor"`
	Status          string  `json:"status"`
	ProgressCurrent int     `json:"progress_current"`
	ProgressTotal   *int    `json:"progress_total,omitempty"`
	ProgressMessage *string `json:"progress_message,omitempty"`
}

// BroadcastRunUpdate pushes a run status transition to all connected clients.
// Wired into the intelligence service's Notify hook.
func BroadcastRunUpdate(run *models.Run) {
	payload := WSRunEvent{
		RunID:           run.ID.String(),
		AssetID:         run.AssetID.String(),
		OrgID:           run.OrgID.String(),
		Processor:       run.ProcessorName,
		Status:          run.Status,
		ProgressCurrent: run.ProgressCurrent,
		ProgressTotal:   run.ProgressTotal,
		ProgressMessage: run.ProgressMessage,
	}
	msg := BroadcastMessage{Type: "run_update", Payload: payload}
	data, _ := json.Marshal(msg)
	hub.broadcast <- data
}

func init() {
	go hub.run()
}
