package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"keytrail/internal/protocol"
	"keytrail/internal/recorder"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API only listens on loopback
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSManager handles WebSocket connections and broadcasting
type WSManager struct {
	server     *Server
	clients    map[*WebSocketClient]bool
	clientsMu  sync.RWMutex
	broadcast  chan protocol.Message
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	shutdown   chan struct{}
	stopOnce   sync.Once
}

// WebSocketClient represents a connected viewer
type WebSocketClient struct {
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
}

func newWSManager(s *Server) *WSManager {
	return &WSManager{
		server:     s,
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan protocol.Message, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		shutdown:   make(chan struct{}),
	}
}

func (m *WSManager) start() {
	logger := m.server.logger
	for {
		select {
		case client := <-m.register:
			m.clientsMu.Lock()
			m.clients[client] = true
			total := len(m.clients)
			m.clientsMu.Unlock()
			logger.Info("ws client registered", "remote", client.ip, "clients", total)

		case client := <-m.unregister:
			m.clientsMu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
				logger.Info("ws client unregistered", "remote", client.ip, "clients", len(m.clients))
			}
			m.clientsMu.Unlock()

		case message := <-m.broadcast:
			m.broadcastMessage(message)

		case <-m.shutdown:
			m.clientsMu.Lock()
			for client := range m.clients {
				delete(m.clients, client)
				close(client.send)
			}
			m.clientsMu.Unlock()
			return
		}
	}
}

func (m *WSManager) stop() {
	m.stopOnce.Do(func() { close(m.shutdown) })
}

func (m *WSManager) broadcastMessage(message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		m.server.logger.Error("ws: failed to marshal broadcast message", "error", err)
		return
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	for client := range m.clients {
		select {
		case client.send <- jsonMsg:
		default:
			// slow reader
			close(client.send)
			delete(m.clients, client)
		}
	}
}

// enqueue never blocks: it runs on the recorder's consumer goroutine.
func (m *WSManager) enqueue(msg protocol.Message) {
	select {
	case m.broadcast <- msg:
	case <-m.shutdown:
	default:
		m.server.logger.Debug("ws: broadcast queue full, message dropped", "type", msg.Type)
	}
}

// BroadcastMove sends an appended move to all clients.
func (m *WSManager) BroadcastMove(session string, mv recorder.Move) {
	m.enqueue(protocol.NewMove(session, mv))
}

// BroadcastState sends a state change to all clients.
func (m *WSManager) BroadcastState(info recorder.Info) {
	m.enqueue(protocol.NewState(protocol.TypeState, info))
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.server.logger.Warn("ws: failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, 256),
		ip:      r.RemoteAddr,
	}

	hello, _ := json.Marshal(protocol.NewState(protocol.TypeHello, m.server.recorder.GetHistory().Info()))
	client.send <- hello

	select {
	case m.register <- client:
	case <-m.shutdown:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// reply sends msg to this client only, unless it is already gone.
func (c *WebSocketClient) reply(msg protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.manager.clientsMu.RLock()
	defer c.manager.clientsMu.RUnlock()
	if !c.manager.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump pumps messages from the websocket connection to the hub.
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.server.logger.Warn("ws: read error", "remote", c.ip, "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	logger := c.manager.server.logger

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn("ws: invalid message format", "remote", c.ip, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		c.reply(protocol.Message{Type: protocol.TypePing})

	case protocol.TypeCommand:
		var payload protocol.CommandPayload
		if err := protocol.DecodePayload(msg, &payload); err != nil {
			c.reply(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Error: err.Error()}})
			return
		}

		logger.Info("ws: command received", "action", payload.Action, "remote", c.ip)

		// StopRecording waits for the session to drain, keep it off the read pump
		go func() {
			rec := c.manager.server.recorder
			var err error
			switch payload.Action {
			case protocol.ActionStart:
				err = rec.StartRecording()
			case protocol.ActionStop:
				err = rec.StopRecording()
			default:
				c.reply(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Error: "unknown action " + payload.Action}})
				return
			}
			if err != nil {
				logger.Error("ws: command failed", "action", payload.Action, "error", err)
				c.reply(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Error: err.Error()}})
			}
		}()

	default:
		logger.Debug("ws: ignoring message", "type", msg.Type)
	}
}
