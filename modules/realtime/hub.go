package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

// 허브가 직접 다루는 메시지 타입
const (
	MessageTypeState  = "state"
	MessageTypeClosed = "closed" // 인스턴스 간 세션 종료 신호 (클라이언트로 나가지 않음)
)

// Message - 클라이언트로 나가는 메시지
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Payload   any    `json:"payload,omitempty"`
}

// SnapshotSource - 접속 직후 보낼 현재 상태 (세션이 없으면 false)
type SnapshotSource func(sessionID string) (any, bool)

// Client - 연결된 웹소켓 클라이언트
type Client struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
}

// Hub - 세션별 웹소켓 브로드캐스트
type Hub struct {
	upgrader websocket.Upgrader
	source   SnapshotSource

	mu               sync.RWMutex
	rooms            map[string]map[*Client]struct{}
	totalConnections int
}

// NewHub - allowedOrigins에 "*"가 있으면 모든 origin 허용
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{rooms: make(map[string]map[*Client]struct{})}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
	}
	return h
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// SetSnapshotSource - 세션 조회 함수 연결
func (h *Hub) SetSnapshotSource(source SnapshotSource) {
	h.source = source
}

// Publish - 세션의 모든 클라이언트에게 전송. 버퍼가 찬 클라이언트는 끊음
func (h *Hub) Publish(sessionID, msgType string, payload any) {
	messageBytes, err := json.Marshal(Message{Type: msgType, SessionID: sessionID, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}
	h.deliver(sessionID, messageBytes)
}

func (h *Hub) deliver(sessionID string, messageBytes []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[sessionID] {
		h.sendLocked(client, messageBytes)
	}
}

// deliverRaw - Relay가 받은 인코딩된 Message를 로컬 클라이언트에게 전달
func (h *Hub) deliverRaw(messageBytes []byte) {
	var envelope struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(messageBytes, &envelope); err != nil || envelope.SessionID == "" {
		log.Printf("⚠️ [Realtime] Ignoring malformed relayed message: %v", err)
		return
	}
	if envelope.Type == MessageTypeClosed {
		h.Disconnect(envelope.SessionID)
		return
	}
	h.deliver(envelope.SessionID, messageBytes)
}

// sendTo - 한 클라이언트에게만 전송 (이미 떠났으면 무시)
func (h *Hub) sendTo(c *Client, msgType string, payload any) {
	messageBytes, err := json.Marshal(Message{Type: msgType, SessionID: c.sessionID, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[c.sessionID][c]; ok {
		h.sendLocked(c, messageBytes)
	}
}

// sendLocked - h.mu를 잡은 상태에서 호출
func (h *Hub) sendLocked(c *Client, messageBytes []byte) {
	select {
	case c.send <- messageBytes:
	default:
		log.Printf("⚠️ [Realtime] Dropping slow client in session %s", c.sessionID)
		h.removeLocked(c)
	}
}

// Disconnect - 세션 종료 시 연결 정리
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[sessionID] {
		log.Printf("🔌 Disconnecting client from closed session %s", sessionID)
		h.removeLocked(client)
	}
}

// Stats - 현재 연결 수, 누적 연결 수
func (h *Hub) Stats() (current, total int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, room := range h.rooms {
		current += len(room)
	}
	return current, h.totalConnections
}

func (h *Hub) add(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.sessionID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.sessionID] = room
	}
	room[c] = struct{}{}
	h.totalConnections++
	return len(room)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked - h.mu를 잡은 상태에서 호출
func (h *Hub) removeLocked(c *Client) {
	room, ok := h.rooms[c.sessionID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	close(c.send)
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.sessionID)
	}
}

// ServeWS - GET /ws?session={id}
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "missing session parameter", http.StatusBadRequest)
		return
	}

	if h.source != nil {
		if _, ok := h.source(sessionID); !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, sendBufferSize),
	}
	count := h.add(client)
	log.Printf("👤 Client joined session %s (Clients: %d)", sessionID, count)

	go client.writePump()
	go client.readPump(h)

	// 방에 들어간 뒤 조회해야 그 사이 발행된 상태를 놓치지 않음
	// 새 클라이언트에게만 보내고 기존 클라이언트에는 중복 전송하지 않음
	if h.source != nil {
		if snapshot, ok := h.source(sessionID); ok {
			h.sendTo(client, MessageTypeState, snapshot)
		}
	}
}

// 클라이언트 메시지는 무시. 연결 종료 감지용
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		log.Printf("👋 Client left session %s", c.sessionID)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
