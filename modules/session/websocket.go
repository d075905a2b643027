package session

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"omnipost-server/modules/common/model"
)

const (
	MessageGenerationUpdate = "generation_update"
	MessageRequestState     = "request_state"
	MessageUserJoined       = "user_joined"
	MessageUserLeft         = "user_left"
)

// Message - WebSocket 메시지
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId,omitempty"`
	Snapshot  *model.Snapshot `json:"snapshot,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 개발용 - 모든 origin 허용
		return true
	},
}

// HandleWebSocket - /ws?session=&user= 연결. 접속 즉시 현재 스냅샷 전송
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	userID := r.URL.Query().Get("user")
	if sessionID == "" || userID == "" {
		http.Error(w, `{"error": "session and user are required"}`, http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:      conn,
		sessionID: sessionID,
		userID:    userID,
		send:      make(chan []byte, 256),
	}

	log.Printf("🔍 New WebSocket connection - Session: %s, User: %s", sessionID, userID)

	session := m.GetOrCreate(sessionID)
	session.addClient(client)

	m.metricsMutex.Lock()
	m.metrics.TotalConnections++
	m.metricsMutex.Unlock()

	snapshot := session.board.Snapshot()
	session.sendTo(client, Message{Type: MessageGenerationUpdate, SessionID: sessionID, Snapshot: &snapshot})

	go client.writePump()
	go client.readPump(session)
}

// readPump - 클라이언트 메시지 처리 (상태 요청만 응답)
func (c *Client) readPump(session *Session) {
	defer func() {
		session.removeClient(c)
		c.conn.Close()
	}()

	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		session.touch()

		switch message.Type {
		case MessageRequestState:
			snapshot := session.board.Snapshot()
			session.sendTo(c, Message{Type: MessageGenerationUpdate, SessionID: session.id, Snapshot: &snapshot})
		default:
			log.Printf("User %s sent unsupported message type %q", c.userID, message.Type)
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
