package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"omnipost-server/modules/common/model"
	"omnipost-server/modules/generation"
)

const (
	emptySessionIdle  = 5 * time.Minute
	expiredThreshold  = 24 * time.Hour
	inactiveThreshold = 30 * time.Minute
	storeTimeout      = 5 * time.Second
)

// Client - 연결된 WebSocket 클라이언트
type Client struct {
	conn      *websocket.Conn
	sessionID string
	userID    string
	send      chan []byte
}

// Session - 세션 하나 (보드 + 연결된 클라이언트 + 실행 중인 생성의 취소 함수)
type Session struct {
	id           string
	board        *generation.Board
	clients      map[string]*Client
	mutex        sync.RWMutex
	createdAt    time.Time
	lastActivity time.Time
	cancel       context.CancelFunc
	generationID string
}

// Metrics - 서버 메트릭
type Metrics struct {
	TotalSessions     int       `json:"totalSessions"`
	ActiveSessions    int       `json:"activeSessions"`
	TotalConnections  int       `json:"totalConnections"`
	TotalGenerations  int       `json:"totalGenerations"`
	FailedGenerations int       `json:"failedGenerations"`
	StartTime         time.Time `json:"startTime"`
}

// SessionInfo - 메트릭 응답용 세션 요약
type SessionInfo struct {
	SessionID    string    `json:"sessionId"`
	ClientCount  int       `json:"clientCount"`
	Generating   bool      `json:"generating"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Age          string    `json:"age"`
	Inactive     string    `json:"inactive"`
}

// Manager - 세션 매니저
type Manager struct {
	sessions     map[string]*Session
	mutex        sync.RWMutex
	metrics      Metrics
	metricsMutex sync.RWMutex
	store        generation.SnapshotStore
}

// NewManager - 세션 매니저 생성
func NewManager(store generation.SnapshotStore) *Manager {
	if store == nil {
		store = generation.NewMemoryStore()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		metrics:  Metrics{StartTime: time.Now()},
		store:    store,
	}
}

// GetOrCreate - 세션 가져오기 또는 생성 (저장된 스냅샷이 있으면 복원)
func (m *Manager) GetOrCreate(sessionID string) *Session {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		now := time.Now()
		session = &Session{
			id:           sessionID,
			board:        generation.NewBoard(sessionID),
			clients:      make(map[string]*Client),
			createdAt:    now,
			lastActivity: now,
		}

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if snapshot, err := m.store.Load(ctx, sessionID); err == nil {
			session.board.Restore(*snapshot)
			log.Printf("♻️  Restored session %s from snapshot (generation %s)", sessionID, snapshot.GenerationID)
		} else if !errors.Is(err, generation.ErrSnapshotNotFound) {
			log.Printf("⚠️  Failed to load snapshot for %s: %v", sessionID, err)
		}
		cancel()

		session.board.Subscribe(m.observer(session))
		m.sessions[sessionID] = session

		m.metricsMutex.Lock()
		m.metrics.TotalSessions++
		m.metrics.ActiveSessions++
		total, active := m.metrics.TotalSessions, m.metrics.ActiveSessions
		m.metricsMutex.Unlock()

		log.Printf("✅ Created new session: %s (Total: %d, Active: %d)", sessionID, total, active)
	}

	session.touch()
	return session
}

// Get - 메모리에 있는 세션 조회
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, ok := m.sessions[sessionID]
	return session, ok
}

// LoadSnapshot - 메모리 세션 우선, 없으면 저장소에서 조회
func (m *Manager) LoadSnapshot(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	if session, ok := m.Get(sessionID); ok {
		snapshot := session.board.Snapshot()
		return &snapshot, nil
	}
	return m.store.Load(ctx, sessionID)
}

// observer - 보드 변경을 저장소에 기록하고 클라이언트들에게 브로드캐스트
func (m *Manager) observer(s *Session) generation.Observer {
	return func(snapshot model.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := m.store.Save(ctx, snapshot); err != nil {
			log.Printf("⚠️  Failed to save snapshot for %s: %v", snapshot.SessionID, err)
		}
		cancel()

		s.broadcastToAll(Message{
			Type:      MessageGenerationUpdate,
			SessionID: snapshot.SessionID,
			Snapshot:  &snapshot,
		})
	}
}

// RecordGeneration - 생성 결과 메트릭 기록
func (m *Manager) RecordGeneration(failed bool) {
	m.metricsMutex.Lock()
	m.metrics.TotalGenerations++
	if failed {
		m.metrics.FailedGenerations++
	}
	m.metricsMutex.Unlock()
}

// Metrics - 메트릭 스냅샷과 세션 목록
func (m *Manager) Metrics() (Metrics, []SessionInfo) {
	m.metricsMutex.RLock()
	metrics := m.metrics
	m.metricsMutex.RUnlock()

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for id, s := range m.sessions {
		s.mutex.RLock()
		infos = append(infos, SessionInfo{
			SessionID:    id,
			ClientCount:  len(s.clients),
			Generating:   s.runningLocked(),
			CreatedAt:    s.createdAt,
			LastActivity: s.lastActivity,
			Age:          time.Since(s.createdAt).String(),
			Inactive:     time.Since(s.lastActivity).String(),
		})
		s.mutex.RUnlock()
	}
	return metrics, infos
}

// CleanupEmptySessions - 클라이언트 없고 일정 시간 유휴인 세션 정리 (생성 중이면 유지)
func (m *Manager) CleanupEmptySessions() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	cleaned := 0
	for sessionID, s := range m.sessions {
		s.mutex.RLock()
		removable := len(s.clients) == 0 && !s.runningLocked() && now.Sub(s.lastActivity) > emptySessionIdle
		s.mutex.RUnlock()

		if removable {
			delete(m.sessions, sessionID)
			cleaned++
			log.Printf("🧹 Cleaned up empty session: %s", sessionID)
		}
	}

	m.afterCleanup(cleaned, "empty")
	return cleaned
}

// CleanupExpiredSessions - 24시간 지난 세션, 30분 이상 비활성인 빈 세션 정리
func (m *Manager) CleanupExpiredSessions() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	cleaned := 0
	for sessionID, s := range m.sessions {
		s.mutex.RLock()
		running := s.runningLocked()
		isExpired := now.Sub(s.createdAt) > expiredThreshold
		isInactive := now.Sub(s.lastActivity) > inactiveThreshold && len(s.clients) == 0
		s.mutex.RUnlock()

		if running || !(isExpired || isInactive) {
			continue
		}

		s.disconnectAll()
		delete(m.sessions, sessionID)
		cleaned++

		reason := "expired"
		if isInactive {
			reason = "inactive"
		}
		log.Printf("⏰ Cleaned up %s session: %s (Age: %v)", reason, sessionID, now.Sub(s.createdAt))
	}

	m.afterCleanup(cleaned, "expired/inactive")
	return cleaned
}

func (m *Manager) afterCleanup(cleaned int, kind string) {
	if cleaned == 0 {
		return
	}
	m.metricsMutex.Lock()
	m.metrics.ActiveSessions -= cleaned
	active := m.metrics.ActiveSessions
	m.metricsMutex.Unlock()
	log.Printf("🗑️  Cleaned up %d %s sessions (Active: %d)", cleaned, kind, active)
}

// StartCleanupRoutine - 정기적 정리 작업 시작 (ctx 종료 시 중단)
func (m *Manager) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupEmptySessions()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupExpiredSessions()
			}
		}
	}()

	log.Printf("🔄 Started session cleanup routines (Empty: 5min, Expired: 30min)")
}

// Board - 세션 보드
func (s *Session) Board() *generation.Board {
	return s.board
}

func (s *Session) touch() {
	s.mutex.Lock()
	s.lastActivity = time.Now()
	s.mutex.Unlock()
}

// runningLocked - 취소 함수 등록 전이라도 보드가 점유되어 있으면 실행 중 (s.mutex 보유 상태)
func (s *Session) runningLocked() bool {
	return s.cancel != nil || s.board.Generating()
}

// startGeneration - 실행 중 생성의 취소 함수 등록
func (s *Session) startGeneration(generationID string, cancel context.CancelFunc) {
	s.mutex.Lock()
	s.generationID = generationID
	s.cancel = cancel
	s.lastActivity = time.Now()
	s.mutex.Unlock()
}

// finishGeneration - 같은 생성일 때만 취소 함수 해제
func (s *Session) finishGeneration(generationID string) {
	s.mutex.Lock()
	if s.generationID == generationID {
		s.cancel = nil
	}
	s.lastActivity = time.Now()
	s.mutex.Unlock()
}

// Cancel - 실행 중인 생성 취소. 실행 중이 아니면 false
func (s *Session) Cancel() (string, bool) {
	s.mutex.Lock()
	cancel, generationID := s.cancel, s.generationID
	s.mutex.Unlock()

	if cancel == nil {
		return "", false
	}
	cancel()
	log.Printf("🛑 Cancel requested for generation %s (session %s)", generationID, s.id)
	return generationID, true
}

func (s *Session) addClient(client *Client) {
	s.mutex.Lock()
	if old, exists := s.clients[client.userID]; exists {
		close(old.send)
	}
	s.clients[client.userID] = client
	s.lastActivity = time.Now()
	clientCount := len(s.clients)
	s.mutex.Unlock()

	log.Printf("👤 Client %s joined session %s (Clients: %d)", client.userID, s.id, clientCount)

	s.broadcastToAll(Message{Type: MessageUserJoined, SessionID: s.id, UserID: client.userID})
}

// removeClient - 같은 연결일 때만 제거 (재접속한 새 연결은 유지)
func (s *Session) removeClient(client *Client) {
	s.mutex.Lock()
	current, exists := s.clients[client.userID]
	if !exists || current != client {
		s.mutex.Unlock()
		return
	}
	close(client.send)
	delete(s.clients, client.userID)
	s.lastActivity = time.Now()
	remaining := len(s.clients)
	s.mutex.Unlock()

	log.Printf("👋 Client %s left session %s (Remaining: %d)", client.userID, s.id, remaining)
	s.broadcastToAll(Message{Type: MessageUserLeft, SessionID: s.id, UserID: client.userID})
}

func (s *Session) disconnectAll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for userID, client := range s.clients {
		close(client.send)
		delete(s.clients, userID)
		log.Printf("🔌 Disconnecting client %s from session %s", userID, s.id)
	}
}

// broadcastToAll - 모든 클라이언트에게 전송. 버퍼가 찬 클라이언트는 끊음
func (s *Session) broadcastToAll(message Message) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Error marshaling message: %v", err)
		return
	}

	var slow []*Client
	s.mutex.RLock()
	for _, client := range s.clients {
		select {
		case client.send <- messageBytes:
		default:
			slow = append(slow, client)
		}
	}
	s.mutex.RUnlock()

	for _, client := range slow {
		log.Printf("⚠️  Dropping slow client %s from session %s", client.userID, s.id)
		s.removeClient(client)
	}
}

// sendTo - 특정 클라이언트에게만 전송
func (s *Session) sendTo(client *Client, message Message) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Error marshaling message: %v", err)
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if current, ok := s.clients[client.userID]; ok && current == client {
		select {
		case client.send <- messageBytes:
		default:
		}
	}
}
