package tryon

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Session - 페이지 방문 1회
type Session struct {
	ID         string
	Controller *Controller

	mu           sync.RWMutex
	createdAt    time.Time
	lastActivity time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// SessionInfo - 메트릭용 세션 요약
type SessionInfo struct {
	SessionID    string    `json:"sessionId"`
	Step         Step      `json:"step"`
	Processing   bool      `json:"processing"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Age          string    `json:"age"`
	Inactive     string    `json:"inactive"`
}

// Metrics - 서버 메트릭
type Metrics struct {
	TotalSessions   int       `json:"totalSessions"`
	ActiveSessions  int       `json:"activeSessions"`
	ExpiredSessions int       `json:"expiredSessions"`
	StartTime       time.Time `json:"startTime"`
}

// Manager - 메모리 내 세션 저장소
type Manager struct {
	gen   Generator
	guard Guard
	pub   Publisher

	idleTimeout time.Duration
	maxAge      time.Duration
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	metrics  Metrics
}

func NewManager(gen Generator, guard Guard, pub Publisher, idleTimeout, maxAge time.Duration) *Manager {
	if guard == nil {
		guard = NewMemoryGuard()
	}
	return &Manager{
		gen:         gen,
		guard:       guard,
		pub:         pub,
		idleTimeout: idleTimeout,
		maxAge:      maxAge,
		now:         time.Now,
		sessions:    make(map[string]*Session),
		metrics:     Metrics{StartTime: time.Now()},
	}
}

// Create - 새 세션 (Upload 단계, 빈 슬롯)
func (m *Manager) Create() *Session {
	now := m.now()
	id := uuid.New().String()
	session := &Session{
		ID:           id,
		Controller:   NewController(id, m.gen, m.guard, m.pub),
		createdAt:    now,
		lastActivity: now,
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.metrics.TotalSessions++
	m.metrics.ActiveSessions++
	total, active := m.metrics.TotalSessions, m.metrics.ActiveSessions
	m.mu.Unlock()

	log.Printf("✅ Created new session: %s (Total: %d, Active: %d)", id, total, active)
	return session
}

// Get - 세션 조회 (활동 시간 갱신)
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.touch(m.now())
	return session, nil
}

// Delete - 세션 종료 (연결된 소켓도 정리)
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		m.metrics.ActiveSessions--
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	if m.pub != nil {
		m.pub.Disconnect(id)
	}
	log.Printf("👋 Session %s closed", id)
	return nil
}

// CleanupExpired - 유휴 시간 초과 또는 최대 수명 초과 세션 제거
func (m *Manager) CleanupExpired() int {
	now := m.now()

	m.mu.Lock()
	var removed []string
	for id, session := range m.sessions {
		session.mu.RLock()
		age := now.Sub(session.createdAt)
		inactive := now.Sub(session.lastActivity)
		session.mu.RUnlock()

		isExpired := age > m.maxAge
		isInactive := inactive > m.idleTimeout
		if !isExpired && !isInactive {
			continue
		}

		delete(m.sessions, id)
		removed = append(removed, id)
		m.metrics.ActiveSessions--
		m.metrics.ExpiredSessions++

		reason := "expired"
		if !isExpired {
			reason = "inactive"
		}
		log.Printf("⏰ Cleaned up %s session: %s (Age: %v, Inactive: %v)", reason, id, age, inactive)
	}
	active := m.metrics.ActiveSessions
	m.mu.Unlock()

	if m.pub != nil {
		for _, id := range removed {
			m.pub.Disconnect(id)
		}
	}

	if len(removed) > 0 {
		log.Printf("🧼 Cleaned up %d expired/inactive sessions (Active: %d)", len(removed), active)
	}
	return len(removed)
}

// StartCleanupRoutine - ctx가 끝날 때까지 주기적으로 정리
func (m *Manager) StartCleanupRoutine(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("🔄 Started session cleanup routine (every %v, idle: %v, max age: %v)", interval, m.idleTimeout, m.maxAge)
	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Session cleanup routine stopped")
			return nil
		case <-ticker.C:
			m.CleanupExpired()
		}
	}
}

// Metrics - 메트릭 복사본
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// Sessions - 세션 요약 목록
func (m *Manager) Sessions() []SessionInfo {
	now := m.now()

	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		state := s.Controller.State()
		s.mu.RLock()
		infos = append(infos, SessionInfo{
			SessionID:    s.ID,
			Step:         state.Step,
			Processing:   state.Processing.IsProcessing,
			CreatedAt:    s.createdAt,
			LastActivity: s.lastActivity,
			Age:          now.Sub(s.createdAt).String(),
			Inactive:     now.Sub(s.lastActivity).String(),
		})
		s.mu.RUnlock()
	}
	return infos
}
