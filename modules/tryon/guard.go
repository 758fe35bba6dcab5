package tryon

import (
	"context"
	"sync"
)

// Guard - 세션당 동시에 하나의 생성 요청만 허용
// 이미 잡혀 있으면 ErrBusy
type Guard interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// MemoryGuard - 프로세스 내 잠금
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]struct{})}
}

func (g *MemoryGuard) Acquire(ctx context.Context, sessionID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[sessionID]; busy {
		return nil, ErrBusy
	}
	g.held[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, sessionID)
			g.mu.Unlock()
		})
	}, nil
}
