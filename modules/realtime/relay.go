package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"md-fashion-studio/modules/common/redis"
)

const relayTimeout = 5 * time.Second

// Relay - Redis pub/sub으로 세션 이벤트를 모든 인스턴스의 Hub에 중계
// 최신 state는 스냅샷 키에 캐시해 다른 인스턴스에서 접속해도 바로 받을 수 있음
type Relay struct {
	hub         *Hub
	rdb         *goredis.Client
	snapshotTTL time.Duration

	ready     chan struct{}
	readyOnce sync.Once
}

func NewRelay(hub *Hub, rdb *goredis.Client, snapshotTTL time.Duration) *Relay {
	return &Relay{
		hub:         hub,
		rdb:         rdb,
		snapshotTTL: snapshotTTL,
		ready:       make(chan struct{}),
	}
}

// Ready - 구독이 확정되면 닫히는 채널
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Publish - 이벤트를 채널에 발행. Redis 실패 시 이 인스턴스의 클라이언트에게만 전달
func (r *Relay) Publish(sessionID, msgType string, payload any) {
	messageBytes, err := json.Marshal(Message{Type: msgType, SessionID: sessionID, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()

	if msgType == MessageTypeState {
		if err := r.cacheSnapshot(ctx, sessionID, payload); err != nil {
			log.Printf("⚠️ [Relay] Failed to cache snapshot for session %s: %v", sessionID, err)
		}
	}

	if err := r.rdb.Publish(ctx, redis.EventsChannel, messageBytes).Err(); err != nil {
		log.Printf("⚠️ [Relay] Publish failed, delivering locally (session %s): %v", sessionID, err)
		r.hub.deliver(sessionID, messageBytes)
	}
}

// Disconnect - 모든 인스턴스에 세션 종료를 알리고 캐시 삭제
func (r *Relay) Disconnect(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()

	if err := r.rdb.Del(ctx, redis.SnapshotKey(sessionID)).Err(); err != nil {
		log.Printf("⚠️ [Relay] Failed to drop snapshot for session %s: %v", sessionID, err)
	}

	messageBytes, err := json.Marshal(Message{Type: MessageTypeClosed, SessionID: sessionID})
	if err == nil {
		err = r.rdb.Publish(ctx, redis.EventsChannel, messageBytes).Err()
	}
	if err != nil {
		log.Printf("⚠️ [Relay] Close broadcast failed, disconnecting locally (session %s): %v", sessionID, err)
		r.hub.Disconnect(sessionID)
	}
}

// Snapshot - 캐시된 최신 state (없으면 false)
func (r *Relay) Snapshot(ctx context.Context, sessionID string) (json.RawMessage, bool) {
	data, err := r.rdb.Get(ctx, redis.SnapshotKey(sessionID)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			log.Printf("⚠️ [Relay] Failed to read snapshot for session %s: %v", sessionID, err)
		}
		return nil, false
	}
	return json.RawMessage(data), true
}

// Run - ctx가 끝날 때까지 채널을 구독해 로컬 Hub로 전달
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, redis.EventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", redis.EventsChannel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	log.Printf("📡 [Relay] Subscribed to %s", redis.EventsChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Printf("🛑 [Relay] Stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.hub.deliverRaw([]byte(msg.Payload))
		}
	}
}

func (r *Relay) cacheSnapshot(ctx context.Context, sessionID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, redis.SnapshotKey(sessionID), data, r.snapshotTTL).Err()
}
