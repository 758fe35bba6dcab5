package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"md-fashion-studio/modules/common/redis"
)

func startRelay(t *testing.T, addr string, hub *Hub) *Relay {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })

	relay := NewRelay(hub, rdb, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-relay.Ready():
	case err := <-done:
		t.Fatalf("relay stopped before subscribing: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe in time")
	}
	return relay
}

// relayHub - 스냅샷을 Redis 캐시에서만 읽는 인스턴스 (세션을 소유하지 않음)
func relayHub(t *testing.T, addr string) (*Hub, *Relay, *httptest.Server) {
	t.Helper()
	hub := NewHub([]string{"*"})
	relay := startRelay(t, addr, hub)
	hub.SetSnapshotSource(func(sessionID string) (any, bool) {
		return relay.Snapshot(context.Background(), sessionID)
	})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	return hub, relay, srv
}

func TestRelayAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)

	_, relayA, _ := relayHub(t, mr.Addr())
	hubB, _, srvB := relayHub(t, mr.Addr())

	require.NoError(t, mr.Set(redis.SnapshotKey("s1"), `{"step":"UPLOAD"}`))

	conn := dial(t, srvB, "s1")
	first := readMessage(t, conn)
	assert.Equal(t, "state", first.Type)
	assert.Equal(t, map[string]any{"step": "UPLOAD"}, first.Payload)

	relayA.Publish("s1", "notice", map[string]string{"message": "Falha ao alterar o fundo. Tente descrever de outra forma."})
	relayA.Publish("s1", "state", map[string]string{"step": "BACKGROUND"})

	notice := readMessage(t, conn)
	assert.Equal(t, "notice", notice.Type)
	assert.Equal(t, "s1", notice.SessionID)

	state := readMessage(t, conn)
	assert.Equal(t, "state", state.Type)
	assert.Equal(t, map[string]any{"step": "BACKGROUND"}, state.Payload)

	cached, err := mr.Get(redis.SnapshotKey("s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":"BACKGROUND"}`, cached)
	assert.Equal(t, time.Minute, mr.TTL(redis.SnapshotKey("s1")))

	relayA.Disconnect("s1")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.False(t, mr.Exists(redis.SnapshotKey("s1")))

	current, total := hubB.Stats()
	assert.Equal(t, 0, current)
	assert.Equal(t, 1, total)
}

func TestRelayUnknownSession(t *testing.T) {
	mr := miniredis.RunT(t)
	_, relay, srv := relayHub(t, mr.Addr())

	_, ok := relay.Snapshot(context.Background(), "missing")
	assert.False(t, ok)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRelayFallsBackToLocalDelivery(t *testing.T) {
	hub, srv := newTestHub()
	defer srv.Close()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	relay := NewRelay(hub, rdb, time.Minute)

	conn := dial(t, srv, "s1")
	readMessage(t, conn)

	relay.Publish("s1", "notice", map[string]string{"message": "oi"})
	msg := readMessage(t, conn)
	assert.Equal(t, "notice", msg.Type)

	relay.Disconnect("s1")
	current, _ := hub.Stats()
	assert.Equal(t, 0, current)
}
