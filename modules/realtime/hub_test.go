package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func newTestHub() (*Hub, *httptest.Server) {
	hub := NewHub([]string{"*"})
	hub.SetSnapshotSource(func(sessionID string) (any, bool) {
		if sessionID != "s1" {
			return nil, false
		}
		return map[string]string{"step": "UPLOAD"}, true
	})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	return hub, srv
}

func TestHubSendsSnapshotThenPublishes(t *testing.T) {
	hub, srv := newTestHub()
	defer srv.Close()

	conn := dial(t, srv, "s1")

	first := readMessage(t, conn)
	assert.Equal(t, "state", first.Type)
	assert.Equal(t, "s1", first.SessionID)
	assert.Equal(t, map[string]any{"step": "UPLOAD"}, first.Payload)

	hub.Publish("s1", "notice", map[string]string{"message": "Falha ao gerar o look. Tente imagens mais claras."})
	hub.Publish("other", "state", map[string]string{"step": "RESULT"})

	second := readMessage(t, conn)
	assert.Equal(t, "notice", second.Type)
	assert.Equal(t, map[string]any{"message": "Falha ao gerar o look. Tente imagens mais claras."}, second.Payload)

	current, total := hub.Stats()
	assert.Equal(t, 1, current)
	assert.Equal(t, 1, total)
}

func TestHubRejectsUnknownSession(t *testing.T) {
	_, srv := newTestHub()
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubDisconnect(t *testing.T) {
	hub, srv := newTestHub()
	defer srv.Close()

	conn := dial(t, srv, "s1")
	readMessage(t, conn)
	current, _ := hub.Stats()
	require.Equal(t, 1, current)

	hub.Disconnect("s1")
	current, total := hub.Stats()
	assert.Equal(t, 0, current)
	assert.Equal(t, 1, total)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubSnapshotOnlyToJoiningClient(t *testing.T) {
	hub, srv := newTestHub()
	defer srv.Close()

	first := dial(t, srv, "s1")
	assert.Equal(t, "state", readMessage(t, first).Type)

	second := dial(t, srv, "s1")
	assert.Equal(t, "state", readMessage(t, second).Type)

	// 기존 클라이언트는 새 접속자의 스냅샷을 받지 않음
	require.NoError(t, first.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := first.ReadMessage()
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())

	current, total := hub.Stats()
	assert.Equal(t, 2, current)
	assert.Equal(t, 2, total)
}

func TestHubDeliverRaw(t *testing.T) {
	hub, srv := newTestHub()
	defer srv.Close()

	conn := dial(t, srv, "s1")
	readMessage(t, conn)

	hub.deliverRaw([]byte(`not json`))
	hub.deliverRaw([]byte(`{"type":"notice","payload":{}}`))
	hub.deliverRaw([]byte(`{"type":"notice","sessionId":"s1","payload":{"message":"oi"}}`))

	msg := readMessage(t, conn)
	assert.Equal(t, "notice", msg.Type)
	assert.Equal(t, map[string]any{"message": "oi"}, msg.Payload)

	hub.deliverRaw([]byte(`{"type":"closed","sessionId":"s1"}`))
	current, _ := hub.Stats()
	assert.Equal(t, 0, current)
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, originAllowed([]string{"https://studio.example.com"}, ""))
	assert.True(t, originAllowed([]string{"https://studio.example.com"}, "https://studio.example.com"))
	assert.False(t, originAllowed([]string{"https://studio.example.com"}, "https://evil.example.com"))
	assert.True(t, originAllowed([]string{"*"}, "https://any.example.com"))
}
