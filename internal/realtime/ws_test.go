package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSocketServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	e := echo.New()
	e.GET("/ws/social/:room", Handler(hub))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandler_StreamsRoomEvents(t *testing.T) {
	hub := NewHub()
	srv := newSocketServer(t, hub)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/social/agent_2", nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	assert.Equal(t, 1, hub.Subscribers("agent_2"))

	require.NoError(t, hub.Publish(ctx, Event{Type: PostCreated, AgentID: 9, PostID: 1}))
	require.NoError(t, hub.Publish(ctx, NewEvent(FollowCreated, 1, 2, 0, nil)))

	var got Event
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, FollowCreated, got.Type)
	assert.Equal(t, int64(1), got.AgentID)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool { return hub.Subscribers("agent_2") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_RejectsBadRoom(t *testing.T) {
	hub := NewHub()
	srv := newSocketServer(t, hub)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ws/social/bad-room", nil)
	require.NoError(t, err)
	req.Close = true
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, hub.Subscribers("bad-room"))
}
