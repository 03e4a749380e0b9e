package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/pubsub"
	"github.com/qs3c/guild_server/internal/pkg/ws"
	"github.com/qs3c/guild_server/internal/testutil"
)

func wsServer(t *testing.T, hub *ws.Hub, origins []string) string {
	t.Helper()

	router := gin.New()
	router.GET("/ws", NewWebSocketHandler(hub, testJWTSecret, origins).Handle)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func TestWebSocketHandler_PushesReplies(t *testing.T) {
	db := testutil.SetupTestDB(t)
	owner := testutil.TestUser(t, db, testutil.WithRoles(model.RoleUser))
	hub := ws.NewHub()
	url := wsServer(t, hub, []string{"*"})

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+tokenFor(t, owner), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.IsOnline(owner.ID) }, time.Second, 10*time.Millisecond)

	hub.HandleCommentEvent(&pubsub.CommentEvent{
		Type:            pubsub.EventCommentCreated,
		CommentID:       42,
		ParentCommentID: 7,
		ParentOwnerID:   owner.ID,
		ContentID:       "p1",
		ContentType:     "post",
		ActorID:         owner.ID + 1,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string          `json:"type"`
		Data ws.ReplyPayload `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.MessageReply, msg.Type)
	assert.Equal(t, "42", msg.Data.CommentID)
	assert.Equal(t, "7", msg.Data.ParentCommentID)

	conn.Close()
	require.Eventually(t, func() bool { return !hub.IsOnline(owner.ID) }, time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_RejectsBadToken(t *testing.T) {
	hub := ws.NewHub()
	url := wsServer(t, hub, []string{"*"})

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestWebSocketHandler_Origin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	user := testutil.TestUser(t, db)
	hub := ws.NewHub()
	url := wsServer(t, hub, []string{"https://app.example.com"})
	token := tokenFor(t, user)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(url+"?token="+token, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, header)
	require.NoError(t, err)
	conn.Close()
}
