package ws

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/qs3c/guild_server/internal/pkg/logging"
	"github.com/qs3c/guild_server/internal/pkg/pubsub"
)

// 推送消息类型
const (
	MessageReply = "comment_reply"
)

type Hub struct {
	// 每个用户可以有多个连接（多标签页、重连等场景）
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
	log     zerolog.Logger
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ReplyPayload 回复通知内容
type ReplyPayload struct {
	CommentID       string `json:"comment_id"`
	ParentCommentID string `json:"parent_comment_id"`
	ContentID       string `json:"content_id"`
	ContentType     string `json:"content_type"`
	ActorID         int64  `json:"actor_id"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		log:     logging.WithComponent("ws"),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}

	h.log.Debug().
		Int64("user_id", client.UserID).
		Int("user_conns", len(h.clients[client.UserID])).
		Msg("client connected")
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	h.log.Debug().Int64("user_id", client.UserID).Msg("client disconnected")
}

// SendToUser 向指定用户的所有连接发送消息，用户离线时直接返回
func (h *Hub) SendToUser(userID int64, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.log.Warn().Err(err).Int64("user_id", userID).Msg("write failed")
		}
	}
	return nil
}

// HandleCommentEvent 将回复事件推送给父评论作者
func (h *Hub) HandleCommentEvent(evt *pubsub.CommentEvent) {
	ownerID, ok := evt.IsReplyTo()
	if !ok {
		return
	}

	msg := &Message{
		Type: MessageReply,
		Data: ReplyPayload{
			CommentID:       strconv.FormatInt(evt.CommentID, 10),
			ParentCommentID: strconv.FormatInt(evt.ParentCommentID, 10),
			ContentID:       evt.ContentID,
			ContentType:     evt.ContentType,
			ActorID:         evt.ActorID,
		},
	}
	if err := h.SendToUser(ownerID, msg); err != nil {
		h.log.Warn().Err(err).Int64("user_id", ownerID).Msg("reply push failed")
	}
}

// IsOnline 检查用户是否在线
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[userID]
	return ok && len(conns) > 0
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
