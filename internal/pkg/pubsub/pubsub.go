package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/guild_server/internal/pkg/logging"
)

const (
	ChannelCommentEvents = "comment_events"
)

// 事件类型
const (
	EventCommentCreated  = "comment.created"
	EventCommentUpdated  = "comment.updated"
	EventCommentDeleted  = "comment.deleted"
	EventReactionChanged = "comment.reaction"
)

// CommentEvent 评论变更事件
type CommentEvent struct {
	Type            string    `json:"type"`
	CommentID       int64     `json:"comment_id,string"`
	ContentID       string    `json:"content_id"`
	ContentType     string    `json:"content_type"`
	ActorID         int64     `json:"actor_id"`
	ParentCommentID int64     `json:"parent_comment_id,omitempty,string"`
	ParentOwnerID   int64     `json:"parent_owner_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// IsReplyTo 是否为对他人评论的回复
func (e *CommentEvent) IsReplyTo() (ownerID int64, ok bool) {
	if e.Type != EventCommentCreated || e.ParentOwnerID == 0 || e.ParentOwnerID == e.ActorID {
		return 0, false
	}
	return e.ParentOwnerID, true
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishCommentEvent 发布评论事件
func (p *Publisher) PublishCommentEvent(ctx context.Context, evt *CommentEvent) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal comment event: %w", err)
	}

	return p.client.Publish(ctx, ChannelCommentEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅评论事件，阻塞直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*CommentEvent)) error {
	ps := s.client.Subscribe(ctx, ChannelCommentEvents)
	defer ps.Close()

	// 等待订阅确认，保证返回前已生效
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := ps.Channel()
	log := logging.WithComponent("pubsub")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var evt CommentEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Warn().Err(err).Msg("dropping malformed comment event")
				continue
			}

			handler(&evt)
		}
	}
}
