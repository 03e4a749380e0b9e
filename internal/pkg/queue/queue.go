package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 任务类型
const (
	JobOTPEmail          = "otp_email"
	JobReplyNotification = "reply_notification"
)

type Queue struct {
	client    *redis.Client
	queueName string
}

// Job 通知任务
type Job struct {
	Type string `json:"type"`

	// otp_email
	Email string `json:"email,omitempty"`
	Code  string `json:"code,omitempty"`

	// reply_notification
	RecipientID     int64  `json:"recipient_id,omitempty"`
	ActorID         int64  `json:"actor_id,omitempty"`
	CommentID       int64  `json:"comment_id,omitempty"`
	ParentCommentID int64  `json:"parent_comment_id,omitempty"`
	ContentID       string `json:"content_id,omitempty"`
	ContentType     string `json:"content_type,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push 将任务加入队列
func (q *Queue) Push(ctx context.Context, job *Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从队列获取任务（阻塞），超时返回 nil
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}
