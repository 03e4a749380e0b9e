package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/pkg/email"
	"github.com/qs3c/guild_server/internal/pkg/logging"
	"github.com/qs3c/guild_server/internal/pkg/queue"
	"github.com/qs3c/guild_server/internal/repository"
)

var ErrUnknownJob = errors.New("unknown job type")

// 取任务失败后的等待时间，避免 Redis 故障时空转
const defaultPopBackoff = time.Second

// Mailer 邮件发送
type Mailer interface {
	SendLoginCode(to, code string, ttlMinutes int) error
	SendReplyNotification(to string, n email.ReplyNotice) error
}

// JobSource 任务来源，Pop 超时返回 nil, nil
type JobSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.Job, error)
}

// Processor 通知任务处理器
type Processor struct {
	userRepo    *repository.UserRepository
	commentRepo *repository.CommentRepository
	mailer      Mailer
	cfg         *config.Config
	log         zerolog.Logger
	popBackoff  time.Duration
}

// NewProcessor 创建任务处理器
func NewProcessor(
	userRepo *repository.UserRepository,
	commentRepo *repository.CommentRepository,
	mailer Mailer,
	cfg *config.Config,
) *Processor {
	return &Processor{
		userRepo:    userRepo,
		commentRepo: commentRepo,
		mailer:      mailer,
		cfg:         cfg,
		log:         logging.WithComponent("worker"),
		popBackoff:  defaultPopBackoff,
	}
}

// Process 处理单个任务
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobOTPEmail:
		return p.sendLoginCode(job)
	case queue.JobReplyNotification:
		return p.sendReplyNotification(ctx, job)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, job.Type)
	}
}

func (p *Processor) sendLoginCode(job *queue.Job) error {
	if job.Email == "" || job.Code == "" {
		return fmt.Errorf("otp job missing email or code")
	}
	if err := p.mailer.SendLoginCode(job.Email, job.Code, p.cfg.Auth.CodeTTLMinutes); err != nil {
		return fmt.Errorf("send login code: %w", err)
	}
	return nil
}

// sendReplyNotification 收件人没有邮箱或回复已被删除时跳过
func (p *Processor) sendReplyNotification(ctx context.Context, job *queue.Job) error {
	recipient, err := p.userRepo.GetByID(ctx, job.RecipientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.log.Warn().Int64("recipient_id", job.RecipientID).Msg("reply notification recipient not found")
			return nil
		}
		return fmt.Errorf("load recipient: %w", err)
	}
	if recipient.Email == nil || *recipient.Email == "" {
		p.log.Debug().Int64("recipient_id", recipient.ID).Msg("recipient has no email, skipping")
		return nil
	}

	reply, err := p.commentRepo.GetByID(ctx, job.CommentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("load reply: %w", err)
	}
	if reply.IsDeleted {
		return nil
	}

	actorName := "有人"
	if actor, err := p.userRepo.GetByID(ctx, job.ActorID); err == nil {
		actorName = actor.Username
	}

	notice := email.ReplyNotice{
		RecipientName: recipient.Username,
		ActorName:     actorName,
		ContentType:   job.ContentType,
		ContentID:     job.ContentID,
		ReplyBody:     reply.Body,
	}
	if err := p.mailer.SendReplyNotification(*recipient.Email, notice); err != nil {
		return fmt.Errorf("send reply notification: %w", err)
	}
	return nil
}

// Run 循环取任务直到 ctx 取消。失败的任务只记录日志，不重试
func (p *Processor) Run(ctx context.Context, source JobSource, workerID int) {
	log := p.log.With().Int("worker_id", workerID).Logger()
	for {
		if ctx.Err() != nil {
			log.Info().Msg("worker shutting down")
			return
		}

		job, err := source.Pop(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to pop job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.popBackoff):
			}
			continue
		}
		if job == nil {
			continue // 超时，继续等待
		}

		if err := p.Process(ctx, job); err != nil {
			log.Error().Err(err).Str("type", job.Type).Msg("job failed")
			continue
		}
		log.Debug().Str("type", job.Type).Msg("job done")
	}
}
