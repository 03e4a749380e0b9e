package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/email"
	"github.com/qs3c/guild_server/internal/pkg/queue"
	"github.com/qs3c/guild_server/internal/repository"
	"github.com/qs3c/guild_server/internal/testutil"
)

type sentMail struct {
	to     string
	code   string
	ttl    int
	notice email.ReplyNotice
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendLoginCode(to, code string, ttlMinutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, code: code, ttl: ttlMinutes})
	return nil
}

func (m *fakeMailer) SendReplyNotification(to string, n email.ReplyNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, notice: n})
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func setupProcessor(t *testing.T) (*Processor, *fakeMailer, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	mailer := &fakeMailer{}
	p := NewProcessor(repository.NewUserRepository(db), repository.NewCommentRepository(db), mailer, config.Default())
	return p, mailer, db
}

func TestProcessor_OTPEmail(t *testing.T) {
	p, mailer, _ := setupProcessor(t)

	err := p.Process(context.Background(), &queue.Job{Type: queue.JobOTPEmail, Email: "a@example.com", Code: "123456"})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "a@example.com", mailer.sent[0].to)
	assert.Equal(t, "123456", mailer.sent[0].code)
	assert.Equal(t, 10, mailer.sent[0].ttl)

	err = p.Process(context.Background(), &queue.Job{Type: queue.JobOTPEmail, Email: "a@example.com"})
	assert.Error(t, err)
}

func TestProcessor_ReplyNotification(t *testing.T) {
	p, mailer, db := setupProcessor(t)
	owner := testutil.TestUser(t, db, testutil.WithUsername("owner"), testutil.WithEmail("owner@example.com"))
	actor := testutil.TestUser(t, db, testutil.WithUsername("actor"))
	root := testutil.TestComment(t, db, owner.ID, model.ContentEvent, "e1", "root")
	reply := testutil.TestReply(t, db, actor.ID, root, "great event")

	job := &queue.Job{
		Type:            queue.JobReplyNotification,
		RecipientID:     owner.ID,
		ActorID:         actor.ID,
		CommentID:       reply.ID,
		ParentCommentID: root.ID,
		ContentID:       "e1",
		ContentType:     "event",
	}
	require.NoError(t, p.Process(context.Background(), job))

	require.Len(t, mailer.sent, 1)
	sent := mailer.sent[0]
	assert.Equal(t, "owner@example.com", sent.to)
	assert.Equal(t, email.ReplyNotice{
		RecipientName: "owner",
		ActorName:     "actor",
		ContentType:   "event",
		ContentID:     "e1",
		ReplyBody:     "great event",
	}, sent.notice)
}

func TestProcessor_ReplyNotification_Skips(t *testing.T) {
	p, mailer, db := setupProcessor(t)
	owner := testutil.TestUser(t, db, testutil.WithEmail("owner2@example.com"))
	actor := testutil.TestUser(t, db)
	root := testutil.TestComment(t, db, owner.ID, model.ContentPost, "p1", "root")
	deleted := testutil.TestReply(t, db, actor.ID, root, "oops", testutil.WithDeleted())

	tests := []struct {
		name string
		job  *queue.Job
	}{
		{"missing recipient", &queue.Job{Type: queue.JobReplyNotification, RecipientID: 999999, CommentID: deleted.ID}},
		{"deleted reply", &queue.Job{Type: queue.JobReplyNotification, RecipientID: owner.ID, ActorID: actor.ID, CommentID: deleted.ID}},
		{"missing reply", &queue.Job{Type: queue.JobReplyNotification, RecipientID: owner.ID, ActorID: actor.ID, CommentID: 999999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, p.Process(context.Background(), tt.job))
		})
	}
	assert.Equal(t, 0, mailer.count())
}

func TestProcessor_UnknownJob(t *testing.T) {
	p, _, _ := setupProcessor(t)
	err := p.Process(context.Background(), &queue.Job{Type: "legacy_job"})
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestProcessor_MailerError(t *testing.T) {
	p, mailer, _ := setupProcessor(t)
	mailer.err = errors.New("smtp down")

	err := p.Process(context.Background(), &queue.Job{Type: queue.JobOTPEmail, Email: "a@example.com", Code: "123456"})
	assert.ErrorContains(t, err, "smtp down")
}

type failingSource struct {
	mu    sync.Mutex
	calls int
}

func (s *failingSource) Pop(context.Context, time.Duration) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil, errors.New("connection refused")
}

func (s *failingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestProcessor_Run_BacksOffOnPopError(t *testing.T) {
	p, _, _ := setupProcessor(t)
	p.popBackoff = 100 * time.Millisecond
	source := &failingSource{}

	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx, source, 1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	// 每次失败后等待，350ms 内最多约 4 次
	assert.GreaterOrEqual(t, source.count(), 2)
	assert.LessOrEqual(t, source.count(), 5)
}

func TestProcessor_Run(t *testing.T) {
	p, mailer, _ := setupProcessor(t)
	_, rdb := testutil.SetupTestRedis(t)
	q := queue.NewQueue(rdb, "test_jobs")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Push(ctx, &queue.Job{Type: "bogus"}))
	require.NoError(t, q.Push(ctx, &queue.Job{Type: queue.JobOTPEmail, Email: "run@example.com", Code: "654321"}))

	done := make(chan struct{})
	go func() {
		p.Run(ctx, q, 1)
		close(done)
	}()

	require.Eventually(t, func() bool { return mailer.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not stop")
	}
}
