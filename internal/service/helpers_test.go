package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"gorm.io/gorm"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/pkg/access"
	"github.com/qs3c/guild_server/internal/pkg/cache"
	"github.com/qs3c/guild_server/internal/pkg/pubsub"
	"github.com/qs3c/guild_server/internal/pkg/queue"
	"github.com/qs3c/guild_server/internal/repository"
	"github.com/qs3c/guild_server/internal/testutil"
)

var ctx = context.Background()

type recordingPublisher struct {
	mu     sync.Mutex
	events []*pubsub.CommentEvent
}

func (p *recordingPublisher) PublishCommentEvent(_ context.Context, evt *pubsub.CommentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) ofType(typ string) []*pubsub.CommentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*pubsub.CommentEvent
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (q *recordingQueue) Push(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) all() []*queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.Job(nil), q.jobs...)
}

// brokenStore fails every operation
type brokenStore struct{}

var errStoreDown = errors.New("store down")

func (brokenStore) Get(context.Context, string) (string, bool, error) { return "", false, errStoreDown }
func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return errStoreDown
}
func (brokenStore) Keys(context.Context, string) ([]string, error)   { return nil, errStoreDown }
func (brokenStore) Delete(context.Context, ...string) (int64, error) { return 0, errStoreDown }
func (brokenStore) Ping(context.Context) error                       { return errStoreDown }
func (brokenStore) Close() error                                     { return nil }

type commentFixture struct {
	db    *gorm.DB
	mr    *miniredis.Miniredis
	store cache.Store
	cfg   *config.Config
	perms *PermissionService
	svc   *CommentService
	pub   *recordingPublisher
	jobs  *recordingQueue
}

func newCommentFixture(t *testing.T, store cache.Store, mr *miniredis.Miniredis) *commentFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := config.Default()
	cfg.JWT.Secret = "test-secret"

	commentRepo := repository.NewCommentRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	perms := NewPermissionService(commentRepo, access.DefaultPolicy(), cfg.Comment)
	pub := &recordingPublisher{}
	jobs := &recordingQueue{}

	svc := NewCommentService(commentRepo, reactionRepo, perms, NewCommentCache(store, cfg.Cache), pub, jobs, cfg)

	return &commentFixture{
		db:    db,
		mr:    mr,
		store: store,
		cfg:   cfg,
		perms: perms,
		svc:   svc,
		pub:   pub,
		jobs:  jobs,
	}
}

// setupCommentService wires the service against sqlite and a miniredis-backed cache
func setupCommentService(t *testing.T) *commentFixture {
	t.Helper()

	mr, client := testutil.SetupTestRedis(t)
	return newCommentFixture(t, cache.NewRedisStore(client), mr)
}

func (f *commentFixture) keys(t *testing.T, pattern string) []string {
	t.Helper()
	keys, err := f.store.Keys(ctx, pattern)
	if err != nil {
		t.Fatalf("list cache keys: %v", err)
	}
	return keys
}
