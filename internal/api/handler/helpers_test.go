package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/api/middleware"
	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/access"
	"github.com/qs3c/guild_server/internal/pkg/cache"
	"github.com/qs3c/guild_server/internal/pkg/jwt"
	"github.com/qs3c/guild_server/internal/pkg/pubsub"
	"github.com/qs3c/guild_server/internal/pkg/queue"
	"github.com/qs3c/guild_server/internal/pkg/response"
	"github.com/qs3c/guild_server/internal/repository"
	"github.com/qs3c/guild_server/internal/service"
	"github.com/qs3c/guild_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

const testJWTSecret = "test-secret-key"

// testEnv wires real services over sqlite and miniredis
type testEnv struct {
	db       *gorm.DB
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	cfg      *config.Config
	perms    *service.PermissionService
	comments *service.CommentService
	users    *service.UserService
	auth     *service.AuthService
	jobs     *queue.Queue
}

func newTestEnv(t *testing.T, uploader service.AvatarUploader) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	mr, rdb := testutil.SetupTestRedis(t)

	cfg := config.Default()
	cfg.JWT.Secret = testJWTSecret

	commentRepo := repository.NewCommentRepository(db)
	userRepo := repository.NewUserRepository(db)
	perms := service.NewPermissionService(commentRepo, access.DefaultPolicy(), cfg.Comment)
	jobs := queue.NewQueue(rdb, cfg.Queue.NotificationQueue)
	commentCache := service.NewCommentCache(cache.NewRedisStore(rdb), cfg.Cache)

	return &testEnv{
		db:       db,
		mr:       mr,
		rdb:      rdb,
		cfg:      cfg,
		perms:    perms,
		comments: service.NewCommentService(commentRepo, repository.NewReactionRepository(db), perms, commentCache, pubsub.NewPublisher(rdb), jobs, cfg),
		users:    service.NewUserService(userRepo, uploader, cfg),
		auth:     service.NewAuthService(userRepo, rdb, jobs, cfg),
		jobs:     jobs,
	}
}

func (e *testEnv) user(t *testing.T, roles ...model.Role) *model.User {
	t.Helper()
	return testutil.TestUser(t, e.db, testutil.WithRoles(roles...))
}

func tokenFor(t *testing.T, u *model.User) string {
	t.Helper()
	token, err := jwt.GenerateToken(u.ID, u.Roles.Strings(), u.EmailVerified, testJWTSecret, 24)
	require.NoError(t, err)
	return token
}

// commentRouter mounts the comment routes with the same chains as the API router
func (e *testEnv) commentRouter() *gin.Engine {
	h := NewCommentHandler(e.comments)
	policy := e.perms.Policy()

	router := gin.New()
	comments := router.Group("/comments", middleware.Auth(testJWTSecret), middleware.RequireAuth())
	byContent := []gin.HandlerFunc{
		middleware.RequireContentType(policy, middleware.FromQuery),
		middleware.RequireContentRole(policy),
	}
	comments.GET("", append(byContent, h.List)...)
	comments.GET("/threaded", append(byContent, h.Threaded)...)
	comments.GET("/stats", append(byContent, h.Stats)...)
	comments.GET("/mine", h.Mine)
	comments.POST("",
		middleware.RequireContentType(policy, middleware.FromBody),
		middleware.RequireContentRole(policy),
		middleware.ValidateParent(e.perms),
		middleware.CommentRateLimit(e.perms),
		h.Create,
	)
	comments.GET("/:id", h.Get)
	comments.GET("/:id/replies", middleware.RequireCommentAccess(e.perms, true), h.Replies)
	comments.PUT("/:id", middleware.RequireOwnership(e.perms), h.Update)
	comments.DELETE("/:id", middleware.RequireOwnership(e.perms), h.Delete)
	comments.POST("/:id/reactions", middleware.RequireCommentAccess(e.perms, false), h.AddReaction)
	comments.DELETE("/:id/reactions", middleware.RequireCommentAccess(e.perms, false), h.RemoveReaction)
	return router
}

func performRequest(r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// decodeData re-decodes the envelope's data field into dest
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var envelope struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, response.CodeSuccess, envelope.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func popJob(t *testing.T, q *queue.Queue) *queue.Job {
	t.Helper()
	job, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	return job
}
