package service

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/jwt"
	"github.com/qs3c/guild_server/internal/pkg/queue"
	"github.com/qs3c/guild_server/internal/repository"
	"github.com/qs3c/guild_server/internal/testutil"
)

type authFixture struct {
	svc  *AuthService
	db   *gorm.DB
	mr   *miniredis.Miniredis
	jobs *recordingQueue
	cfg  *config.Config
}

func setupAuthService(t *testing.T) *authFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	mr, client := testutil.SetupTestRedis(t)
	cfg := config.Default()
	cfg.JWT.Secret = "test-secret"
	jobs := &recordingQueue{}

	return &authFixture{
		svc:  NewAuthService(repository.NewUserRepository(db), client, jobs, cfg),
		db:   db,
		mr:   mr,
		jobs: jobs,
		cfg:  cfg,
	}
}

// issuedCode returns the code carried by the last otp job
func (f *authFixture) issuedCode(t *testing.T) string {
	t.Helper()
	jobs := f.jobs.all()
	require.NotEmpty(t, jobs)
	last := jobs[len(jobs)-1]
	require.Equal(t, queue.JobOTPEmail, last.Type)
	return last.Code
}

func TestAuthService_SendCode(t *testing.T) {
	f := setupAuthService(t)

	require.NoError(t, f.svc.SendCode(ctx, "  Alice@Example.com "))

	code := f.issuedCode(t)
	assert.Len(t, code, 6)
	assert.Equal(t, "alice@example.com", f.jobs.all()[0].Email)

	key := "auth:code:alice@example.com"
	assert.True(t, f.mr.Exists(key))
	assert.NotEqual(t, code, f.mr.HGet(key, "hash"), "code is stored hashed")
	assert.Equal(t, 10*time.Minute, f.mr.TTL(key))

	// cooldown
	err := f.svc.SendCode(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ErrCodeCooldown)

	f.mr.FastForward(61 * time.Second)
	assert.NoError(t, f.svc.SendCode(ctx, "alice@example.com"))
}

func TestAuthService_Verify_RegistersNewUser(t *testing.T) {
	f := setupAuthService(t)
	require.NoError(t, f.svc.SendCode(ctx, "new.user@example.com"))

	resp, err := f.svc.Verify(ctx, "new.user@example.com", f.issuedCode(t))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "new_user", resp.User.Username)
	assert.Equal(t, []string{"user"}, resp.User.Roles)
	assert.True(t, resp.User.EmailVerified)

	claims, err := jwt.ParseToken(resp.Token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, []string{"user"}, claims.Roles)
	assert.True(t, claims.Verified)

	// the code is single use
	assert.False(t, f.mr.Exists("auth:code:new.user@example.com"))
}

func TestAuthService_Verify_ExistingUserKeepsRoles(t *testing.T) {
	f := setupAuthService(t)
	user := testutil.TestUser(t, f.db, testutil.WithEmail("guide@example.com"), testutil.WithRoles(model.RoleGuide))

	require.NoError(t, f.svc.SendCode(ctx, "guide@example.com"))
	resp, err := f.svc.Verify(ctx, "GUIDE@example.com", f.issuedCode(t))
	require.NoError(t, err)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.Equal(t, []string{"guide"}, resp.User.Roles)

	var stored model.User
	require.NoError(t, f.db.First(&stored, user.ID).Error)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestAuthService_Verify_UsernameCollision(t *testing.T) {
	f := setupAuthService(t)
	testutil.TestUser(t, f.db, testutil.WithUsername("bob"))

	require.NoError(t, f.svc.SendCode(ctx, "bob@example.com"))
	resp, err := f.svc.Verify(ctx, "bob@example.com", f.issuedCode(t))
	require.NoError(t, err)
	assert.NotEqual(t, "bob", resp.User.Username)
	assert.Regexp(t, `^bob_\d{4}$`, resp.User.Username)
}

func TestAuthService_Verify_WrongCode(t *testing.T) {
	f := setupAuthService(t)
	require.NoError(t, f.svc.SendCode(ctx, "a@example.com"))
	code := f.issuedCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < f.cfg.Auth.CodeMaxAttempts-1; i++ {
		_, err := f.svc.Verify(ctx, "a@example.com", wrong)
		assert.ErrorIs(t, err, ErrInvalidCode)
		assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
	}

	// the right code still works before attempts run out
	_, err := f.svc.Verify(ctx, "a@example.com", code)
	assert.NoError(t, err)
}

func TestAuthService_Verify_AttemptsExhausted(t *testing.T) {
	f := setupAuthService(t)
	require.NoError(t, f.svc.SendCode(ctx, "a@example.com"))
	code := f.issuedCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < f.cfg.Auth.CodeMaxAttempts; i++ {
		_, err := f.svc.Verify(ctx, "a@example.com", wrong)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	_, err := f.svc.Verify(ctx, "a@example.com", code)
	assert.ErrorIs(t, err, ErrInvalidCode, "code is burned after max attempts")
}

func TestAuthService_Verify_ConcurrentGuessesRespectAttemptCap(t *testing.T) {
	f := setupAuthService(t)
	var compared atomic.Int32
	f.svc.compare = func(hashed, plain []byte) error {
		compared.Add(1)
		return bcrypt.CompareHashAndPassword(hashed, plain)
	}

	for round := 0; round < 5; round++ {
		email := fmt.Sprintf("race%d@example.com", round)
		require.NoError(t, f.svc.SendCode(ctx, email))
		code := f.issuedCode(t)
		compared.Store(0)

		guesses := []string{code}
		for i := 0; len(guesses) < 30; i++ {
			if g := fmt.Sprintf("%06d", i); g != code {
				guesses = append(guesses, g)
			}
		}

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
		)
		start := make(chan struct{})
		for _, g := range guesses {
			wg.Add(1)
			go func(guess string) {
				defer wg.Done()
				<-start
				_, err := f.svc.Verify(ctx, email, guess)
				switch {
				case err == nil:
					successes.Add(1)
				case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrTooManyAttempts):
				default:
					t.Errorf("unexpected result: %v", err)
				}
			}(g)
		}
		close(start)
		wg.Wait()

		// 并发请求也只有前 max 次会进入比对
		assert.LessOrEqual(t, compared.Load(), int32(f.cfg.Auth.CodeMaxAttempts))
		assert.LessOrEqual(t, successes.Load(), int32(1))
		assert.False(t, f.mr.Exists("auth:code:"+email))
	}
}

func TestAuthService_Verify_AttemptBeyondCapIsRejected(t *testing.T) {
	f := setupAuthService(t)
	require.NoError(t, f.svc.SendCode(ctx, "cap@example.com"))
	code := f.issuedCode(t)

	// another request already used the last allowed attempt
	key := "auth:code:cap@example.com"
	f.mr.HSet(key, "attempts", fmt.Sprint(f.cfg.Auth.CodeMaxAttempts))

	_, err := f.svc.Verify(ctx, "cap@example.com", code)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.False(t, f.mr.Exists(key))
}

func TestAuthService_SendCode_EnqueueFailureReleasesCooldown(t *testing.T) {
	f := setupAuthService(t)
	f.jobs.err = errors.New("queue down")

	err := f.svc.SendCode(ctx, "a@example.com")
	require.Error(t, err)
	assert.Equal(t, apperr.Unknown, apperr.KindOf(err))
	assert.False(t, f.mr.Exists("auth:cooldown:a@example.com"))
	assert.False(t, f.mr.Exists("auth:code:a@example.com"))

	f.jobs.err = nil
	assert.NoError(t, f.svc.SendCode(ctx, "a@example.com"), "retry is not blocked by the cooldown")
}

func TestAuthService_Verify_Expired(t *testing.T) {
	f := setupAuthService(t)
	require.NoError(t, f.svc.SendCode(ctx, "a@example.com"))
	code := f.issuedCode(t)

	f.mr.FastForward(11 * time.Minute)
	_, err := f.svc.Verify(ctx, "a@example.com", code)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestUsernameFromEmail(t *testing.T) {
	assert.Equal(t, "john_doe", UsernameFromEmail("john.doe@example.com"))
	assert.Equal(t, "ab_u", UsernameFromEmail("ab@example.com"))
	assert.Equal(t, "x_y", UsernameFromEmail("x+-y@example.com"))
	assert.Len(t, UsernameFromEmail("averyveryveryveryveryveryveryverylonglocalpart@example.com"), 40)
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := generateNumericCode(6)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, code)
}
