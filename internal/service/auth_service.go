package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/model/dto"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/jwt"
	"github.com/qs3c/guild_server/internal/pkg/logging"
	"github.com/qs3c/guild_server/internal/pkg/queue"
	"github.com/qs3c/guild_server/internal/repository"
)

const (
	codeKeyPrefix     = "auth:code:"
	cooldownKeyPrefix = "auth:cooldown:"
	codeCooldown      = 60 * time.Second
	codeDigits        = 6
)

var usernameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// reserveAttempt 原子地占用一次校验机会，返回哈希与占用后的次数；验证码不存在时返回 nil
var reserveAttempt = redis.NewScript(`
local hash = redis.call('HGET', KEYS[1], 'hash')
if not hash then
	return false
end
local n = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
return {hash, n}
`)

type AuthService struct {
	userRepo *repository.UserRepository
	rdb      *redis.Client
	jobs     JobEnqueuer
	cfg      *config.Config

	compare func(hashed, plain []byte) error
}

func NewAuthService(userRepo *repository.UserRepository, rdb *redis.Client, jobs JobEnqueuer, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		rdb:      rdb,
		jobs:     jobs,
		cfg:      cfg,
		compare:  bcrypt.CompareHashAndPassword,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SendCode 生成登录验证码并投递邮件任务，验证码只以 bcrypt 哈希保存。
// 冷却键先占位，后续任一步失败都会撤销
func (s *AuthService) SendCode(ctx context.Context, email string) (err error) {
	email = normalizeEmail(email)
	cooldownKey := cooldownKeyPrefix + email

	ok, err := s.rdb.SetNX(ctx, cooldownKey, 1, codeCooldown).Result()
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return ErrCodeCooldown
	}
	defer func() {
		if err != nil {
			s.rdb.Del(context.WithoutCancel(ctx), cooldownKey)
		}
	}()

	code, err := generateNumericCode(codeDigits)
	if err != nil {
		return apperr.Internal(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal(err)
	}

	key := codeKeyPrefix + email
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "hash", string(hash), "attempts", 0)
	pipe.Expire(ctx, key, s.cfg.Auth.CodeTTL())
	if _, err = pipe.Exec(ctx); err != nil {
		return apperr.Internal(err)
	}

	if err = s.jobs.Push(ctx, &queue.Job{Type: queue.JobOTPEmail, Email: email, Code: code}); err != nil {
		s.rdb.Del(context.WithoutCancel(ctx), key)
		return apperr.Internal(err)
	}

	logging.Ctx(ctx).Info().Str("email", email).Msg("login code issued")
	return nil
}

// Verify 校验验证码，首次登录的邮箱自动注册为普通用户
func (s *AuthService) Verify(ctx context.Context, email, code string) (*dto.LoginResponse, error) {
	email = normalizeEmail(email)
	key := codeKeyPrefix + email

	// 先占用次数再比对，并发猜测同样受上限约束
	res, err := reserveAttempt.Run(ctx, s.rdb, []string{key}).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(res) != 2 {
		return nil, apperr.Internal(fmt.Errorf("unexpected reserve reply %v", res))
	}
	hash, _ := res[0].(string)
	attempt, _ := res[1].(int64)

	maxAttempts := int64(s.cfg.Auth.CodeMaxAttempts)
	if maxAttempts > 0 && attempt > maxAttempts {
		s.rdb.Del(ctx, key)
		return nil, ErrTooManyAttempts
	}

	if s.compare([]byte(hash), []byte(code)) != nil {
		if maxAttempts > 0 && attempt >= maxAttempts {
			s.rdb.Del(ctx, key)
		}
		return nil, ErrInvalidCode
	}

	// 验证码一次性，并发的正确请求只有删除成功的一方登录
	deleted, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if deleted == 0 {
		return nil, ErrInvalidCode
	}

	user, err := s.findOrCreateUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.TouchLogin(ctx, user.ID, time.Now()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("user_id", user.ID).Msg("touch login failed")
	}

	token, err := jwt.GenerateToken(user.ID, user.Roles.Strings(), user.EmailVerified, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	return &dto.LoginResponse{
		Token: token,
		User:  buildUserInfo(user),
	}, nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		if !user.EmailVerified {
			if err := s.userRepo.UpdateFields(ctx, user.ID, map[string]interface{}{"email_verified": true}); err != nil {
				return nil, apperr.Internal(err)
			}
			user.EmailVerified = true
		}
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}

	username, err := s.uniqueUsername(ctx, email)
	if err != nil {
		return nil, err
	}

	user = &model.User{
		Username:      username,
		Email:         &email,
		Roles:         model.RoleSet{model.RoleUser},
		EmailVerified: true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperr.Internal(err)
	}

	logging.Ctx(ctx).Info().Int64("user_id", user.ID).Str("username", username).Msg("user registered")
	return user, nil
}

// uniqueUsername 以邮箱前缀为基础生成不重复的用户名
func (s *AuthService) uniqueUsername(ctx context.Context, email string) (string, error) {
	base := UsernameFromEmail(email)

	candidate := base
	for i := 0; i < 5; i++ {
		exists, err := s.userRepo.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", apperr.Internal(err)
		}
		if !exists {
			return candidate, nil
		}
		suffix, err := generateNumericCode(4)
		if err != nil {
			return "", apperr.Internal(err)
		}
		candidate = base + "_" + suffix
	}
	return "", apperr.Internal(fmt.Errorf("no free username for %q", base))
}

// UsernameFromEmail 取邮箱前缀并去除非法字符，长度限制在 3 到 40
func UsernameFromEmail(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i >= 0 {
		local = email[:i]
	}
	name := strings.Trim(usernameSanitizer.ReplaceAllString(local, "_"), "_")
	if len(name) > 40 {
		name = name[:40]
	}
	for len(name) < 3 {
		name += "_u"
	}
	return name
}

// generateNumericCode 生成定长数字码
func generateNumericCode(digits int) (string, error) {
	var b strings.Builder
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
