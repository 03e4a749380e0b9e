package service

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/model/dto"
	"github.com/qs3c/guild_server/internal/pkg/access"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/logging"
	"github.com/qs3c/guild_server/internal/pkg/oss"
	"github.com/qs3c/guild_server/internal/repository"
)

// MaxAvatarSize 头像大小上限
const MaxAvatarSize = 2 << 20

// AvatarUploader 头像对象存储
type AvatarUploader interface {
	UploadAvatar(userID int64, data []byte, ext string) (string, error)
}

type UserService struct {
	userRepo *repository.UserRepository
	uploader AvatarUploader
	cfg      *config.Config
}

func NewUserService(userRepo *repository.UserRepository, uploader AvatarUploader, cfg *config.Config) *UserService {
	return &UserService{
		userRepo: userRepo,
		uploader: uploader,
		cfg:      cfg,
	}
}

// GetProfile 获取用户详情
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, ErrUserNotFound)
	}
	return buildUserInfo(user), nil
}

// UpdateProfile 更新用户名与简介
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *dto.UpdateProfileRequest) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, ErrUserNotFound)
	}

	fields := make(map[string]interface{})
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username != user.Username {
			exists, err := s.userRepo.ExistsByUsername(ctx, username)
			if err != nil {
				return nil, apperr.Internal(err)
			}
			if exists {
				return nil, ErrUsernameExists
			}
			fields["username"] = username
			user.Username = username
		}
	}
	if req.Bio != nil {
		fields["bio"] = *req.Bio
		user.Bio = *req.Bio
	}

	if len(fields) > 0 {
		if err := s.userRepo.UpdateFields(ctx, userID, fields); err != nil {
			return nil, apperr.Internal(err)
		}
	}
	return buildUserInfo(user), nil
}

// UploadAvatar 上传头像并更新头像 URL
func (s *UserService) UploadAvatar(ctx context.Context, userID int64, file io.Reader, filename string) (string, error) {
	if s.uploader == nil {
		return "", ErrUploadDisabled
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if oss.ContentTypeOf(ext) == "" {
		return "", ErrInvalidAvatarType
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarSize+1))
	if err != nil {
		return "", apperr.Internal(err)
	}
	if len(data) > MaxAvatarSize {
		return "", ErrAvatarTooLarge
	}

	avatarURL, err := s.uploader.UploadAvatar(userID, data, ext)
	if err != nil {
		return "", apperr.Internal(err)
	}

	if err := s.userRepo.UpdateFields(ctx, userID, map[string]interface{}{"avatar_url": avatarURL}); err != nil {
		return "", apperr.Internal(err)
	}
	return avatarURL, nil
}

// SetRoles 管理员替换用户角色，新角色在用户下次登录签发令牌后生效
func (s *UserService) SetRoles(ctx context.Context, p *access.Principal, userID int64, raw []string) (*dto.UserInfo, error) {
	if err := access.RequirePrincipal(p); err != nil {
		return nil, err
	}
	if !p.IsAdmin() {
		return nil, ErrAdminOnly
	}

	roles, err := model.ParseRoleSet(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadRequest, "Invalid role", err)
	}
	if len(roles) == 0 {
		return nil, apperr.New(apperr.BadRequest, "At least one role is required")
	}

	if err := s.userRepo.UpdateRoles(ctx, userID, roles); err != nil {
		return nil, notFoundAs(err, ErrUserNotFound)
	}

	logging.Ctx(ctx).Info().
		Int64("actor_id", p.ID).
		Int64("user_id", userID).
		Strs("roles", roles.Strings()).
		Msg("user roles replaced")

	return s.GetProfile(ctx, userID)
}

func buildUserInfo(user *model.User) *dto.UserInfo {
	info := &dto.UserInfo{
		ID:            user.ID,
		Username:      user.Username,
		AvatarURL:     user.AvatarURL,
		Bio:           user.Bio,
		Roles:         user.Roles.Strings(),
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
	}
	if user.Email != nil {
		info.Email = *user.Email
	}
	return info
}
