package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/access"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/jwt"
	"github.com/qs3c/guild_server/internal/pkg/response"
)

const (
	UserIDKey    = "userID"
	PrincipalKey = "principal"
)

var (
	errMissingToken = apperr.New(apperr.Unauthorized, "Authentication required")
	errBadScheme    = apperr.New(apperr.Unauthorized, "Authorization header must use the Bearer scheme")
	errBadToken     = apperr.New(apperr.Unauthorized, "Invalid or expired token")
)

// principalFromHeader 解析 Authorization 头。没有头时返回 nil, nil
func principalFromHeader(c *gin.Context, jwtSecret string) (*access.Principal, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, nil
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, errBadScheme
	}

	claims, err := jwt.ParseToken(tokenString, jwtSecret)
	if err != nil {
		return nil, errBadToken
	}

	roles, err := model.ParseRoleSet(claims.Roles)
	if err != nil {
		return nil, errBadToken
	}

	return &access.Principal{
		ID:         claims.UserID,
		Roles:      roles,
		IsVerified: claims.Verified,
	}, nil
}

func setPrincipal(c *gin.Context, p *access.Principal) {
	c.Set(PrincipalKey, p)
	c.Set(UserIDKey, p.ID)
}

// Auth JWT 认证中间件
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := principalFromHeader(c, jwtSecret)
		if err != nil {
			response.FromError(c, err)
			return
		}
		if p == nil {
			response.FromError(c, errMissingToken)
			return
		}

		setPrincipal(c, p)
		c.Next()
	}
}

// RequireAdmin 仅管理员
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if err := access.RequirePrincipal(p); err != nil {
			response.FromError(c, err)
			return
		}
		if !p.IsAdmin() {
			response.FromError(c, apperr.New(apperr.Forbidden, "Admin role required"))
			return
		}
		c.Next()
	}
}

// GetPrincipal 从上下文获取调用方，未认证时为 nil
func GetPrincipal(c *gin.Context) *access.Principal {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return nil
	}
	p, _ := v.(*access.Principal)
	return p
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}
