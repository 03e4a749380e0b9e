package access

import (
	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
)

// Principal 已认证的调用方
type Principal struct {
	ID         int64
	Roles      model.RoleSet
	IsVerified bool
}

// IsAdmin 是否管理员
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Roles.Has(model.RoleAdmin)
}

// Owns 是否为资源所有者
func (p *Principal) Owns(userID int64) bool {
	return p != nil && p.ID == userID
}

var ErrUnauthorized = apperr.New(apperr.Unauthorized, "Authentication required")

// RequirePrincipal 未认证时返回 Unauthorized
func RequirePrincipal(p *Principal) error {
	if p == nil {
		return ErrUnauthorized
	}
	return nil
}
