// Package access 内容类型到角色的访问策略，所有角色校验共用同一个集合求交实现
package access

import (
	"fmt"
	"strings"

	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
)

var ErrMissingContentType = apperr.New(apperr.BadRequest, "content_type is required")

// PolicyTable 内容类型 -> 允许评论的角色集合
type PolicyTable struct {
	rules map[model.ContentType]model.RoleSet
}

// NewPolicyTable 创建策略表
func NewPolicyTable(rules map[model.ContentType]model.RoleSet) *PolicyTable {
	copied := make(map[model.ContentType]model.RoleSet, len(rules))
	for ct, roles := range rules {
		copied[ct] = append(model.RoleSet(nil), roles...)
	}
	return &PolicyTable{rules: copied}
}

// DefaultPolicy 默认策略，admin 隐式拥有全部权限，无需列出
func DefaultPolicy() *PolicyTable {
	return NewPolicyTable(map[model.ContentType]model.RoleSet{
		model.ContentGuideSession:   {model.RoleGuide, model.RoleMember},
		model.ContentPartnerListing: {model.RolePartner, model.RoleMember},
		model.ContentEvent:          {model.RoleGuide, model.RolePartner, model.RoleMember, model.RoleUser},
		model.ContentPost:           {model.RoleGuide, model.RolePartner, model.RoleMember, model.RoleUser},
	})
}

// Lookup 查询内容类型允许的角色
func (t *PolicyTable) Lookup(ct model.ContentType) (model.RoleSet, error) {
	roles, ok := t.rules[ct]
	if !ok {
		return nil, apperr.New(apperr.BadRequest, fmt.Sprintf("Invalid content type: %s", ct))
	}
	return roles, nil
}

// ParseContentType 校验请求中的内容类型：必须存在且在策略表中
func (t *PolicyTable) ParseContentType(raw string) (model.ContentType, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrMissingContentType
	}
	ct, err := model.ParseContentType(raw)
	if err != nil {
		return "", apperr.New(apperr.BadRequest, fmt.Sprintf("Invalid content type: %s", raw))
	}
	if _, err := t.Lookup(ct); err != nil {
		return "", err
	}
	return ct, nil
}

// Authorize 角色与允许角色集合求交；admin 总是通过
func (t *PolicyTable) Authorize(p *Principal, ct model.ContentType) error {
	if err := RequirePrincipal(p); err != nil {
		return err
	}
	allowed, err := t.Lookup(ct)
	if err != nil {
		return err
	}
	if p.IsAdmin() || p.Roles.Intersects(allowed) {
		return nil
	}
	return apperr.New(apperr.Forbidden, "Access denied. Allowed roles: "+joinRoles(allowed))
}

func joinRoles(roles model.RoleSet) string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == model.RoleAdmin {
			continue
		}
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}
