package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role 用户角色（封闭枚举）
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleGuide   Role = "guide"
	RolePartner Role = "partner"
	RoleMember  Role = "member"
	RoleUser    Role = "user"
)

// AllRoles 全部角色，顺序即展示顺序
var AllRoles = []Role{RoleAdmin, RoleGuide, RolePartner, RoleMember, RoleUser}

// ParseRole 解析角色
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllRoles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// ContentType 可评论内容类型（封闭枚举）
type ContentType string

const (
	ContentGuideSession   ContentType = "guide_session"
	ContentPartnerListing ContentType = "partner_listing"
	ContentEvent          ContentType = "event"
	ContentPost           ContentType = "post"
)

// AllContentTypes 全部内容类型
var AllContentTypes = []ContentType{ContentGuideSession, ContentPartnerListing, ContentEvent, ContentPost}

// ParseContentType 解析内容类型
func ParseContentType(raw string) (ContentType, error) {
	ct := ContentType(strings.TrimSpace(raw))
	for _, known := range AllContentTypes {
		if ct == known {
			return ct, nil
		}
	}
	return "", fmt.Errorf("unknown content type %q", raw)
}

// ReactionKind 反应类型
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

// ParseReactionKind 解析反应类型
func ParseReactionKind(raw string) (ReactionKind, error) {
	switch k := ReactionKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case ReactionLike, ReactionDislike:
		return k, nil
	}
	return "", fmt.Errorf("unknown reaction kind %q", raw)
}

// RoleSet 角色集合，以逗号分隔的形式落库
type RoleSet []Role

// Has 是否包含角色
func (s RoleSet) Has(role Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// Intersects 与另一集合是否有交集
func (s RoleSet) Intersects(other RoleSet) bool {
	for _, r := range s {
		if other.Has(r) {
			return true
		}
	}
	return false
}

// Strings 转为字符串切片
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// ParseRoleSet 解析角色列表，忽略空值并去重
func ParseRoleSet(raw []string) (RoleSet, error) {
	set := make(RoleSet, 0, len(raw))
	for _, v := range raw {
		if strings.TrimSpace(v) == "" {
			continue
		}
		r, err := ParseRole(v)
		if err != nil {
			return nil, err
		}
		if !set.Has(r) {
			set = append(set, r)
		}
	}
	return set, nil
}

// Value implements driver.Valuer
func (s RoleSet) Value() (driver.Value, error) {
	return strings.Join(s.Strings(), ","), nil
}

// Scan implements sql.Scanner
func (s *RoleSet) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*s = RoleSet{}
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into RoleSet", value)
	}

	set, err := ParseRoleSet(strings.Split(raw, ","))
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// GormDataType 落库类型
func (RoleSet) GormDataType() string {
	return "string"
}
