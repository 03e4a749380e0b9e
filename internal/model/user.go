package model

import (
	"time"
)

type User struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	Username      string     `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email         *string    `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	AvatarURL     string     `gorm:"size:500" json:"avatar_url"`
	Bio           string     `gorm:"type:text" json:"bio"`
	Roles         RoleSet    `gorm:"size:255;not null" json:"roles"`
	EmailVerified bool       `gorm:"default:false" json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
