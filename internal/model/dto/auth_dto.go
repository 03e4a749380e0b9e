package dto

// SendCodeRequest 发送登录验证码
type SendCodeRequest struct {
	Email string `json:"email" binding:"required,email,max=100"`
}

// VerifyCodeRequest 验证码登录
type VerifyCodeRequest struct {
	Email string `json:"email" binding:"required,email,max=100"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token string    `json:"token"`
	User  *UserInfo `json:"user"`
}

// UserInfo 用户信息（返回给前端）
type UserInfo struct {
	ID            int64    `json:"id"`
	Username      string   `json:"username"`
	Email         string   `json:"email,omitempty"`
	AvatarURL     string   `json:"avatar_url"`
	Bio           string   `json:"bio"`
	Roles         []string `json:"roles"`
	EmailVerified bool     `json:"email_verified"`
	CreatedAt     string   `json:"created_at,omitempty"`
}

// UpdateProfileRequest 更新用户信息请求
type UpdateProfileRequest struct {
	Username *string `json:"username,omitempty" binding:"omitempty,min=3,max=50"`
	Bio      *string `json:"bio,omitempty" binding:"omitempty,max=500"`
}

// UpdateRolesRequest 管理员设置用户角色
type UpdateRolesRequest struct {
	Roles []string `json:"roles" binding:"required,min=1,dive,required"`
}
