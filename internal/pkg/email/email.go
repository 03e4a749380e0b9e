package email

import (
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/qs3c/guild_server/config"
)

const siteName = "Guild 社区"

type Service struct {
	cfg *config.EmailConfig
	// send 可在测试中替换
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg, send: smtp.SendMail}
}

// ReplyNotice 回复通知邮件内容
type ReplyNotice struct {
	RecipientName string
	ActorName     string
	ContentType   string
	ContentID     string
	ReplyBody     string
}

// SendLoginCode 发送登录验证码
func (s *Service) SendLoginCode(to, code string, ttlMinutes int) error {
	subject := "登录验证码 - " + siteName
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">登录验证</h2>
        <p>您好，您的登录验证码为：</p>
        <div style="background-color: #f3f4f6; padding: 15px; text-align: center; font-size: 24px; font-weight: bold; letter-spacing: 5px; margin: 20px 0;">
            %s
        </div>
        <p>验证码有效期为 %d 分钟。如果您没有进行此操作，请忽略此邮件。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, html.EscapeString(code), ttlMinutes)

	return s.sendHTML(to, subject, body)
}

// SendReplyNotification 通知评论作者收到了新回复
func (s *Service) SendReplyNotification(to string, n ReplyNotice) error {
	subject := fmt.Sprintf("%s 回复了你的评论 - %s", n.ActorName, siteName)
	link := s.contentLink(n.ContentType, n.ContentID)
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">新回复</h2>
        <p>%s，您好：</p>
        <p><strong>%s</strong> 回复了你的评论：</p>
        <blockquote style="border-left: 4px solid #e5e7eb; margin: 20px 0; padding: 10px 15px; color: #4b5563;">%s</blockquote>
        <div style="text-align: center; margin: 30px 0;">
            <a href="%s" style="background-color: #2563eb; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">查看讨论</a>
        </div>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, html.EscapeString(n.RecipientName), html.EscapeString(n.ActorName), html.EscapeString(excerpt(n.ReplyBody, 200)), html.EscapeString(link))

	return s.sendHTML(to, subject, body)
}

func (s *Service) contentLink(contentType, contentID string) string {
	base := strings.TrimRight(s.cfg.SiteURL, "/")
	return fmt.Sprintf("%s/%s/%s#comments", base, contentType, contentID)
}

// excerpt 按字符截断
func excerpt(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "…"
}

// sendHTML 发送 HTML 邮件
func (s *Service) sendHTML(to, subject, body string) error {
	headers := [][2]string{
		{"From", s.cfg.From},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return s.send(addr, auth, s.cfg.From, []string{to}, []byte(msg.String()))
}
