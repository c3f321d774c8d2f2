package services

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"

	"bookcircle/internal/config"
)

var verificationTemplate = template.Must(template.New("verify").Parse(`<p>Hi {{.Name}},</p>
<p>Welcome to Bookcircle. Confirm your email address to start sharing books:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>The link expires in 24 hours.</p>`))

type MailService struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Enabled  bool
}

func NewMailService(cfg config.Config) *MailService {
	enabled := cfg.MailEnabled()
	if !enabled {
		slog.Warn("mail service disabled: missing SMTP settings")
	}
	return &MailService{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		Enabled:  enabled,
	}
}

func (s *MailService) sendAsync(to []string, subject string, body string) {
	if !s.Enabled {
		slog.Info("mail not sent, delivery disabled", "to", to, "subject", subject)
		return
	}

	go func() {
		auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
		addr := fmt.Sprintf("%s:%s", s.Host, s.Port)

		mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
		msg := []byte(fmt.Sprintf("To: %s\r\n"+
			"From: Bookcircle <%s>\r\n"+
			"Subject: %s\r\n"+
			"%s\r\n%s", strings.Join(to, ","), s.From, subject, mime, body))

		if err := smtp.SendMail(addr, auth, s.From, to, msg); err != nil {
			slog.Error("send email failed", "to", to, "error", err)
			return
		}
		slog.Info("email sent", "to", to, "subject", subject)
	}()
}

// SendVerificationEmail mails the account confirmation link.
func (s *MailService) SendVerificationEmail(to, name, link string) {
	var buf bytes.Buffer
	if err := verificationTemplate.Execute(&buf, map[string]string{"Name": name, "Link": link}); err != nil {
		slog.Error("render verification email failed", "error", err)
		return
	}
	s.sendAsync([]string{to}, "Confirm your Bookcircle account", buf.String())
}
