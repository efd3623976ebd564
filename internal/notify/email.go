package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"euserv-renewer/internal/components/assert"

	"github.com/jordan-wright/email"
)

type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Email sends the report over SMTP with a plain text and an HTML part.
type Email struct {
	config SMTPConfig
	send   func(mail *email.Email, addr string, auth smtp.Auth) error
}

func NewEmail(config SMTPConfig) *Email {
	assert.NotEmptyStr(config.Server)
	assert.NotEmptyStr(config.From)
	assert.Positive(len(config.To))

	return &Email{
		config: config,
		send:   (*email.Email).Send,
	}
}

func (e *Email) Name() string {
	return "email"
}

func (e *Email) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("EUserv Renewer <%s>", e.config.From)
	mail.To = e.config.To
	mail.Subject = msg.Title
	mail.Text = []byte(msg.Text)
	mail.HTML = []byte("<pre>" + msg.HTML + "</pre>")

	addr := fmt.Sprintf("%s:%d", e.config.Server, e.config.Port)
	var auth smtp.Auth
	if e.config.Username != "" {
		auth = smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Server)
	}

	err := e.send(mail, addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = e.send(mail, addr, nil)
	}
	return err
}
