package notify

import (
	"context"
	"fmt"
	"time"

	"euserv-renewer/internal/components/assert"
	"euserv-renewer/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
)

func newHTTPClient(baseUrl string, tel telemetry.API) *resty.Client {
	client := resty.New()
	if baseUrl != "" {
		client.SetBaseURL(baseUrl)
	}
	client.SetTimeout(time.Second * 10)
	telemetry.InstrumentResty(client, tel)
	return client
}

// Telegram posts the HTML report through the bot API.
type Telegram struct {
	http   *resty.Client
	token  string
	chatId string
}

type telegramResponse struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegram creates the channel, baseUrl is usually https://api.telegram.org.
func NewTelegram(baseUrl, token, chatId string, tel telemetry.API) *Telegram {
	assert.NotEmptyStr(baseUrl)
	assert.NotEmptyStr(token)
	assert.NotEmptyStr(chatId)
	assert.NotNil(tel)

	return &Telegram{
		http:   newHTTPClient(baseUrl, telemetry.NewScopedAPI("telegram", tel)),
		token:  token,
		chatId: chatId,
	}
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	var out telegramResponse
	res, err := t.http.R().
		SetContext(ctx).
		SetRawPathParam("token", t.token).
		SetBody(map[string]any{
			"chat_id":    t.chatId,
			"text":       msg.HTML,
			"parse_mode": "HTML",
		}).
		SetResult(&out).
		SetError(&out).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return err
	}
	if res.IsError() || !out.Ok {
		return fmt.Errorf("send message: status %d: %s", res.StatusCode(), out.Description)
	}
	return nil
}

// PushMetadata is sent unchanged with every push notification.
type PushMetadata struct {
	Sound string
	Group string
	Icon  string
}

// Push posts the plain text report as a JSON push notification.
type Push struct {
	http     *resty.Client
	endpoint string
	meta     PushMetadata
}

func NewPush(endpoint string, meta PushMetadata, tel telemetry.API) *Push {
	assert.NotEmptyStr(endpoint)
	assert.NotNil(tel)

	return &Push{
		http:     newHTTPClient("", telemetry.NewScopedAPI("push", tel)),
		endpoint: endpoint,
		meta:     meta,
	}
}

func (p *Push) Name() string {
	return "push"
}

func (p *Push) Send(ctx context.Context, msg Message) error {
	res, err := p.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"title": msg.Title,
			"body":  msg.Text,
			"sound": p.meta.Sound,
			"group": p.meta.Group,
			"icon":  p.meta.Icon,
		}).
		Post(p.endpoint)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("push: status %d", res.StatusCode())
	}
	return nil
}
