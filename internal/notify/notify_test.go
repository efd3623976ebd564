package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"euserv-renewer/internal/components/telemetry"
	"euserv-renewer/internal/portal"
	"euserv-renewer/internal/renewal"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"
)

var testReport = renewal.Report{
	StartedAt:  time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC),
	FinishedAt: time.Date(2026, time.October, 16, 9, 5, 0, 0, time.UTC),
	Outcomes: []renewal.AccountOutcome{
		{
			Account: "ada@example.com",
			Success: true,
			Orders:  []portal.Order{{ID: "12345", Eligible: true}},
			Renewals: []renewal.RenewalResult{
				{OrderID: "12345", Success: true, Message: "order 12345 renewed"},
			},
		},
		{
			Account: "bob@example.com",
			Success: true,
			Orders: []portal.Order{
				{ID: "67890", EligibleFrom: time.Date(2026, time.November, 20, 0, 0, 0, 0, time.UTC)},
			},
		},
		{
			Account: "eve@example.com",
			Error:   "login failed: <locked>",
		},
	},
}

func TestFormatHTML(t *testing.T) {
	body := FormatHTML(testReport, time.UTC)

	expected := strings.Join([]string{
		"<b>EUserv renewal report</b>",
		"Time: 2026-10-16 09:05:00",
		"Accounts: 3 (2 succeeded)",
		"",
		"<b>Account: ada@example.com</b>",
		"  order 12345 renewed",
		"",
		"<b>Account: bob@example.com</b>",
		"  no renewal needed (1 orders)",
		"    order 67890: renewable from 2026-11-20",
		"",
		"<b>Account: eve@example.com</b>",
		"  failed: login failed: &lt;locked&gt;",
	}, "\n")
	require.Equal(t, expected, body)
}

func TestPlainText(t *testing.T) {
	text := PlainText(FormatHTML(testReport, time.UTC))
	require.True(t, strings.HasPrefix(text, "EUserv renewal report\n"))
	require.Contains(t, text, "Account: bob@example.com")
	require.Contains(t, text, "failed: login failed: <locked>")
	require.NotContains(t, text, "<b>")
}

type fakeChannel struct {
	name string
	err  error
	got  []Message
}

func (f *fakeChannel) Name() string {
	return f.name
}

func (f *fakeChannel) Send(ctx context.Context, msg Message) error {
	f.got = append(f.got, msg)
	return f.err
}

func TestDispatcherTriesEveryChannel(t *testing.T) {
	broken := &fakeChannel{name: "broken", err: errors.New("unreachable")}
	working := &fakeChannel{name: "working"}

	d := NewDispatcher(time.UTC, telemetry.Noop{}, broken, working)
	err := d.Notify(context.Background(), testReport)
	require.ErrorContains(t, err, "broken: unreachable")

	require.Len(t, broken.got, 1)
	require.Len(t, working.got, 1)
	msg := working.got[0]
	require.Equal(t, reportTitle, msg.Title)
	require.Equal(t, FormatHTML(testReport, time.UTC), msg.HTML)
	require.Equal(t, PlainText(msg.HTML), msg.Text)
	require.Len(t, msg.Report.Outcomes, 3)
}

func TestDispatcherWithoutChannels(t *testing.T) {
	d := NewDispatcher(time.UTC, telemetry.Noop{})
	require.NoError(t, d.Notify(context.Background(), testReport))
}

func TestTelegram(t *testing.T) {
	var received map[string]any
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("content-type", "application/json")
		if received["chat_id"] != "42" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	msg := Message{HTML: "<b>hi</b>"}

	err := NewTelegram(server.URL, "123:abc", "42", telemetry.Noop{}).Send(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, "/bot123:abc/sendMessage", path)
	require.Equal(t, "<b>hi</b>", received["text"])
	require.Equal(t, "HTML", received["parse_mode"])

	err = NewTelegram(server.URL, "123:abc", "7", telemetry.Noop{}).Send(context.Background(), msg)
	require.ErrorContains(t, err, "chat not found")
}

func TestPush(t *testing.T) {
	var received map[string]string
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(status)
	}))
	defer server.Close()

	push := NewPush(server.URL+"/push", PushMetadata{Sound: "alarm", Group: "euserv", Icon: "https://example.com/icon.png"}, telemetry.Noop{})
	err := push.Send(context.Background(), Message{Title: "title", Text: "body"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"title": "title",
		"body":  "body",
		"sound": "alarm",
		"group": "euserv",
		"icon":  "https://example.com/icon.png",
	}, received)

	status = http.StatusServiceUnavailable
	require.Error(t, push.Send(context.Background(), Message{Title: "title", Text: "body"}))
}

func TestEmailFallsBackWithoutAuth(t *testing.T) {
	var auths []smtp.Auth
	var sent *email.Email
	var addr string

	e := NewEmail(SMTPConfig{
		Server:   "smtp.example.com",
		Port:     587,
		Username: "bot@example.com",
		Password: "pw",
		From:     "bot@example.com",
		To:       []string{"ops@example.com"},
	})
	e.send = func(mail *email.Email, a string, auth smtp.Auth) error {
		auths = append(auths, auth)
		sent = mail
		addr = a
		if auth != nil {
			return errors.New("smtp: server doesn't support AUTH")
		}
		return nil
	}

	err := e.Send(context.Background(), Message{Title: reportTitle, Text: "text", HTML: "<b>x</b>"})
	require.NoError(t, err)
	require.Len(t, auths, 2)
	require.Nil(t, auths[1])
	require.Equal(t, "smtp.example.com:587", addr)
	require.Equal(t, reportTitle, sent.Subject)
	require.Equal(t, []string{"ops@example.com"}, sent.To)
	require.Equal(t, "text", string(sent.Text))
}

func TestConsole(t *testing.T) {
	var out bytes.Buffer
	err := NewConsole(&out).Send(context.Background(), Message{Title: reportTitle, Report: testReport})
	require.NoError(t, err)

	rendered := out.String()
	require.Contains(t, rendered, reportTitle)
	require.Contains(t, rendered, "ada@example.com")
	require.Contains(t, rendered, "67890")
	require.Contains(t, rendered, "2026-11-20")
	require.Contains(t, rendered, "login failed: <locked>")
}
