// Package config loads the renewer configuration from a json5 file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"euserv-renewer/internal/components/configutil"
	"euserv-renewer/internal/components/retry"
	"euserv-renewer/internal/mailpin"
	"euserv-renewer/internal/portal"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
)

var ErrNoAccounts = errors.New("no accounts configured")

type Account struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// ImapServer defaults to imap_server of the portal section.
	ImapServer string `json:"imap_server"`
	// MailboxAddress defaults to Email.
	MailboxAddress string `json:"mailbox_address"`
	// MailboxPassword defaults to Password.
	MailboxPassword string `json:"mailbox_password"`
}

type PortalConfig struct {
	BaseUrl           string  `json:"base_url"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	PinSender         string  `json:"pin_sender"`
	ImapServer        string  `json:"imap_server"`
	// DumpDir, when set, receives a file per portal request.
	DumpDir string `json:"dump_dir"`

	LoginAttempts       int     `json:"login_attempts"`
	LoginDelaySeconds   float64 `json:"login_delay_seconds"`
	CaptchaAttempts     int     `json:"captcha_attempts"`
	CaptchaDelaySeconds float64 `json:"captcha_delay_seconds"`
	PinPollAttempts     int     `json:"pin_poll_attempts"`
	PinPollDelaySeconds float64 `json:"pin_poll_delay_seconds"`
	PinSettleSeconds    float64 `json:"pin_settle_seconds"`
	StepSettleSeconds   float64 `json:"step_settle_seconds"`
}

type OcrConfig struct {
	Endpoint string `json:"endpoint"`
}

type TelegramConfig struct {
	ApiBase  string `json:"api_base"`
	BotToken string `json:"bot_token"`
	ChatId   string `json:"chat_id"`
}

type PushConfig struct {
	Endpoint string `json:"endpoint"`
	Sound    string `json:"sound"`
	Group    string `json:"group"`
	Icon     string `json:"icon"`
}

type SmtpConfig struct {
	Server   string   `json:"server"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

type TelemetryConfig struct {
	OtlpHttpEndpoint string            `json:"otlp_http_endpoint"`
	OtlpHeaders      map[string]string `json:"otlp_headers"`
}

type Config struct {
	Accounts []Account `json:"accounts"`
	Workers  int       `json:"workers"`
	// Timezone decides the refresh days and report timestamps, empty means
	// the process local zone.
	Timezone string `json:"timezone"`
	// Schedule is the cron spec the daemon command runs batches on.
	Schedule string `json:"schedule"`

	Portal    PortalConfig    `json:"portal"`
	Ocr       OcrConfig       `json:"ocr"`
	Telegram  TelegramConfig  `json:"telegram"`
	Push      PushConfig      `json:"push"`
	Smtp      SmtpConfig      `json:"smtp"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// Default holds the values used for every field left zero.
func Default() Config {
	return Config{
		Workers:  3,
		Schedule: "0 8 * * *",
		Portal: PortalConfig{
			BaseUrl:             "https://support.euserv.com",
			RequestsPerSecond:   2,
			PinSender:           "no-reply@euserv.com",
			ImapServer:          "imap.gmail.com",
			LoginAttempts:       5,
			LoginDelaySeconds:   5,
			CaptchaAttempts:     5,
			CaptchaDelaySeconds: 2,
			PinPollAttempts:     3,
			PinPollDelaySeconds: 5,
			PinSettleSeconds:    3,
			StepSettleSeconds:   3,
		},
		Ocr: OcrConfig{
			Endpoint: "http://127.0.0.1:9898/ocr",
		},
		Telegram: TelegramConfig{
			ApiBase: "https://api.telegram.org",
		},
		Push: PushConfig{
			Sound: "alarm",
			Group: "euserv",
		},
		Smtp: SmtpConfig{
			Port: 587,
		},
	}
}

// envOverrides are read from the environment and win over the file.
type envOverrides struct {
	TelegramBotToken string `env:"TG_BOT_TOKEN"`
	TelegramChatId   string `env:"TG_CHAT_ID"`
	PushEndpoint     string `env:"PUSH_ENDPOINT"`
	OcrEndpoint      string `env:"OCR_ENDPOINT"`

	// single account shortcut
	Email        string `env:"EUSERV_EMAIL"`
	Password     string `env:"EUSERV_PASSWORD"`
	MailPassword string `env:"EMAIL_PASS"`
	ImapServer   string `env:"IMAP_SERVER"`
}

// Load reads the config file at path, which may be missing, applies the
// environment and the defaults and validates the result.
func Load(path string) (Config, error) {
	return load(path, env.Options{})
}

// Read is Load without validation, for commands that need no accounts.
func Read(path string) (Config, error) {
	return read(path, env.Options{})
}

func load(path string, opts env.Options) (Config, error) {
	cfg, err := read(path, opts)
	if err != nil {
		return Config{}, err
	}
	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func read(path string, opts env.Options) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var overrides envOverrides
	err = env.ParseWithOptions(&overrides, opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.applyEnv(overrides)

	err = mergo.Merge(&cfg, Default())
	if err != nil {
		return Config{}, fmt.Errorf("apply defaults: %w", err)
	}
	cfg.fillAccounts()
	return cfg, nil
}

func (c *Config) applyEnv(o envOverrides) {
	if o.TelegramBotToken != "" {
		c.Telegram.BotToken = o.TelegramBotToken
	}
	if o.TelegramChatId != "" {
		c.Telegram.ChatId = o.TelegramChatId
	}
	if o.PushEndpoint != "" {
		c.Push.Endpoint = o.PushEndpoint
	}
	if o.OcrEndpoint != "" {
		c.Ocr.Endpoint = o.OcrEndpoint
	}

	if o.Email == "" {
		return
	}
	configured := slices.ContainsFunc(c.Accounts, func(a Account) bool {
		return a.Email == o.Email
	})
	if configured {
		return
	}
	c.Accounts = append(c.Accounts, Account{
		Email:           o.Email,
		Password:        o.Password,
		ImapServer:      o.ImapServer,
		MailboxPassword: o.MailPassword,
	})
}

func (c *Config) fillAccounts() {
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.ImapServer == "" {
			a.ImapServer = c.Portal.ImapServer
		}
		if a.MailboxAddress == "" {
			a.MailboxAddress = a.Email
		}
		if a.MailboxPassword == "" {
			a.MailboxPassword = a.Password
		}
	}
}

// Validate rejects configurations the renewer cannot run with. Workers below 1
// are clamped instead.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return ErrNoAccounts
	}
	for i, a := range c.Accounts {
		if a.Email == "" || a.Password == "" {
			return fmt.Errorf("account %d: email and password are required", i)
		}
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Portal.BaseUrl == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c Config) LoginPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Portal.LoginAttempts,
		Delay:       seconds(c.Portal.LoginDelaySeconds),
	}
}

func (c Config) PortalOptions() portal.Options {
	return portal.Options{
		BaseURL:           c.Portal.BaseUrl,
		RequestsPerSecond: c.Portal.RequestsPerSecond,
		Captcha: retry.Policy{
			MaxAttempts: c.Portal.CaptchaAttempts,
			Delay:       seconds(c.Portal.CaptchaDelaySeconds),
		},
		PinPoll: retry.Policy{
			MaxAttempts: c.Portal.PinPollAttempts,
			Delay:       seconds(c.Portal.PinPollDelaySeconds),
		},
		PinSettle:  seconds(c.Portal.PinSettleSeconds),
		StepSettle: seconds(c.Portal.StepSettleSeconds),
	}
}

func (a Account) PortalAccount() portal.Account {
	return portal.Account{
		Email:    a.Email,
		Password: a.Password,
		Mailbox: mailpin.Mailbox{
			Server:   a.ImapServer,
			Address:  a.MailboxAddress,
			Password: a.MailboxPassword,
		},
	}
}

func (c Config) PortalAccounts() []portal.Account {
	out := make([]portal.Account, len(c.Accounts))
	for i, a := range c.Accounts {
		out[i] = a.PortalAccount()
	}
	return out
}

// FindAccount returns the configured account with the given email.
func (c Config) FindAccount(email string) (Account, bool) {
	i := slices.IndexFunc(c.Accounts, func(a Account) bool {
		return a.Email == email
	})
	if i < 0 {
		return Account{}, false
	}
	return c.Accounts[i], true
}
