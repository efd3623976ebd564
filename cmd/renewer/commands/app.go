package commands

import (
	"context"
	"errors"
	"os"
	"time"

	"euserv-renewer/internal/captcha"
	"euserv-renewer/internal/components/chrono"
	"euserv-renewer/internal/components/configutil"
	"euserv-renewer/internal/components/serviceutil"
	"euserv-renewer/internal/components/telemetry"
	"euserv-renewer/internal/config"
	"euserv-renewer/internal/mailpin"
	"euserv-renewer/internal/notify"
	"euserv-renewer/internal/portal"
	"euserv-renewer/internal/renewal"

	"github.com/spf13/cobra"
)

// app holds everything the commands share, built from the config.
type app struct {
	cfg      config.Config
	location *time.Location
	clock    chrono.StandardTime
	tel      telemetry.API
	solver   *captcha.Solver
	pins     mailpin.Retriever
	dump     *telemetry.HTTPDump
}

func resolveConfigPath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("config") {
		return configPath
	}
	path, err := configutil.Find(configPath)
	if errors.Is(err, os.ErrNotExist) {
		// environment only
		return configPath
	}
	if err != nil {
		serviceutil.Fatal("failed to look for config", err)
	}
	return path
}

// loadApp exits the process when the config is unusable. Accounts are only
// required if requireAccounts is set.
func loadApp(cmd *cobra.Command, requireAccounts bool) app {
	load := config.Read
	if requireAccounts {
		load = config.Load
	}
	cfg, err := load(resolveConfigPath(cmd))
	if err != nil {
		serviceutil.Fatal("failed to load config", err)
	}
	location, err := cfg.Location()
	if err != nil {
		serviceutil.Fatal("failed to load timezone", err)
	}

	if dumpDir != "" {
		cfg.Portal.DumpDir = dumpDir
	}
	var dump *telemetry.HTTPDump
	if cfg.Portal.DumpDir != "" {
		d, err := telemetry.NewHTTPDump(cfg.Portal.DumpDir)
		if err != nil {
			serviceutil.Fatal("failed to create dump directory", err)
		}
		dump = &d
	}

	tel := telemetry.SlogAPI{}
	return app{
		cfg:      cfg,
		location: location,
		clock:    chrono.NewStandardTime(location),
		tel:      tel,
		solver:   captcha.NewSolver(captcha.NewHTTPClassifier(cfg.Ocr.Endpoint, tel), captcha.DefaultFilter, tel),
		pins:     mailpin.NewRetriever(cfg.Portal.PinSender, tel),
		dump:     dump,
	}
}

// setupTracing installs the OTLP exporter when configured, the returned
// function flushes it.
func (a app) setupTracing(ctx context.Context) func() {
	shutdown, err := telemetry.SetupTracing(
		ctx,
		"euserv-renewer",
		a.cfg.Telemetry.OtlpHttpEndpoint,
		a.cfg.Telemetry.OtlpHeaders,
	)
	if err != nil {
		serviceutil.Fatal("failed to setup tracing", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := shutdown(ctx)
		if err != nil {
			a.tel.ReportWarning("tracing.shutdown", err)
		}
	}
}

func (a app) newSession(account portal.Account) (renewal.Session, error) {
	opts := a.cfg.PortalOptions()
	opts.Dump = a.dump
	session, err := portal.NewSession(account, opts, a.solver, a.pins, a.clock, a.tel)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (a app) channels() []notify.Channel {
	channels := []notify.Channel{notify.NewConsole(os.Stdout)}

	if a.cfg.Telegram.BotToken != "" && a.cfg.Telegram.ChatId != "" {
		channels = append(channels, notify.NewTelegram(
			a.cfg.Telegram.ApiBase,
			a.cfg.Telegram.BotToken,
			a.cfg.Telegram.ChatId,
			a.tel,
		))
	}
	if a.cfg.Push.Endpoint != "" {
		channels = append(channels, notify.NewPush(a.cfg.Push.Endpoint, notify.PushMetadata{
			Sound: a.cfg.Push.Sound,
			Group: a.cfg.Push.Group,
			Icon:  a.cfg.Push.Icon,
		}, a.tel))
	}
	if a.cfg.Smtp.Server != "" && len(a.cfg.Smtp.To) > 0 {
		from := a.cfg.Smtp.From
		if from == "" {
			from = a.cfg.Smtp.Username
		}
		channels = append(channels, notify.NewEmail(notify.SMTPConfig{
			Server:   a.cfg.Smtp.Server,
			Port:     a.cfg.Smtp.Port,
			Username: a.cfg.Smtp.Username,
			Password: a.cfg.Smtp.Password,
			From:     from,
			To:       a.cfg.Smtp.To,
		}))
	}
	return channels
}

func (a app) batchRunner() *renewal.BatchRunner {
	orchestrator := renewal.NewOrchestrator(a.newSession, a.cfg.LoginPolicy(), a.clock, a.tel)
	dispatcher := notify.NewDispatcher(a.location, a.tel, a.channels()...)
	return renewal.NewBatchRunner(orchestrator, dispatcher, a.cfg.Workers, a.clock, a.tel)
}
