package renewal

import (
	"context"
	"fmt"
	"runtime/debug"

	"euserv-renewer/internal/components/assert"
	"euserv-renewer/internal/components/chrono"
	"euserv-renewer/internal/components/telemetry"
	"euserv-renewer/internal/portal"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	report_batch_account = "batch.account"
	report_batch_notify  = "batch.notify"
)

// AccountRunner runs one account to completion.
type AccountRunner interface {
	Run(ctx context.Context, account portal.Account) AccountOutcome
}

// BatchRunner runs every account on a bounded pool of workers and notifies
// the sink once after all of them finished.
type BatchRunner struct {
	runner  AccountRunner
	sink    Sink
	workers int
	time    chrono.TimeAPI
	tel     telemetry.API
}

// NewBatchRunner creates a BatchRunner, workers below 1 mean 1.
func NewBatchRunner(runner AccountRunner, sink Sink, workers int, time chrono.TimeAPI, tel telemetry.API) *BatchRunner {
	assert.NotNil(runner)
	assert.NotNil(sink)
	assert.NotNil(time)
	assert.NotNil(tel)

	if workers < 1 {
		workers = 1
	}

	return &BatchRunner{
		runner:  runner,
		sink:    sink,
		workers: workers,
		time:    time,
		tel:     telemetry.NewScopedAPI("batch", tel),
	}
}

// Run returns one outcome per account, in the order of accounts.
func (b *BatchRunner) Run(ctx context.Context, accounts []portal.Account) Report {
	ctx, span := tracer.Start(ctx, "renewal.batch")
	span.SetAttributes(
		attribute.Int("accounts", len(accounts)),
		attribute.Int("workers", b.workers),
	)
	defer span.End()

	report := Report{
		StartedAt: b.time.Now(),
		Outcomes:  make([]AccountOutcome, len(accounts)),
	}

	group := errgroup.Group{}
	group.SetLimit(b.workers)
	for i, account := range accounts {
		group.Go(func() error {
			report.Outcomes[i] = b.runAccount(ctx, account)
			return nil
		})
	}
	// runAccount never returns an error
	_ = group.Wait()

	report.FinishedAt = b.time.Now()
	span.SetAttributes(attribute.Int("succeeded", report.Succeeded()))
	b.tel.ReportCount(report_batch_account, int64(report.Succeeded()))

	err := b.sink.Notify(ctx, report)
	if err != nil {
		b.tel.ReportBroken(report_batch_notify, err)
	}
	return report
}

func (b *BatchRunner) runAccount(ctx context.Context, account portal.Account) (outcome AccountOutcome) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		b.tel.ReportBroken(
			report_batch_account,
			fmt.Errorf("panic: %v", recovered),
			account.Email,
			string(debug.Stack()),
		)
		outcome = AccountOutcome{
			Account: account.Email,
			Error:   fmt.Sprintf("unexpected fault: %v", recovered),
		}
	}()

	return b.runner.Run(ctx, account)
}
