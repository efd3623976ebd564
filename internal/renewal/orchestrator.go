// Package renewal runs the renewal of every configured account: one
// Orchestrator run per account, fanned out by the BatchRunner.
package renewal

import (
	"context"
	"fmt"

	"euserv-renewer/internal/components/assert"
	"euserv-renewer/internal/components/chrono"
	"euserv-renewer/internal/components/retry"
	"euserv-renewer/internal/components/telemetry"
	"euserv-renewer/internal/portal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_orchestrator_login   = "orchestrator.login"
	report_orchestrator_refresh = "orchestrator.refresh"
	report_orchestrator_orders  = "orchestrator.list-orders"
	report_orchestrator_renew   = "orchestrator.renew"
)

var tracer = telemetry.Tracer("euserv-renewer/internal/renewal")

// Session is the part of *portal.Session an account run needs.
type Session interface {
	Login(ctx context.Context) error
	RefreshCustomerData(ctx context.Context) error
	ListOrders(ctx context.Context) ([]portal.Order, error)
	Renew(ctx context.Context, orderId string) error
}

// SessionFactory returns a new session, with no cookies and no session id,
// for every login attempt.
type SessionFactory func(account portal.Account) (Session, error)

type Orchestrator struct {
	newSession SessionFactory
	login      retry.Policy
	time       chrono.TimeAPI
	tel        telemetry.API
}

func NewOrchestrator(newSession SessionFactory, login retry.Policy, time chrono.TimeAPI, tel telemetry.API) *Orchestrator {
	assert.NotNil(newSession)
	assert.NotNil(time)
	assert.NotNil(tel)

	return &Orchestrator{
		newSession: newSession,
		login:      login,
		time:       time,
		tel:        tel,
	}
}

// Run logs in, refreshes the customer data when due, lists the orders and
// renews every eligible one, in that order. Failures end up in the outcome.
func (o *Orchestrator) Run(ctx context.Context, account portal.Account) AccountOutcome {
	ctx, span := tracer.Start(ctx, "renewal.account")
	span.SetAttributes(attribute.String("account", account.Email))
	defer span.End()

	tel := telemetry.NewScopedAPI(account.Email, o.tel)
	outcome := AccountOutcome{Account: account.Email}

	session, err := o.loginWithRetry(ctx, account, tel)
	if err != nil {
		outcome.Error = err.Error()
		span.SetStatus(codes.Error, outcome.Error)
		return outcome
	}

	if portal.RefreshDue(o.time.Now()) {
		err := session.RefreshCustomerData(ctx)
		if err != nil {
			tel.ReportWarning(report_orchestrator_refresh, err)
		}
	}

	orders, err := session.ListOrders(ctx)
	if err != nil {
		tel.ReportBroken(report_orchestrator_orders, err)
		outcome.Success = true
		outcome.Error = fmt.Sprintf("list orders: %s", err)
		return outcome
	}
	outcome.Orders = orders
	outcome.Success = true

	if len(orders) == 0 {
		tel.ReportInfo("no orders found")
		return outcome
	}

	for _, order := range orders {
		if !order.Eligible {
			tel.ReportDebug("not yet renewable", order.ID, order.EligibleDate())
			continue
		}

		err := session.Renew(ctx, order.ID)
		if err != nil {
			tel.ReportWarning(report_orchestrator_renew, err, order.ID)
			outcome.Renewals = append(outcome.Renewals, RenewalResult{
				OrderID: order.ID,
				Success: false,
				Message: fmt.Sprintf("order %s renewal failed: %s", order.ID, err),
			})
			continue
		}
		outcome.Renewals = append(outcome.Renewals, RenewalResult{
			OrderID: order.ID,
			Success: true,
			Message: fmt.Sprintf("order %s renewed", order.ID),
		})
	}

	return outcome
}

// loginWithRetry restarts the login state machine on a new session for every
// attempt, so a rejected session id is never reused.
func (o *Orchestrator) loginWithRetry(ctx context.Context, account portal.Account, tel telemetry.API) (Session, error) {
	var session Session
	err := o.login.Do(ctx, func(attempt int) error {
		s, err := o.newSession(account)
		if err != nil {
			return retry.Stop(fmt.Errorf("create session: %w", err))
		}

		err = s.Login(ctx)
		if err != nil {
			tel.ReportWarning(report_orchestrator_login, fmt.Errorf("attempt %d: %w", attempt, err))
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		tel.ReportBroken(report_orchestrator_login, err)
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return session, nil
}
