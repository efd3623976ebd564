// Package portal drives one customer account on the hosting portal: login
// with captcha and mailed PIN, the periodic customer data refresh, the order
// dashboard and the PIN guarded contract extension.
package portal

import (
	"context"
	"fmt"
	"net/url"

	"euserv-renewer/internal/components/assert"
	"euserv-renewer/internal/components/chrono"
	"euserv-renewer/internal/components/telemetry"
)

const (
	report_session_login   = "session.login"
	report_session_refresh = "session.refresh-customer-data"
	report_session_orders  = "session.list-orders"
	report_session_renew   = "session.renew"
)

var tracer = telemetry.Tracer("euserv-renewer/internal/portal")

// Session is a single login against the portal. It is not safe for
// concurrent use and cannot log in twice: a failed login leaves it in
// StateFailed and the caller starts over with a new Session.
type Session struct {
	account Account
	opts    Options
	client  *client
	solver  CaptchaSolver
	pins    PinSource
	time    chrono.TimeAPI
	tel     telemetry.API

	state State
	// sessionId is the portal's sess_id, set when the landing page is read.
	sessionId string
	// customerId is the c_id hidden field, set by the PIN challenge or the
	// customer data form.
	customerId string
}

func NewSession(
	account Account,
	opts Options,
	solver CaptchaSolver,
	pins PinSource,
	time chrono.TimeAPI,
	tel telemetry.API,
) (*Session, error) {
	assert.NotEmptyStr(account.Email)
	assert.NotEmptyStr(opts.BaseURL)
	assert.NotNil(solver)
	assert.NotNil(pins)
	assert.NotNil(time)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI(fmt.Sprintf("portal[%s]", account.Email), tel)

	c, err := newClient(opts, account.Email, tel)
	if err != nil {
		return nil, fmt.Errorf("portal: create client: %w", err)
	}

	return &Session{
		account: account,
		opts:    opts,
		client:  c,
		solver:  solver,
		pins:    pins,
		time:    time,
		tel:     tel,
		state:   StateAnonymous,
	}, nil
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) CustomerID() string {
	return s.customerId
}

func (s *Session) requireAuthenticated() error {
	if s.state != StateAuthenticated && s.state != StateIdle {
		return fmt.Errorf("%w: state %s", ErrNotAuthenticated, s.state)
	}
	return nil
}

func (s *Session) sessionQuery() url.Values {
	return url.Values{"sess_id": {s.sessionId}}
}

// fetchPin polls the mailbox under the PinPoll policy.
func (s *Session) fetchPin(ctx context.Context) (string, error) {
	var pin string
	err := s.opts.PinPoll.Do(ctx, func(attempt int) error {
		var err error
		pin, err = s.pins.Fetch(ctx, s.account.Mailbox)
		if err != nil {
			s.tel.ReportDebug("pin not available yet", attempt, err)
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrPinNotFound, err)
	}
	return pin, nil
}

func truncate(secret string) string {
	if len(secret) <= 6 {
		return "***"
	}
	return secret[:6] + "..."
}
