package portal

import (
	"context"
	"errors"
	"time"

	"euserv-renewer/internal/components/retry"
	"euserv-renewer/internal/components/telemetry"
	"euserv-renewer/internal/mailpin"
)

var (
	ErrSessionAcquisition = errors.New("portal: no session id on landing page")
	ErrBadCredentials     = errors.New("portal: bad credentials")
	ErrLocked             = errors.New("portal: login temporarily locked")
	ErrCaptchaExhausted   = errors.New("portal: captcha attempts exhausted")
	ErrPinNotFound        = errors.New("portal: pin not found")
	ErrLoginUnconfirmed   = errors.New("portal: login not confirmed")
	ErrNotAuthenticated   = errors.New("portal: session not authenticated")
	ErrFieldMissing       = errors.New("portal: expected field missing")
	ErrTokenRejected      = errors.New("portal: renewal token rejected")
	ErrUnexpectedStatus   = errors.New("portal: unexpected status")
	ErrRefreshUnconfirmed = errors.New("portal: customer data change not confirmed")

	errSessionUsed = errors.New("portal: session already used, create a new one")
)

// Account is one configured portal login and the mailbox its PINs go to.
type Account struct {
	Email    string
	Password string
	Mailbox  mailpin.Mailbox
}

// Order is one row of the order dashboard.
type Order struct {
	ID       string
	Eligible bool
	// EligibleFrom is the date the portal allows the next extension, zero
	// when the page states none.
	EligibleFrom time.Time
}

// EligibleDate formats EligibleFrom as the portal shows it, or "" if unset.
func (o Order) EligibleDate() string {
	if o.EligibleFrom.IsZero() {
		return ""
	}
	return o.EligibleFrom.Format(time.DateOnly)
}

// CaptchaSolver turns a captcha image into the answer to submit.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// PinSource makes one attempt at reading the latest mailed PIN.
type PinSource interface {
	Fetch(ctx context.Context, mailbox mailpin.Mailbox) (string, error)
}

type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateCaptchaChallenge
	StatePinChallenge
	StateAuthenticated
	StateIdle
	StateRenewing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateCaptchaChallenge:
		return "captcha_challenge"
	case StatePinChallenge:
		return "pin_challenge"
	case StateAuthenticated:
		return "authenticated"
	case StateIdle:
		return "idle"
	case StateRenewing:
		return "renewing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options tunes a Session. Zero durations skip the corresponding wait.
type Options struct {
	BaseURL string
	// RequestsPerSecond paces every request of one session, 0 disables pacing.
	RequestsPerSecond float64

	Captcha retry.Policy
	PinPoll retry.Policy
	// PinSettle is waited before the first mailbox poll of the login PIN.
	PinSettle time.Duration
	// StepSettle is waited after each of the later renewal steps.
	StepSettle time.Duration

	// Dump, when set, receives every exchange with the portal.
	Dump *telemetry.HTTPDump
}

func DefaultOptions() Options {
	return Options{
		BaseURL:           "https://support.euserv.com",
		RequestsPerSecond: 2,
		Captcha:           retry.Policy{MaxAttempts: 5, Delay: 2 * time.Second},
		PinPoll:           retry.Policy{MaxAttempts: 3, Delay: 5 * time.Second},
		PinSettle:         3 * time.Second,
		StepSettle:        3 * time.Second,
	}
}
