package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"euserv-renewer/internal/components/retry"
	"euserv-renewer/pkg/htmlutil"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var errCaptchaRejected = errors.New("captcha answer rejected")

// Login runs the whole login state machine once. On error the session is
// Failed and must be discarded.
func (s *Session) Login(ctx context.Context) (err error) {
	if s.state != StateAnonymous {
		return errSessionUsed
	}

	ctx, span := tracer.Start(ctx, "portal.login")
	span.SetAttributes(attribute.String("account", s.account.Email))
	defer func() {
		if err != nil {
			s.state = StateFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.tel.ReportWarning(report_session_login, err)
		}
		span.End()
	}()

	s.state = StateAuthenticating
	err = s.bootstrap(ctx)
	if err != nil {
		return err
	}

	body, err := s.client.post(ctx, indexPath, nil, url.Values{
		"email":                  {s.account.Email},
		"password":               {s.account.Password},
		"form_selected_language": {"en"},
		"Submit":                 {"Login"},
		"subaction":              {"login"},
		"sess_id":                {s.sessionId},
	})
	if err != nil {
		return fmt.Errorf("submit credentials: %w", err)
	}

	kind := ClassifyPage(string(body))
	if err := rejection(kind); err != nil {
		return err
	}

	if kind == PageCaptchaRequired {
		s.state = StateCaptchaChallenge
		s.tel.ReportDebug("captcha required")
		body, err = s.answerCaptcha(ctx)
		if err != nil {
			return err
		}
		kind = ClassifyPage(string(body))
		if err := rejection(kind); err != nil {
			return err
		}
	}

	if kind == PagePinRequired {
		s.state = StatePinChallenge
		s.tel.ReportDebug("pin required")
		body, err = s.answerPin(ctx, body)
		if err != nil {
			return err
		}
		kind = ClassifyPage(string(body))
	}

	if kind != PageSuccess {
		return fmt.Errorf("%w: final page classified as %s", ErrLoginUnconfirmed, kind)
	}

	s.state = StateAuthenticated
	s.tel.ReportInfo("logged in")
	return nil
}

func (s *Session) bootstrap(ctx context.Context) error {
	body, err := s.client.get(ctx, indexPath, nil)
	if err != nil {
		return fmt.Errorf("get landing page: %w", err)
	}
	sessionId, ok := findSessionId(string(body))
	if !ok {
		return ErrSessionAcquisition
	}
	s.sessionId = sessionId
	s.tel.ReportDebug("acquired session id", truncate(sessionId))

	// the portal expects the logo to be loaded like a browser would
	_, err = s.client.get(ctx, logoPath, nil)
	if err != nil {
		s.tel.ReportDebug("fetch logo", err)
	}
	return nil
}

// answerCaptcha resubmits fresh answers until the portal stops asking. It
// returns the first page without a captcha marker.
func (s *Session) answerCaptcha(ctx context.Context) ([]byte, error) {
	var page []byte
	exhausted := false

	err := s.opts.Captcha.Do(ctx, func(attempt int) error {
		exhausted = false

		image, err := s.client.get(ctx, captchaPath, nil)
		if err != nil {
			return retry.Stop(fmt.Errorf("get captcha image: %w", err))
		}

		answer, err := s.solver.Solve(ctx, image)
		if err != nil {
			s.tel.ReportWarning(report_session_login, fmt.Errorf("solve captcha (attempt %d): %w", attempt, err))
			exhausted = true
			return err
		}

		body, err := s.client.post(ctx, indexPath, nil, url.Values{
			"subaction":    {"login"},
			"sess_id":      {s.sessionId},
			"captcha_code": {answer},
		})
		if err != nil {
			return retry.Stop(fmt.Errorf("submit captcha: %w", err))
		}

		if ClassifyPage(string(body)) == PageCaptchaRequired {
			s.tel.ReportWarning(report_session_login, fmt.Errorf("%w (attempt %d)", errCaptchaRejected, attempt), answer)
			exhausted = true
			return errCaptchaRejected
		}

		page = body
		return nil
	})
	if err != nil {
		if exhausted && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrCaptchaExhausted, s.opts.Captcha.MaxAttempts, err)
		}
		return nil, err
	}
	return page, nil
}

func (s *Session) answerPin(ctx context.Context, challenge []byte) ([]byte, error) {
	doc, err := htmlutil.Parse(challenge)
	if err != nil {
		return nil, fmt.Errorf("parse pin challenge: %w", err)
	}
	customerId, ok := htmlutil.InputValue(doc.Selection, "c_id")
	if !ok {
		return nil, fmt.Errorf("%w: c_id on pin challenge", ErrFieldMissing)
	}
	s.customerId = customerId

	err = s.time.Sleep(ctx, s.opts.PinSettle)
	if err != nil {
		return nil, err
	}

	pin, err := s.fetchPin(ctx)
	if err != nil {
		return nil, err
	}

	body, err := s.client.post(ctx, indexPath, nil, url.Values{
		"pin":       {pin},
		"sess_id":   {s.sessionId},
		"Submit":    {"Confirm"},
		"subaction": {"login"},
		"c_id":      {s.customerId},
	})
	if err != nil {
		return nil, fmt.Errorf("submit pin: %w", err)
	}
	return body, nil
}
