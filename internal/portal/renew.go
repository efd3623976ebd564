package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const extendContractPrefix = "kc2_customer_contract_details_extend_contract_"

type tokenResponse struct {
	Status string `json:"rs"`
	Token  struct {
		Value string `json:"value"`
	} `json:"token"`
	Error any `json:"error"`
}

// Renew extends the contract of one order: select the order, open the
// security PIN dialog, trade the mailed PIN for a token and submit the
// extension with it. A failure only concerns this order, the session stays
// usable afterwards.
func (s *Session) Renew(ctx context.Context, orderId string) (err error) {
	err = s.requireAuthenticated()
	if err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "portal.renew")
	span.SetAttributes(
		attribute.String("account", s.account.Email),
		attribute.String("order", orderId),
	)
	s.state = StateRenewing
	defer func() {
		s.state = StateIdle
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.tel.ReportBroken(report_session_renew, err, orderId)
		}
		span.End()
	}()

	_, err = s.client.post(ctx, indexPath, nil, url.Values{
		"sess_id":                 {s.sessionId},
		"Submit":                  {"Extend contract"},
		"ord_no":                  {orderId},
		"subaction":               {"choose_order"},
		"show_contract_extension": {"1"},
		"choose_order_subaction":  {"show_contract_details"},
	})
	if err != nil {
		return fmt.Errorf("choose order %s: %w", orderId, err)
	}

	_, err = s.client.post(ctx, indexPath, nil, url.Values{
		"sess_id":   {s.sessionId},
		"subaction": {"show_kc2_security_password_dialog"},
		"prefix":    {extendContractPrefix},
		"type":      {"1"},
	})
	if err != nil {
		return fmt.Errorf("open security dialog: %w", err)
	}
	err = s.time.Sleep(ctx, s.opts.StepSettle)
	if err != nil {
		return err
	}

	token, err := s.exchangePin(ctx, orderId)
	if err != nil {
		return err
	}
	err = s.time.Sleep(ctx, s.opts.StepSettle)
	if err != nil {
		return err
	}

	_, err = s.client.post(ctx, indexPath, nil, url.Values{
		"sess_id":   {s.sessionId},
		"ord_id":    {orderId},
		"subaction": {"kc2_customer_contract_details_extend_contract_term"},
		"auth":      {token},
	})
	if err != nil {
		return fmt.Errorf("submit extension: %w", err)
	}
	err = s.time.Sleep(ctx, s.opts.StepSettle)
	if err != nil {
		return err
	}

	s.tel.ReportInfo("renewed order", orderId)
	return nil
}

func (s *Session) exchangePin(ctx context.Context, orderId string) (string, error) {
	pin, err := s.fetchPin(ctx)
	if err != nil {
		return "", err
	}

	body, err := s.client.post(ctx, indexPath, nil, url.Values{
		"sess_id":   {s.sessionId},
		"auth":      {pin},
		"subaction": {"kc2_security_password_get_token"},
		"prefix":    {extendContractPrefix},
		"type":      {"1"},
		"ident":     {extendContractPrefix + orderId},
	})
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}

	var res tokenResponse
	err = json.Unmarshal(body, &res)
	if err != nil {
		return "", fmt.Errorf("%w: decode: %w", ErrTokenRejected, err)
	}
	if res.Status != "success" {
		return "", fmt.Errorf("%w: status %q, error %v", ErrTokenRejected, res.Status, res.Error)
	}
	if res.Token.Value == "" {
		return "", fmt.Errorf("%w: empty token", ErrTokenRejected)
	}

	s.tel.ReportDebug("got renewal token", truncate(res.Token.Value))
	return res.Token.Value, nil
}
