package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"euserv-renewer/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// RefreshDue reports whether t falls on one of the days the portal wants the
// customer data confirmed (the 2nd and the 22nd).
func RefreshDue(t time.Time) bool {
	day := t.Day()
	return day == 2 || day == 22
}

// RefreshCustomerData reads the customer data form and submits it back
// unchanged, which the portal requires to keep the account active.
func (s *Session) RefreshCustomerData(ctx context.Context) error {
	err := s.requireAuthenticated()
	if err != nil {
		return err
	}
	s.state = StateIdle

	query := s.sessionQuery()
	query.Set("action", "show_customerdata")

	body, err := s.client.get(ctx, indexPath, query)
	if err != nil {
		s.tel.ReportBroken(report_session_refresh, fmt.Errorf("get customer data: %w", err))
		return fmt.Errorf("get customer data: %w", err)
	}
	doc, err := htmlutil.Parse(body)
	if err != nil {
		s.tel.ReportBroken(report_session_refresh, fmt.Errorf("parse customer data: %w", err))
		return fmt.Errorf("parse customer data: %w", err)
	}

	form := doc.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
		_, ok := htmlutil.InputValue(f, "c_id")
		return ok
	}).First()
	if form.Length() == 0 {
		err := fmt.Errorf("%w: customer data form", ErrFieldMissing)
		s.tel.ReportBroken(report_session_refresh, err)
		return err
	}

	values := htmlutil.FormValues(form)
	s.customerId = values.Get("c_id")
	values.Set("sess_id", s.sessionId)
	values.Set("subaction", "kc2_customer_data_update")
	values.Set("c_id", s.customerId)

	body, err = s.client.post(ctx, indexPath, query, values)
	if err != nil {
		s.tel.ReportBroken(report_session_refresh, fmt.Errorf("submit customer data: %w", err))
		return fmt.Errorf("submit customer data: %w", err)
	}
	if !strings.Contains(string(body), markerCustomerChanged) {
		s.tel.ReportWarning(report_session_refresh, ErrRefreshUnconfirmed)
		return ErrRefreshUnconfirmed
	}

	s.tel.ReportInfo("customer data refreshed")
	return nil
}
