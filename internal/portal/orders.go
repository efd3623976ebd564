package portal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"euserv-renewer/internal/components/chrono"
	"euserv-renewer/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	orderRowSelector = "#kc2_order_customer_orders_tab_content_1 .kc2_order_table.kc2_content_table tr, " +
		"#kc2_order_customer_orders_tab_content_2 .kc2_order_table.kc2_content_table tr"
	orderIdSelector     = ".td-z1-sp1-kc"
	orderActionSelector = ".td-z1-sp2-kc .kc2_order_action_container"

	markerNotYetRenewable = "Contract extension possible from"
)

var isoDate = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)

// ListOrders reads the order dashboard.
func (s *Session) ListOrders(ctx context.Context) ([]Order, error) {
	err := s.requireAuthenticated()
	if err != nil {
		return nil, err
	}
	s.state = StateIdle

	body, err := s.client.get(ctx, indexPath, s.sessionQuery())
	if err != nil {
		s.tel.ReportBroken(report_session_orders, fmt.Errorf("get dashboard: %w", err))
		return nil, fmt.Errorf("get dashboard: %w", err)
	}
	doc, err := htmlutil.Parse(body)
	if err != nil {
		s.tel.ReportBroken(report_session_orders, fmt.Errorf("parse dashboard: %w", err))
		return nil, fmt.Errorf("parse dashboard: %w", err)
	}

	orders := ParseOrders(doc, s.time.Now())
	s.tel.ReportCount(report_session_orders, int64(len(orders)))
	return orders, nil
}

// ParseOrders extracts the orders from the dashboard in page order. An order
// listed twice keeps its first position and its last row's data. Eligibility
// is decided against the calendar date of today.
func ParseOrders(doc *goquery.Document, today time.Time) []Order {
	var orders []Order
	index := map[string]int{}

	doc.Find(orderRowSelector).Each(func(_ int, row *goquery.Selection) {
		idCell := row.Find(orderIdSelector)
		if idCell.Length() != 1 {
			return
		}
		action := row.Find(orderActionSelector)
		if action.Length() == 0 {
			return
		}

		order := parseOrder(
			htmlutil.CleanText(idCell),
			htmlutil.CleanText(action.First()),
			today,
		)
		if order.ID == "" {
			return
		}

		if i, ok := index[order.ID]; ok {
			orders[i] = order
			return
		}
		index[order.ID] = len(orders)
		orders = append(orders, order)
	})

	return orders
}

func parseOrder(id, actionText string, today time.Time) Order {
	order := Order{ID: id, Eligible: true}

	marker := strings.Index(actionText, markerNotYetRenewable)
	if marker < 0 {
		return order
	}

	m := isoDate.FindStringSubmatch(actionText[marker:])
	if m == nil {
		return order
	}
	date, err := time.Parse(time.DateOnly, m[1])
	if err != nil {
		return order
	}

	order.EligibleFrom = date
	order.Eligible = chrono.DateOnOrAfter(today, date)
	return order
}
