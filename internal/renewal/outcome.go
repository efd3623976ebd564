package renewal

import (
	"context"
	"time"

	"euserv-renewer/internal/portal"
)

// RenewalResult is the result of one renewal attempt.
type RenewalResult struct {
	OrderID string
	Success bool
	Message string
}

// AccountOutcome is everything one account run produced. It is not modified
// after Orchestrator.Run returns it.
type AccountOutcome struct {
	Account string
	Success bool
	// Orders is the dashboard listing in page order, order ids are unique.
	Orders   []portal.Order
	Renewals []RenewalResult
	Error    string
}

// Order looks up a listed order by id.
func (o AccountOutcome) Order(id string) (portal.Order, bool) {
	for _, order := range o.Orders {
		if order.ID == id {
			return order, true
		}
	}
	return portal.Order{}, false
}

// Report is the summary of one batch.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []AccountOutcome
}

// Succeeded counts the accounts whose run succeeded.
func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// Sink receives the report once at the end of every batch.
type Sink interface {
	Notify(ctx context.Context, report Report) error
}
