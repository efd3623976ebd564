package notify

import (
	"context"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Console renders the report as a table, one row per order.
type Console struct {
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Name() string {
	return "console"
}

func status(success bool) string {
	if success {
		return "ok"
	}
	return "failed"
}

func (c *Console) Send(ctx context.Context, msg Message) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(c.out)
	t.SetTitle(msg.Title)
	t.AppendHeader(table.Row{"Account", "Status", "Order", "Eligible", "Renewable from", "Renewal"})

	for _, outcome := range msg.Report.Outcomes {
		if !outcome.Success || len(outcome.Orders) == 0 {
			t.AppendRow(table.Row{outcome.Account, status(outcome.Success), "", "", "", outcome.Error})
			continue
		}

		renewals := map[string]string{}
		for _, r := range outcome.Renewals {
			renewals[r.OrderID] = status(r.Success)
		}
		for _, order := range outcome.Orders {
			t.AppendRow(table.Row{
				outcome.Account,
				status(outcome.Success),
				order.ID,
				order.Eligible,
				order.EligibleDate(),
				renewals[order.ID],
			})
		}
		if outcome.Error != "" {
			t.AppendRow(table.Row{outcome.Account, "warning", "", "", "", strings.TrimSpace(outcome.Error)})
		}
	}

	t.Render()
	return nil
}
