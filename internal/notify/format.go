package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"euserv-renewer/internal/renewal"

	"github.com/microcosm-cc/bluemonday"
)

const reportTitle = "EUserv renewal report"

var stripTags = bluemonday.StrictPolicy()

// FormatHTML renders the report with the small HTML subset chat bots accept
// (bold only). Everything taken from the report is escaped.
func FormatHTML(report renewal.Report, location *time.Location) string {
	if location == nil {
		location = time.Local
	}

	lines := []string{
		fmt.Sprintf("<b>%s</b>", reportTitle),
		fmt.Sprintf("Time: %s", report.FinishedAt.In(location).Format(time.DateTime)),
		fmt.Sprintf("Accounts: %d (%d succeeded)", len(report.Outcomes), report.Succeeded()),
	}

	for _, outcome := range report.Outcomes {
		lines = append(lines, "", fmt.Sprintf("<b>Account: %s</b>", html.EscapeString(outcome.Account)))

		if !outcome.Success {
			errMsg := outcome.Error
			if errMsg == "" {
				errMsg = "unknown error"
			}
			lines = append(lines, "  failed: "+html.EscapeString(errMsg))
			continue
		}
		if outcome.Error != "" {
			lines = append(lines, "  warning: "+html.EscapeString(outcome.Error))
		}

		if len(outcome.Renewals) > 0 {
			for _, r := range outcome.Renewals {
				lines = append(lines, "  "+html.EscapeString(r.Message))
			}
			continue
		}

		lines = append(lines, fmt.Sprintf("  no renewal needed (%d orders)", len(outcome.Orders)))
		for _, order := range outcome.Orders {
			if order.EligibleDate() == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf(
				"    order %s: renewable from %s",
				html.EscapeString(order.ID),
				order.EligibleDate(),
			))
		}
	}

	return strings.Join(lines, "\n")
}

// PlainText strips the markup FormatHTML adds.
func PlainText(body string) string {
	return html.UnescapeString(stripTags.Sanitize(body))
}
