// Package notify delivers the end of batch report to the configured channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"euserv-renewer/internal/components/assert"
	"euserv-renewer/internal/components/telemetry"
	"euserv-renewer/internal/renewal"
)

const (
	report_dispatcher_notify = "dispatcher.notify"
)

// Message is one rendered report. Channels pick the representation they
// support.
type Message struct {
	Title  string
	HTML   string
	Text   string
	Report renewal.Report
}

type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher renders a report once and hands it to every channel. A failing
// channel does not keep the others from being tried.
type Dispatcher struct {
	channels []Channel
	location *time.Location
	tel      telemetry.API
}

func NewDispatcher(location *time.Location, tel telemetry.API, channels ...Channel) *Dispatcher {
	assert.NotNil(tel)

	return &Dispatcher{
		channels: channels,
		location: location,
		tel:      telemetry.NewScopedAPI("notify", tel),
	}
}

// Notify implements renewal.Sink. The returned error joins every channel
// failure.
func (d *Dispatcher) Notify(ctx context.Context, report renewal.Report) error {
	if len(d.channels) == 0 {
		d.tel.ReportWarning(report_dispatcher_notify, "no notification channel configured")
		return nil
	}

	body := FormatHTML(report, d.location)
	msg := Message{
		Title:  reportTitle,
		HTML:   body,
		Text:   PlainText(body),
		Report: report,
	}

	var errs []error
	for _, channel := range d.channels {
		err := channel.Send(ctx, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", channel.Name(), err))
			continue
		}
		d.tel.ReportInfo("report sent", channel.Name())
	}
	return errors.Join(errs...)
}
