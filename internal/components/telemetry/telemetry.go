package telemetry

import (
	"fmt"
)

// API is the single reporting surface used by every component of the renewer.
// Keeping it behind an interface lets tests assert on what was reported.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that failed in a way someone should look at.
	//
	// The id names the component and method that broke, not the specific line,
	// for example `session.login` or `retriever.fetch`. Ids are lowercase, use
	// underscores inside a component name and dashes inside a method name.
	// Packages declare their ids as `report_...` constants.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something unexpected that the run survived, like a
	// rejected captcha answer or a refresh the portal did not confirm.
	ReportWarning(id string, params ...any)

	// ReportDebug reports progress information that is hidden unless verbose
	// logging is on.
	ReportDebug(msg string, params ...any)

	// ReportInfo reports a milestone an operator wants to see on a normal run
	// (login succeeded, order renewed, notification sent).
	ReportInfo(msg string, params ...any)

	// ReportCount reports a point-in-time count, such as the number of orders
	// found for an account.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id and message with a namespace, the way a sub-logger
// would. Each account gets its own scope so interleaved worker output stays
// attributable.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportInfo(msg string, params ...any) {
	s.inner.ReportInfo(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}

// Noop discards everything. Used where a caller has nothing to report to.
type Noop struct{}

func (Noop) ReportBroken(string, ...any)  {}
func (Noop) ReportWarning(string, ...any) {}
func (Noop) ReportDebug(string, ...any)   {}
func (Noop) ReportInfo(string, ...any)    {}
func (Noop) ReportCount(string, int64)    {}
