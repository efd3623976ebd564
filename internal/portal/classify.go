package portal

import (
	"regexp"
	"strings"
)

// PageKind is what a login response asks of the client next.
type PageKind int

const (
	PageUnknown PageKind = iota
	PageBadCredentials
	PageLocked
	PageCaptchaRequired
	PagePinRequired
	PageSuccess
)

func (k PageKind) String() string {
	switch k {
	case PageBadCredentials:
		return "bad_credentials"
	case PageLocked:
		return "locked"
	case PageCaptchaRequired:
		return "captcha_required"
	case PagePinRequired:
		return "pin_required"
	case PageSuccess:
		return "success"
	default:
		return "unknown"
	}
}

const (
	markerBadCredentials  = "Please check email address/customer ID and password"
	markerLocked          = "kc2_login_iplock_cdown"
	markerCaptcha         = "captcha"
	markerPin             = "PIN that you receive via email"
	markerHello           = "Hello"
	markerCustomerData    = "Confirm or change your customer data here"
	markerCustomerChanged = "customer data has been changed"
)

// ClassifyPage maps a login flow response onto the single thing it asks for.
// Earlier kinds win when a page carries several markers.
func ClassifyPage(body string) PageKind {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(body, markerBadCredentials):
		return PageBadCredentials
	case strings.Contains(body, markerLocked):
		return PageLocked
	case strings.Contains(lower, markerCaptcha):
		return PageCaptchaRequired
	case strings.Contains(body, markerPin):
		return PagePinRequired
	case strings.Contains(body, markerHello),
		strings.Contains(body, markerCustomerData),
		strings.Contains(lower, "logout") && strings.Contains(lower, "customer"):
		return PageSuccess
	default:
		return PageUnknown
	}
}

// rejection is the error for the pages that end a login attempt outright.
func rejection(kind PageKind) error {
	switch kind {
	case PageBadCredentials:
		return ErrBadCredentials
	case PageLocked:
		return ErrLocked
	default:
		return nil
	}
}

var sessionIdPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sess_id["']?\s*[:=]\s*["']?([a-zA-Z0-9]{30,100})`),
	regexp.MustCompile(`sess_id=([a-zA-Z0-9]{30,100})`),
}

func findSessionId(body string) (string, bool) {
	for _, pattern := range sessionIdPatterns {
		if m := pattern.FindStringSubmatch(body); m != nil {
			return m[1], true
		}
	}
	return "", false
}
