package telemetry

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// redactedFields never reach a dump file in clear text.
var redactedFields = map[string]bool{
	"password":     true,
	"pin":          true,
	"auth":         true,
	"captcha_code": true,
}

// HTTPDump writes every exchange of the clients it is attached to into its
// own file in a directory, for looking at what the portal actually served.
type HTTPDump struct {
	directory string
	counter   *uint64
}

// NewHTTPDump creates dir if needed. Existing files are kept.
func NewHTTPDump(dir string) (HTTPDump, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return HTTPDump{}, err
	}
	var counter uint64
	return HTTPDump{directory: dir, counter: &counter}, nil
}

// Attach registers the dump on client, files are prefixed with prefix.
func (d HTTPDump) Attach(client *resty.Client, prefix string) {
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := atomic.AddUint64(d.counter, 1)
		name := fmt.Sprintf("%s-%04d.txt", sanitizeFilename(prefix), id)
		err := os.WriteFile(filepath.Join(d.directory, name), []byte(formatExchange(res)), 0o600)
		if err != nil {
			slog.Warn("failed to write http dump", "file", name, "err", err)
		}
		return nil
	})
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			if strings.EqualFold(k, "cookie") || strings.EqualFold(k, "set-cookie") {
				v = "[redacted]"
			}
			fmt.Fprintf(&out, "%s: %s\n", k, v)
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func redactValues(values url.Values) string {
	out := url.Values{}
	for k, vals := range values {
		for _, v := range vals {
			if redactedFields[k] {
				v = "[redacted]"
			}
			out.Add(k, v)
		}
	}
	return out.Encode()
}

const exchangeTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s

%s

%s`

func formatExchange(res *resty.Response) string {
	var requestHeaders string
	if res.Request.RawRequest != nil {
		requestHeaders = formatHeaders(res.Request.RawRequest.Header)
	}

	return fmt.Sprintf(
		exchangeTemplate,
		res.Request.Method, res.Request.URL,
		requestHeaders,
		redactValues(res.Request.FormData),
		res.Status(),
		formatHeaders(res.Header()),
		res.String(),
	)
}
