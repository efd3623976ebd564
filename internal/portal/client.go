package portal

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"euserv-renewer/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	indexPath   = "/index.iphp"
	logoPath    = "/pic/logo_small.png"
	captchaPath = "/securimage_show.php"
)

// client is the HTTP side of one session. The cookie jar belongs to the
// session, a new session always starts with an empty jar.
type client struct {
	baseUrl *url.URL
	http    *resty.Client
}

func newClient(opts Options, dumpPrefix string, tel telemetry.API) (*client, error) {
	parsedBaseUrl, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseURL)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetHeader("origin", parsedBaseUrl.Scheme+"://"+parsedBaseUrl.Host)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	httpClient.SetTimeout(time.Second * 30)

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	rateLimiter := rate.NewLimiter(limit, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)
	if opts.Dump != nil {
		opts.Dump.Attach(httpClient, dumpPrefix)
	}

	return &client{
		baseUrl: parsedBaseUrl,
		http:    httpClient,
	}, nil
}

func checkStatus(res *resty.Response) error {
	if res.IsError() {
		return fmt.Errorf("%w: %s %s: %d", ErrUnexpectedStatus, res.Request.Method, res.Request.URL, res.StatusCode())
	}
	return nil
}

func (c *client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		Get(path)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(res); err != nil {
		return nil, err
	}
	return res.Body(), nil
}

func (c *client) post(ctx context.Context, path string, query, form url.Values) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("referer", c.baseUrl.JoinPath(indexPath).String()).
		SetQueryParamsFromValues(query).
		SetFormDataFromValues(form).
		Post(path)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(res); err != nil {
		return nil, err
	}
	return res.Body(), nil
}
