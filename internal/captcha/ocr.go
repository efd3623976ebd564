package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"euserv-renewer/internal/components/assert"
	"euserv-renewer/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
)

// HTTPClassifier calls an OCR service over HTTP. The service receives
// `{"image": "<base64 png>"}` and answers `{"result": "<text>"}`, which is
// the shape of the common ddddocr wrappers.
type HTTPClassifier struct {
	http     *resty.Client
	endpoint string
}

type ocrRequest struct {
	Image string `json:"image"`
}

type ocrResponse struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

func NewHTTPClassifier(endpoint string, tel telemetry.API) *HTTPClassifier {
	assert.NotEmptyStr(endpoint)
	assert.NotNil(tel)

	httpClient := resty.New()
	httpClient.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(httpClient, telemetry.NewScopedAPI("ocr", tel))

	return &HTTPClassifier{http: httpClient, endpoint: endpoint}
}

func (c *HTTPClassifier) Classify(ctx context.Context, image []byte) (string, error) {
	var out ocrResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(ocrRequest{Image: base64.StdEncoding.EncodeToString(image)}).
		SetResult(&out).
		SetError(&out).
		ForceContentType("application/json").
		Post(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("ocr service: %s %s", res.Status(), out.Error)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ocr service: %s", out.Error)
	}
	return out.Result, nil
}
