package mailpin

import (
	"bytes"
	"encoding/base64"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	labelledPin   = regexp.MustCompile(`PIN:\s*(\d{6})(?:\D|$)`)
	standalonePin = regexp.MustCompile(`(?:^|\D)(\d{6})(?:\D|$)`)
	stripTags     = bluemonday.StrictPolicy()
)

// ExtractPin finds the 6 digit PIN in a message body. A "PIN:" label wins,
// otherwise the first run of exactly six digits is used.
func ExtractPin(text string) (string, bool) {
	if m := labelledPin.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := standalonePin.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}

// MessageText returns the readable text of a raw RFC 5322 message. Multipart
// messages prefer their text/plain part, HTML parts are reduced to text. If the
// message cannot be parsed the raw bytes are returned as is.
func MessageText(raw []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	text, err := partText(
		msg.Header.Get("Content-Type"),
		msg.Header.Get("Content-Transfer-Encoding"),
		msg.Body,
	)
	if err != nil {
		return string(raw)
	}
	return text
}

func partText(contentType, encoding string, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return multipartText(params["boundary"], body)
	}

	decoded, err := io.ReadAll(decodeTransfer(encoding, body))
	if err != nil {
		return "", err
	}
	if mediaType == "text/html" {
		return htmlText(string(decoded)), nil
	}
	return string(decoded), nil
}

func multipartText(boundary string, body io.Reader) (string, error) {
	reader := multipart.NewReader(body, boundary)

	var plain, rich []string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		contentType := part.Header.Get("Content-Type")
		// NextPart already removes quoted-printable encoding.
		text, err := partText(contentType, part.Header.Get("Content-Transfer-Encoding"), part)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(contentType, "text/html") {
			rich = append(rich, text)
		} else {
			plain = append(plain, text)
		}
	}

	if len(plain) > 0 {
		return strings.Join(plain, "\n"), nil
	}
	return strings.Join(rich, "\n"), nil
}

func decodeTransfer(encoding string, body io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	default:
		return body
	}
}

func htmlText(s string) string {
	return html.UnescapeString(stripTags.Sanitize(s))
}
