package htmlutil

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Parse parses an HTML body into a goquery document.
func Parse(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

// CleanText returns the printable text of a selection with runs of whitespace
// collapsed to a single space.
func CleanText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
	}
	text := strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, buffer.String())
	text = strings.TrimSpace(text)
	return innerWhitespace.ReplaceAllString(text, " ")
}

// InputValue returns the value attribute of the first input named name and
// whether such an input exists.
func InputValue(sel *goquery.Selection, name string) (string, bool) {
	input := sel.Find("input").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("name", "") == name
	}).First()
	if input.Length() == 0 {
		return "", false
	}
	return input.AttrOr("value", ""), true
}

var skippedInputTypes = map[string]bool{
	"submit": true,
	"button": true,
	"image":  true,
	"reset":  true,
	"file":   true,
}

// FormValues collects the values a browser would submit for the form fields
// inside sel: text-like inputs, checked checkboxes and radios, the selected
// option of every select (or its first option) and textareas. Fields that
// repeat, like `c_phone[]`, keep their document order.
func FormValues(sel *goquery.Selection) url.Values {
	values := url.Values{}

	sel.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
		name := field.AttrOr("name", "")
		if name == "" {
			return
		}
		_, disabled := field.Attr("disabled")
		if disabled {
			return
		}

		switch goquery.NodeName(field) {
		case "input":
			kind := strings.ToLower(field.AttrOr("type", "text"))
			if skippedInputTypes[kind] {
				return
			}
			if kind == "checkbox" || kind == "radio" {
				_, checked := field.Attr("checked")
				if !checked {
					return
				}
				values.Add(name, field.AttrOr("value", "on"))
				return
			}
			values.Add(name, strings.TrimSpace(field.AttrOr("value", "")))
		case "select":
			option := field.Find("option[selected]").First()
			if option.Length() == 0 {
				option = field.Find("option").First()
			}
			if option.Length() == 0 {
				values.Add(name, "")
				return
			}
			value, ok := option.Attr("value")
			if !ok {
				value = strings.TrimSpace(option.Text())
			}
			values.Add(name, value)
		case "textarea":
			values.Add(name, field.Text())
		}
	})

	return values
}
