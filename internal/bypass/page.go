package bypass

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// IsHTML reports whether body looks like an HTML document rather than an
// API payload.
func IsHTML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body))
	if !bytes.HasPrefix(head, []byte("<")) {
		return false
	}
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) ||
		bytes.HasPrefix(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<head")) ||
		bytes.Contains(head, []byte("<title"))
}

// PageTitle returns the collapsed <title> text of an HTML body, or "".
func PageTitle(body []byte) string {
	if !IsHTML(body) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}
