package notify

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText strips markup from an HTML message and unescapes entities.
// Line breaks in the message are kept.
func PlainText(message string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(message))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed markup; either way the text so far is the result.
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

// firstLine returns the first non-blank line of s, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
