package source

import (
	"strings"

	"golang.org/x/net/html"
)

// htmlToText returns every non-empty trimmed text node of doc joined by newlines.
// Script and style contents are dropped.
func htmlToText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var (
		lines []string
		skip  int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(lines, "\n")
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawTextTag(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawTextTag(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.TrimSpace(string(z.Text())); text != "" {
				lines = append(lines, text)
			}
		}
	}
}

func isRawTextTag(name string) bool {
	return name == "script" || name == "style"
}
