package sources

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	submittedByRe = regexp.MustCompile(`submitted by\s+/?u/\S+(\s+to\s+/?r/\S+)?`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// CleanFeedHTML reduces a feed entry's description payload to plain text:
// script/style blocks are dropped, tags stripped, entities decoded, known
// feed boilerplate removed, and whitespace collapsed.
func CleanFeedHTML(raw string) string {
	if raw == "" {
		return ""
	}

	// Reddit-style feeds double-encode the payload
	decoded := html.UnescapeString(raw)

	text := stripTags(decoded)
	text = html.UnescapeString(text)

	// Remove feed boilerplate artifacts
	text = strings.ReplaceAll(text, "[link]", " ")
	text = strings.ReplaceAll(text, "[comments]", " ")
	text = submittedByRe.ReplaceAllString(text, " ")

	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// stripTags walks the markup with a tokenizer, keeping only text content
// and skipping everything inside script and style elements.
func stripTags(content string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(content))
	var sb strings.Builder
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return sb.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skipDepth++
			}
			if tag == "p" || tag == "br" || tag == "div" || tag == "li" {
				sb.WriteString(" ")
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(tokenizer.Text())
				sb.WriteString(" ")
			}
		}
	}
}

// isDeletedBody reports whether a comment body was deleted or removed upstream
func isDeletedBody(body string) bool {
	trimmed := strings.TrimSpace(body)
	return trimmed == "" || trimmed == "[deleted]" || trimmed == "[removed]"
}
