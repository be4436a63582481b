package htmlguard

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// DefaultTitle is used when a document has no usable <title>.
const DefaultTitle = "Email Template"

// Placeholders are placeholderBase, an index and placeholderEnd. Both ends
// are private-use runes: short, never markup, and not word characters, so
// `\b` rules still see a boundary next to a placeholder.
const (
	placeholderBase = "\ue000HG"
	placeholderEnd  = "\ue001"
)

var titleRe = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)

// Preview is the display form of a template.
type Preview struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// BuildPreview extracts the title and a sanitized copy of the content.
func BuildPreview(doc string) Preview {
	title := DefaultTitle
	if m := titleRe.FindStringSubmatch(doc); m != nil {
		if t := strings.TrimSpace(m[1]); t != "" {
			title = html.EscapeString(t)
		}
	}

	return Preview{
		Title:   title,
		Content: Sanitize(doc),
	}
}

// Sanitize removes every fragment matched by Rules, plus form controls and
// script-bearing iframes, from doc. Conditional comments and VML markup are
// kept byte for byte. The pass is repeated until nothing more is removed, so
// removals cannot splice together a new match.
//
// The result is for display only. Acceptance decisions belong to Classify.
func Sanitize(doc string) string {
	for {
		next := sanitizeOnce(doc)
		if next == doc {
			return next
		}
		doc = next
	}
}

func sanitizeOnce(doc string) string {
	prefix := placeholderPrefix(doc)
	placeholderRe := regexp.MustCompile(regexp.QuoteMeta(prefix) + `\d+` + placeholderEnd)

	var preserved []string
	for _, re := range CarveOuts {
		doc = re.ReplaceAllStringFunc(doc, func(m string) string {
			preserved = append(preserved, m)
			return prefix + strconv.Itoa(len(preserved)-1) + placeholderEnd
		})
	}

	// A removed fragment leaves behind the carve-outs it contained.
	keep := func(m string) string {
		return strings.Join(placeholderRe.FindAllString(m, -1), "")
	}
	for _, rule := range Rules {
		for _, re := range rule.Patterns {
			doc = re.ReplaceAllStringFunc(doc, keep)
		}
	}
	for _, re := range previewOnly {
		doc = re.ReplaceAllStringFunc(doc, keep)
	}

	return restore(doc, prefix, placeholderRe, preserved)
}

// restore expands every placeholder in a single pass. A preserved block may
// itself hold placeholders of carve-outs found before it; those are expanded
// recursively. Each placeholder occurs exactly once, so the work is linear.
func restore(doc, prefix string, placeholderRe *regexp.Regexp, preserved []string) string {
	var expand func(string) string
	expand = func(s string) string {
		return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
			i, err := strconv.Atoi(m[len(prefix) : len(m)-len(placeholderEnd)])
			if err != nil || i >= len(preserved) {
				return m
			}
			return expand(preserved[i])
		})
	}
	return expand(doc)
}

// placeholderPrefix returns a placeholder prefix that does not occur in doc.
func placeholderPrefix(doc string) string {
	prefix := placeholderBase
	for strings.Contains(doc, prefix) {
		prefix += "X_"
	}
	return prefix
}
