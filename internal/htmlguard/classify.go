package htmlguard

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned for empty or whitespace-only HTML.
var ErrInvalidInput = errors.New("invalid HTML content")

// JavaScriptNotAllowed is the user-facing prefix of every unsafe verdict.
const JavaScriptNotAllowed = "HTML content contains JavaScript which is not allowed for security reasons"

// Verdict is the result of classifying a piece of HTML.
type Verdict struct {
	Safe   bool
	Rule   RuleID
	Reason string
}

// Classify scans html for the constructs in Rules and returns the verdict of
// the first rule that matches. Carve-out markup is stripped before scanning,
// so anything hidden inside a conditional comment or VML element is not seen.
func Classify(html string) (Verdict, error) {
	if strings.TrimSpace(html) == "" {
		return Verdict{}, ErrInvalidInput
	}

	scan := stripCarveOuts(html)
	for _, rule := range Rules {
		if rule.match(scan) {
			return Verdict{
				Rule:   rule.ID,
				Reason: fmt.Sprintf("%s (%s)", JavaScriptNotAllowed, rule.Description),
			}, nil
		}
	}

	return Verdict{Safe: true}, nil
}

// HasJavaScript reports whether html fails classification. Invalid input is
// treated as unsafe.
func HasJavaScript(html string) bool {
	v, err := Classify(html)
	if err != nil {
		return true
	}
	return !v.Safe
}

// stripCarveOuts returns the detection copy of html.
func stripCarveOuts(html string) string {
	for _, re := range CarveOuts {
		html = re.ReplaceAllString(html, "")
	}
	return html
}
