// Package htmlguard implements the content-safety filter applied to HTML
// email templates: a blocklist of script-capable constructs, the Outlook
// carve-outs that are exempt from scanning, and the display sanitizer.
//
// Matching is regular-expression based and narrow. It is not a
// general HTML sanitizer and does not parse the document.
package htmlguard

import "regexp"

// RuleID identifies a dangerous-construct rule.
type RuleID string

// Rule identifiers, also used as metrics labels.
const (
	RuleScript        RuleID = "script"
	RuleEventHandler  RuleID = "event_handler"
	RuleScriptURL     RuleID = "script_url"
	RuleSVGScript     RuleID = "svg_script"
	RuleCSSExpression RuleID = "css_expression"
	RuleCSSScriptURL  RuleID = "css_script_url"
	RuleJSEntryPoint  RuleID = "js_entry_point"
)

// Rule is a single dangerous-construct detector.
type Rule struct {
	ID          RuleID
	Description string
	Patterns    []*regexp.Regexp
}

// eventHandlers is the fixed set of inline handler attributes that are blocked.
const eventHandlers = `onclick|onload|onmouseover|onmouseout|onfocus|onblur|onchange|onsubmit|onreset|onselect|onkeydown|onkeypress|onkeyup`

// Rules is the ordered detector table. Classify reports the first rule that
// matches, so the order here is the order of precedence.
var Rules = []Rule{
	{
		ID:          RuleScript,
		Description: "script tag detected",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?is)<script\b.*?</script>`),
		},
	},
	{
		ID:          RuleEventHandler,
		Description: "inline event handler attribute detected",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\s(?:` + eventHandlers + `)\s*=\s*["'][^"']*["']`),
		},
	},
	{
		ID:          RuleScriptURL,
		Description: "javascript: or vbscript: URL detected",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:href|src)\s*=\s*["']?\s*(?:javascript|vbscript):`),
		},
	},
	{
		ID:          RuleSVGScript,
		Description: "script inside SVG detected",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?is)<svg[^>]*>.*?<script.*?</svg>`),
		},
	},
	{
		ID:          RuleCSSExpression,
		Description: "CSS expression() detected",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)expression\s*\(`),
		},
	},
	{
		ID:          RuleCSSScriptURL,
		Description: "javascript: URL in CSS detected",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)url\s*\(\s*["']?\s*javascript:`),
		},
	},
	{
		ID:          RuleJSEntryPoint,
		Description: "dynamic code execution detected",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\beval\s*\(`),
			regexp.MustCompile(`(?i)\bsetTimeout\s*\(`),
			regexp.MustCompile(`(?i)\bsetInterval\s*\(`),
			regexp.MustCompile(`(?i)\bnew\s+Function\s*\(`),
		},
	},
}

// CarveOuts match legitimate Outlook/Word markup. They are removed from the
// text scanned by Classify and protected verbatim by Sanitize. Conditional
// comments come first so that VML nested inside them is handled as part of
// the comment.
var CarveOuts = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<!--\[if[^>]*>.*?<!\[endif\]-->`),
	regexp.MustCompile(`(?i)xmlns:v="urn:schemas-microsoft-com:vml"`),
	regexp.MustCompile(`(?is)<v:[^>]*>.*?</v:[^>]*>`),
	regexp.MustCompile(`(?i)<w:[^>]*/?>`),
}

// previewOnly are stripped from previews but never cause a rejection.
var previewOnly = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<iframe[^>]*srcdoc\s*=\s*["'][^"']*<script[^"']*["']`),
	regexp.MustCompile(`(?i)<form[^>]*>`),
	regexp.MustCompile(`(?i)<input[^>]*>`),
	regexp.MustCompile(`(?i)<textarea[^>]*>`),
	regexp.MustCompile(`(?i)<select[^>]*>`),
	regexp.MustCompile(`(?i)<button[^>]*>`),
}

// Lookup returns the rule with the given id.
func Lookup(id RuleID) (Rule, bool) {
	for _, r := range Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

func (r Rule) match(s string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
