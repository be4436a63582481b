package htmlguard

import "regexp"

var (
	doctypeRe = regexp.MustCompile(`(?i)<!doctype`)
	htmlTagRe = regexp.MustCompile(`(?i)<html`)
	bodyTagRe = regexp.MustCompile(`(?i)<body`)
)

// Structure warnings. They are advisory and never block a template.
const (
	WarnMissingDoctype = "Missing DOCTYPE declaration"
	WarnMissingHTML    = "Missing HTML tag"
	WarnMissingBody    = "Missing BODY tag"
)

// StructureWarnings lists the document-structure elements doc is missing.
func StructureWarnings(doc string) []string {
	warnings := []string{}
	if !doctypeRe.MatchString(doc) {
		warnings = append(warnings, WarnMissingDoctype)
	}
	if !htmlTagRe.MatchString(doc) {
		warnings = append(warnings, WarnMissingHTML)
	}
	if !bodyTagRe.MatchString(doc) {
		warnings = append(warnings, WarnMissingBody)
	}
	return warnings
}
