package mailer

import (
	"strings"

	"github.com/foxzi/htmlmailer/internal/settings"
)

// EmailValidation splits a recipient list into accepted and rejected entries
type EmailValidation struct {
	Valid   []string `json:"valid"`
	Invalid []string `json:"invalid"`
	IsValid bool     `json:"isValid"`
}

// ValidateEmails trims each entry, skips blanks and checks the address shape
func ValidateEmails(list []string) EmailValidation {
	res := EmailValidation{Valid: []string{}, Invalid: []string{}}

	for _, email := range list {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		if settings.EmailPattern.MatchString(email) {
			res.Valid = append(res.Valid, email)
		} else {
			res.Invalid = append(res.Invalid, email)
		}
	}

	res.IsValid = len(res.Invalid) == 0
	return res
}

// ParseRecipients splits free text on newlines and commas
func ParseRecipients(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})
}
