package template

import (
	"errors"
	"mime"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/foxzi/htmlmailer/internal/htmlguard"
)

const (
	// MaxTemplateSize is the largest accepted template, in bytes
	MaxTemplateSize = 1 << 20
	// MaxFileNameLength is the longest accepted file name, in characters
	MaxFileNameLength = 255
	// MaxBatchFiles is the most files accepted in one upload
	MaxBatchFiles = 10
)

// User-facing rejection reasons
const (
	ReasonTooLarge          = "File too large (maximum 1MB allowed)"
	ReasonFileNameLength    = "Filename length must be between 1-255 characters"
	ReasonFileNameDangerous = "Filename contains potentially dangerous content"
	ReasonExtension         = "Only .html files are allowed"
	ReasonMIMEType          = "Please select HTML files only (.html extension required)"
	ReasonEmptyContent      = "Template content is empty"
	ReasonTooManyFiles      = "Maximum 10 files can be processed at once"
)

var (
	controlCharsRe    = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
	dangerousNameRe   = regexp.MustCompile(`(?i)<script|javascript:|vbscript:|data:`)
	scriptExtensionRe = regexp.MustCompile(`(?i)\.(?:js|php|asp|jsp)$`)
	htmlExtensionRe   = regexp.MustCompile(`(?i)\.html$`)
)

// fileNameRules are applied in order; the first failure is reported.
var fileNameRules = []validation.Rule{
	validation.Required.Error(ReasonFileNameLength),
	validation.By(rejectMatch(controlCharsRe, ReasonFileNameDangerous)),
	validation.By(rejectMatch(dangerousNameRe, ReasonFileNameDangerous)),
	validation.By(rejectMatch(scriptExtensionRe, ReasonFileNameDangerous)),
	validation.RuneLength(1, MaxFileNameLength).Error(ReasonFileNameLength),
	validation.Match(htmlExtensionRe).Error(ReasonExtension),
}

// Result is the outcome of validating an upload
type Result struct {
	Accepted bool     `json:"accepted"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings"`

	// Rule is the content rule that caused a rejection, if any
	Rule htmlguard.RuleID `json:"-"`
}

// Err returns the rejection as an error, or nil if accepted
func (r Result) Err() error {
	if r.Accepted {
		return nil
	}
	return &RejectedError{Reason: r.Reason}
}

// RejectedError reports why an upload was not accepted
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Reason
}

// IsRejected reports whether err is a validation rejection
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// Validator gates uploaded templates
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Precheck validates what is known before the content is read: the declared
// size and the file name.
func (v *Validator) Precheck(fileName string, size int64) error {
	if size > MaxTemplateSize {
		return &RejectedError{Reason: ReasonTooLarge}
	}
	return ValidateFileName(fileName)
}

// Validate runs every upload check in order and stops at the first failure.
// Structure warnings are only computed for accepted content.
func (v *Validator) Validate(fileName, content string, size int64) Result {
	if err := v.Precheck(fileName, size); err != nil {
		return Result{Reason: err.Error(), Warnings: []string{}}
	}
	if int64(len(content)) > MaxTemplateSize {
		return Result{Reason: ReasonTooLarge, Warnings: []string{}}
	}

	verdict, err := htmlguard.Classify(content)
	if err != nil {
		return Result{Reason: ReasonEmptyContent, Warnings: []string{}}
	}
	if !verdict.Safe {
		return Result{Reason: verdict.Reason, Warnings: []string{}, Rule: verdict.Rule}
	}

	return Result{
		Accepted: true,
		Warnings: htmlguard.StructureWarnings(content),
	}
}

// ValidateFileName checks a file name against the upload naming rules
func ValidateFileName(name string) error {
	if err := validation.Validate(name, fileNameRules...); err != nil {
		return &RejectedError{Reason: err.Error()}
	}
	return nil
}

// ValidateMIME accepts text/html or an unknown (empty) type
func ValidateMIME(contentType string) error {
	if contentType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.EqualFold(mediaType, "text/html") {
		return &RejectedError{Reason: ReasonMIMEType}
	}
	return nil
}

func rejectMatch(re *regexp.Regexp, reason string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if re.MatchString(s) {
			return errors.New(reason)
		}
		return nil
	}
}
