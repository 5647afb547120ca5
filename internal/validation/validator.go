// Package validation checks operator and user input before any side effect.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	MaxReasonLength   = 500
	MaxReasonNewlines = 10
	MaxWordLength     = 100
	MaxLogIDLength    = 36
)

var (
	userIDPattern = regexp.MustCompile(`^\d{17,19}$`)
	logIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,36}$`)
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		return userIDPattern.MatchString(fl.Field().String())
	})

	validate.RegisterValidation("logid", func(fl validator.FieldLevel) bool {
		return logIDPattern.MatchString(fl.Field().String())
	})

	validate.RegisterValidation("word", func(fl validator.FieldLevel) bool {
		return validWord(fl.Field().String())
	})

	validate.RegisterValidation("reason", func(fl validator.FieldLevel) bool {
		return validReason(fl.Field().String())
	})
}

func validWord(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > MaxWordLength {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			continue
		}
		switch r {
		case ' ', '-', '_', 'ー', '々':
			continue
		}
		return false
	}
	return true
}

func validReason(s string) bool {
	s = strings.TrimSpace(s)
	return utf8.RuneCountInString(s) <= MaxReasonLength && strings.Count(s, "\n") <= MaxReasonNewlines
}

// Errors maps a field name to a user-facing reason
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Struct validates s and returns Errors, or nil when s is valid
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	errs := make(Errors)
	for _, fe := range verrs {
		errs[fe.Field()] = message(fe)
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "userid":
		return "Must be a 17-19 digit user ID"
	case "logid":
		return fmt.Sprintf("Must be 1-%d letters, digits, '-' or '_'", MaxLogIDLength)
	case "word":
		return fmt.Sprintf("Must be 1-%d letters, digits, spaces, '-' or '_'", MaxWordLength)
	case "reason":
		return fmt.Sprintf("Must be at most %d characters and %d lines", MaxReasonLength, MaxReasonNewlines+1)
	case "min", "gte":
		return "Value must be at least " + fe.Param()
	case "max", "lte":
		return "Value must be at most " + fe.Param()
	case "oneof":
		return "Must be one of: " + fe.Param()
	default:
		return "Invalid value"
	}
}

// UserID validates a single user id
func UserID(field, id string) error {
	if !userIDPattern.MatchString(id) {
		return Errors{field: "Must be a 17-19 digit user ID"}
	}
	return nil
}

// NormalizeReason trims the reason for storage
func NormalizeReason(s string) string {
	return strings.TrimSpace(s)
}
