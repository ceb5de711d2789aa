package form

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const DateLayout = "2006-01-02"

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	telRegex   = regexp.MustCompile(`^(\+52)?[\s-]?[1-9]\d{9}$`)

	msgRequired      = "this field is required"
	msgInvalidFormat = "invalid format"
	msgInvalidValue  = "invalid value"
	msgInvalidEmail  = "invalid email address"
	msgInvalidTel    = "invalid phone number"
	msgInvalidNumber = "invalid number"
	msgInvalidDate   = "invalid date, expected YYYY-MM-DD"
	msgInvalidOption = "invalid option"
)

// ValidateAnswers checks answers against the rules of fields and returns a {fieldID: message} map.
// Only the fields passed in are checked; callers pass the visible ones.
func ValidateAnswers(fields []Field, answers Answers) map[string]string {
	errs := make(map[string]string)
	for _, fld := range fields {
		if msg := validateAnswer(fld, answers[fld.ID]); msg != "" {
			errs[fld.ID] = msg
		}
	}
	return errs
}

func validateAnswer(fld Field, val interface{}) string {
	if IsEmptyAnswer(val) {
		if fld.Required {
			return msgRequired
		}
		return ""
	}

	switch fld.Type {
	case FieldNumber:
		num, ok := toNumber(val)
		if !ok {
			return msgInvalidNumber
		}
		return checkRange(fld.Validation, num)
	case FieldMultiSelect:
		vals, ok := toStrings(val)
		if !ok {
			return msgInvalidValue
		}
		for _, v := range vals {
			if !hasOption(fld.Options, v) {
				return msgInvalidOption
			}
		}
		return ""
	case FieldCheckbox:
		if len(fld.Options) > 0 {
			vals, ok := toStrings(val)
			if !ok {
				return msgInvalidValue
			}
			for _, v := range vals {
				if !hasOption(fld.Options, v) {
					return msgInvalidOption
				}
			}
			return ""
		}
		if _, ok := val.(bool); !ok {
			return msgInvalidValue
		}
		return ""
	case FieldFile:
		name, ok := fileName(val)
		if !ok {
			return msgInvalidValue
		}
		return checkText(fld.Validation, name)
	}

	s, ok := val.(string)
	if !ok {
		return msgInvalidValue
	}
	s = strings.TrimSpace(s)

	switch fld.Type {
	case FieldEmail:
		if !emailRegex.MatchString(s) {
			return msgInvalidEmail
		}
	case FieldTel:
		if !telRegex.MatchString(s) {
			return msgInvalidTel
		}
	case FieldDate:
		if _, err := time.Parse(DateLayout, s); err != nil {
			return msgInvalidDate
		}
	case FieldSelect, FieldRadio:
		if !hasOption(fld.Options, s) {
			return msgInvalidOption
		}
	}
	return checkText(fld.Validation, s)
}

func checkText(v *Validation, s string) string {
	if v == nil {
		return ""
	}
	if v.Pattern != "" {
		re, err := regexp.Compile(v.Pattern)
		if err != nil || !re.MatchString(s) {
			return msgInvalidFormat
		}
	}
	length := utf8.RuneCountInString(s)
	if v.MinLength != nil && length < *v.MinLength {
		return fmt.Sprintf("must contain at least %d characters", *v.MinLength)
	}
	if v.MaxLength != nil && length > *v.MaxLength {
		return fmt.Sprintf("must contain at most %d characters", *v.MaxLength)
	}
	return ""
}

func checkRange(v *Validation, num float64) string {
	if v == nil {
		return ""
	}
	if v.Min != nil && num < *v.Min {
		return "must be at least " + strconv.FormatFloat(*v.Min, 'f', -1, 64)
	}
	if v.Max != nil && num > *v.Max {
		return "must be at most " + strconv.FormatFloat(*v.Max, 'f', -1, 64)
	}
	return ""
}

// fileName extracts the file name of a file answer: either the name itself or an object with a "name" key.
func fileName(val interface{}) (string, bool) {
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v), true
	case map[string]interface{}:
		name, ok := v["name"].(string)
		return strings.TrimSpace(name), ok && strings.TrimSpace(name) != ""
	}
	return "", false
}

func hasOption(options []Option, val string) bool {
	if len(options) == 0 {
		return true
	}
	for _, opt := range options {
		if opt.Value == val {
			return true
		}
	}
	return false
}

func toNumber(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func toStrings(val interface{}) ([]string, bool) {
	switch v := val.(type) {
	case string:
		return []string{v}, true
	case []string:
		return v, true
	case []interface{}:
		vals := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			vals = append(vals, s)
		}
		return vals, true
	}
	return nil, false
}
