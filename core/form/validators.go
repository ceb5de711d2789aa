package form

import (
	"fmt"
	"regexp"
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/user"
)

// Autocomplete endpoints
const (
	EndpointRFCData       = "/query/rfc-data"
	EndpointCURPData      = "/query/curp-data"
	EndpointRFCCalculator = "/query/rfc-calculator"
)

var (
	AutocompleteEndpoints = []string{EndpointRFCData, EndpointCURPData, EndpointRFCCalculator}

	fieldTypeTag  = "fieldtype"
	fieldTypeText = "unknown field type"

	fieldIDTag   = "fieldid"
	fieldIDText  = "must start with a letter and only contain letters, digits, dashes and underscores"
	fieldIDRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_\-]*$`)

	errInvalidStructure = errors.New("invalid form structure")
)

// RegisterValidators registers the form validators and their translations.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(fieldTypeTag, fieldTypeValidation)
	core.RegisterCustomTranslation(validate, translator, fieldTypeTag, fieldTypeText)

	_ = validate.RegisterValidation(fieldIDTag, fieldIDValidation)
	core.RegisterCustomTranslation(validate, translator, fieldIDTag, fieldIDText)
}

func fieldTypeValidation(fl validator.FieldLevel) bool {
	return core.StringInSlice(fl.Field().String(), FieldTypes)
}

func fieldIDValidation(fl validator.FieldLevel) bool {
	return fieldIDRegex.MatchString(fl.Field().String())
}

// normalize puts sections and fields in display order.
func (nt *NewTemplate) normalize() {
	nt.Sections = sortedSections(nt.Sections)
	for i := range nt.Sections {
		nt.Sections[i].Fields = sortedFields(nt.Sections[i].Fields)
	}
	for i, tag := range nt.Tags {
		nt.Tags[i] = core.CleanString(tag, true /* lower */)
	}
	sort.Strings(nt.Tags)
}

// checkStructure validates what struct tags cannot express: id uniqueness, conditional references,
// options of choice fields, validation rules and permissions. Paths follow display order.
func (nt *NewTemplate) checkStructure() map[string]string {
	errs := make(map[string]string)
	allFields := make(map[string]bool)
	for _, sec := range nt.Sections {
		for _, fld := range sec.Fields {
			allFields[fld.ID] = true
		}
	}

	seenSections := make(map[string]bool)
	defined := make(map[string]bool) // fields defined so far, in display order
	for i, sec := range sortedSections(nt.Sections) {
		secPath := fmt.Sprintf("sections[%d]", i)
		if seenSections[sec.ID] {
			errs[secPath+".id"] = "duplicate section id"
		}
		seenSections[sec.ID] = true

		if c := sec.Conditional; c != nil && !defined[c.DependsOn] {
			errs[secPath+".conditional.depends_on"] = "must reference a field of a previous section"
		}

		for j, fld := range sortedFields(sec.Fields) {
			fldPath := fmt.Sprintf("%s.fields[%d]", secPath, j)
			if defined[fld.ID] {
				errs[fldPath+".id"] = "duplicate field id"
			}

			if c := fld.Conditional; c != nil {
				if c.DependsOn == fld.ID || !defined[c.DependsOn] {
					errs[fldPath+".conditional.depends_on"] = "must reference a field defined before this one"
				}
			}
			defined[fld.ID] = true

			checkOptions(fld, fldPath, errs)
			checkRules(fld, fldPath, errs)
			checkAutocomplete(fld, fldPath, allFields, errs)
		}
	}

	checkRoles(nt.Permissions.CanView, "permissions.can_view", errs)
	checkRoles(nt.Permissions.CanEdit, "permissions.can_edit", errs)
	checkRoles(nt.Permissions.CanSubmit, "permissions.can_submit", errs)
	return errs
}

func checkOptions(fld Field, path string, errs map[string]string) {
	if isChoiceType(fld.Type) && len(fld.Options) == 0 {
		errs[path+".options"] = "at least one option is required"
		return
	}
	seen := make(map[string]bool, len(fld.Options))
	for _, opt := range fld.Options {
		if seen[opt.Value] {
			errs[path+".options"] = fmt.Sprintf("duplicate option value %q", opt.Value)
			return
		}
		seen[opt.Value] = true
	}
}

func checkRules(fld Field, path string, errs map[string]string) {
	v := fld.Validation
	if v == nil {
		return
	}
	if v.Pattern != "" {
		if _, err := regexp.Compile(v.Pattern); err != nil {
			errs[path+".validation.pattern"] = "invalid regular expression"
		}
	}
	if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
		errs[path+".validation.min"] = "must not be greater than max"
	}
	if v.MinLength != nil && v.MaxLength != nil && *v.MinLength > *v.MaxLength {
		errs[path+".validation.min_length"] = "must not be greater than max_length"
	}
}

func checkAutocomplete(fld Field, path string, allFields map[string]bool, errs map[string]string) {
	ac := fld.Autocomplete
	if ac == nil || !ac.Enabled {
		return
	}
	if fld.Type != FieldText {
		errs[path+".autocomplete"] = "autocomplete is only available on text fields"
		return
	}
	if ac.APIEndpoint != "" && !core.StringInSlice(ac.APIEndpoint, AutocompleteEndpoints) {
		errs[path+".autocomplete.api_endpoint"] = "unsupported endpoint"
	}
	targets := make([]string, 0, len(ac.FieldMapping))
	for _, target := range ac.FieldMapping {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	for _, target := range targets {
		if !allFields[target] {
			errs[path+".autocomplete.field_mapping"] = fmt.Sprintf("unknown target field %q", target)
			return
		}
	}
}

func checkRoles(roles []string, path string, errs map[string]string) {
	for _, role := range roles {
		if role != AnyRole && !user.IsValidRole(role) {
			errs[path] = fmt.Sprintf("invalid role %q", role)
			return
		}
	}
}
