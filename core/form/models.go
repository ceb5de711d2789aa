package form

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/forma/core"
)

// Field types
const (
	FieldText        = "text"
	FieldTextarea    = "textarea"
	FieldEmail       = "email"
	FieldTel         = "tel"
	FieldSelect      = "select"
	FieldMultiSelect = "multiselect"
	FieldFile        = "file"
	FieldCheckbox    = "checkbox"
	FieldRadio       = "radio"
	FieldDate        = "date"
	FieldNumber      = "number"
)

var FieldTypes = []string{
	FieldText, FieldTextarea, FieldEmail, FieldTel, FieldSelect, FieldMultiSelect,
	FieldFile, FieldCheckbox, FieldRadio, FieldDate, FieldNumber,
}

func isChoiceType(typ string) bool {
	return typ == FieldSelect || typ == FieldMultiSelect || typ == FieldRadio
}

// Answers holds the values entered by the end user, keyed by field ID.
type Answers map[string]interface{}

// Clone returns a shallow copy of a.
func (a Answers) Clone() Answers {
	c := make(Answers, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

type (
	Template struct {
		ID             string      `json:"id"`
		Title          string      `json:"title"`
		Description    string      `json:"description"`
		Slug           string      `json:"slug"`
		Sections       []Section   `json:"sections"`
		Settings       Settings    `json:"settings"`
		Permissions    Permissions `json:"permissions"`
		IsPublic       bool        `json:"is_public"`
		Tags           []string    `json:"tags"`
		OrganizationID string      `json:"organization_id,omitempty"`
		CreatedBy      string      `json:"created_by,omitempty"`
		CreatedAt      time.Time   `json:"created_at"`
		UpdatedAt      time.Time   `json:"updated_at"`
	}

	Section struct {
		ID          string       `json:"id" yaml:"id" validate:"required,notblank"`
		Title       string       `json:"title" yaml:"title" validate:"required,notblank"`
		Description string       `json:"description,omitempty" yaml:"description,omitempty"`
		Fields      []Field      `json:"fields" yaml:"fields" validate:"required,min=1,dive"`
		Order       int          `json:"order" yaml:"order"`
		Conditional *Conditional `json:"conditional,omitempty" yaml:"conditional,omitempty"`
	}

	Field struct {
		ID           string        `json:"id" yaml:"id" validate:"required,fieldid"`
		Type         string        `json:"type" yaml:"type" validate:"required,fieldtype"`
		Label        string        `json:"label" yaml:"label" validate:"required,notblank"`
		Placeholder  string        `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
		Required     bool          `json:"required" yaml:"required"`
		Validation   *Validation   `json:"validation,omitempty" yaml:"validation,omitempty"`
		Options      []Option      `json:"options,omitempty" yaml:"options,omitempty" validate:"omitempty,dive"`
		Conditional  *Conditional  `json:"conditional,omitempty" yaml:"conditional,omitempty"`
		Autocomplete *Autocomplete `json:"autocomplete,omitempty" yaml:"autocomplete,omitempty"`
		Order        int           `json:"order" yaml:"order"`
	}

	Validation struct {
		Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
		MinLength *int     `json:"min_length,omitempty" yaml:"min_length,omitempty" validate:"omitempty,min=0"`
		MaxLength *int     `json:"max_length,omitempty" yaml:"max_length,omitempty" validate:"omitempty,min=1"`
		Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
		Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	}

	Option struct {
		Value string `json:"value" yaml:"value" validate:"required"`
		Label string `json:"label" yaml:"label" validate:"required"`
	}

	// Conditional makes a section or a field visible only when the answer to DependsOn is one of ShowWhen.
	Conditional struct {
		DependsOn string   `json:"depends_on" yaml:"depends_on" validate:"required"`
		ShowWhen  ShowWhen `json:"show_when" yaml:"show_when" validate:"required,min=1"`
	}

	Autocomplete struct {
		Enabled      bool              `json:"enabled" yaml:"enabled"`
		APIEndpoint  string            `json:"api_endpoint,omitempty" yaml:"api_endpoint,omitempty"`
		FieldMapping map[string]string `json:"field_mapping,omitempty" yaml:"field_mapping,omitempty"`
	}

	Settings struct {
		AllowMultiSession bool   `json:"allow_multi_session" yaml:"allow_multi_session"`
		AllowEdit         bool   `json:"allow_edit" yaml:"allow_edit"`
		AutoSave          bool   `json:"auto_save" yaml:"auto_save"`
		ShowProgress      bool   `json:"show_progress" yaml:"show_progress"`
		RequireAuth       bool   `json:"require_auth" yaml:"require_auth"`
		Theme             *Theme `json:"theme,omitempty" yaml:"theme,omitempty"`
	}

	Theme struct {
		PrimaryColor   string `json:"primary_color,omitempty" yaml:"primary_color,omitempty" validate:"omitempty,hexcolor"`
		SecondaryColor string `json:"secondary_color,omitempty" yaml:"secondary_color,omitempty" validate:"omitempty,hexcolor"`
		FontFamily     string `json:"font_family,omitempty" yaml:"font_family,omitempty" validate:"max=100"`
	}

	// Permissions lists the user roles allowed to view, edit and submit a form.
	// An empty list or the "*" wildcard allows everyone.
	Permissions struct {
		CanView   []string `json:"can_view" yaml:"can_view"`
		CanEdit   []string `json:"can_edit" yaml:"can_edit"`
		CanSubmit []string `json:"can_submit" yaml:"can_submit"`
	}
)

// ShowWhen is the list of answers making a Conditional match.
// It is encoded as a plain string when it holds a single value.
type ShowWhen []string

func (sw ShowWhen) MarshalJSON() ([]byte, error) {
	if len(sw) == 1 {
		return json.Marshal(sw[0])
	}
	return json.Marshal([]string(sw))
}

func (sw *ShowWhen) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case nil:
		*sw = nil
	case []interface{}:
		vals := make(ShowWhen, 0, len(val))
		for _, v := range val {
			s, err := scalarString(v)
			if err != nil {
				return err
			}
			vals = append(vals, s)
		}
		*sw = vals
	default:
		s, err := scalarString(val)
		if err != nil {
			return err
		}
		*sw = ShowWhen{s}
	}
	return nil
}

func (sw ShowWhen) MarshalYAML() (interface{}, error) {
	if len(sw) == 1 {
		return sw[0], nil
	}
	return []string(sw), nil
}

func (sw *ShowWhen) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*sw = ShowWhen{value.Value}
	case yaml.SequenceNode:
		vals := make(ShowWhen, 0, len(value.Content))
		for _, node := range value.Content {
			if node.Kind != yaml.ScalarNode {
				return errors.Errorf("show_when: line %d: expected a scalar value", node.Line)
			}
			vals = append(vals, node.Value)
		}
		*sw = vals
	default:
		return errors.Errorf("show_when: line %d: expected a string or a list of strings", value.Line)
	}
	return nil
}

func scalarString(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", errors.Errorf("show_when: unsupported value %v", v)
	}
}

// PublicView returns the template as exposed to end users, without ownership details.
func (t Template) PublicView() Template {
	t.CreatedBy = ""
	t.OrganizationID = ""
	return t
}

// Field returns the field with the given ID, wherever it is in the template.
func (t Template) Field(id string) (Field, bool) {
	for _, sec := range t.Sections {
		for _, fld := range sec.Fields {
			if fld.ID == id {
				return fld, true
			}
		}
	}
	return Field{}, false
}

// Section returns the section with the given ID.
func (t Template) Section(id string) (Section, bool) {
	for _, sec := range t.Sections {
		if sec.ID == id {
			return sec, true
		}
	}
	return Section{}, false
}

// FieldIDs lists every field ID of the template, in template order.
func (t Template) FieldIDs() []string {
	var ids []string
	for _, sec := range t.Sections {
		for _, fld := range sec.Fields {
			ids = append(ids, fld.ID)
		}
	}
	return ids
}

func (p Permissions) AllowsView(role string) bool   { return allows(p.CanView, role) }
func (p Permissions) AllowsEdit(role string) bool   { return allows(p.CanEdit, role) }
func (p Permissions) AllowsSubmit(role string) bool { return allows(p.CanSubmit, role) }

const AnyRole = "*"

func allows(roles []string, role string) bool {
	return len(roles) == 0 || core.StringInSlice(AnyRole, roles) || core.StringInSlice(role, roles)
}

// NewTemplate contains information needed to create or update a Template.
type NewTemplate struct {
	Title       string      `json:"title" yaml:"title" validate:"required,notblank,max=200"`
	Description string      `json:"description" yaml:"description" validate:"max=2000"`
	Sections    []Section   `json:"sections" yaml:"sections" validate:"required,min=1,dive"`
	Settings    Settings    `json:"settings" yaml:"settings"`
	Permissions Permissions `json:"permissions" yaml:"permissions"`
	IsPublic    bool        `json:"is_public" yaml:"is_public"`
	Tags        []string    `json:"tags" yaml:"tags" validate:"omitempty,dive,notblank,max=40"`
}

// Validate sanitizes nt then checks it field by field and as a whole.
func (nt *NewTemplate) Validate(validate *validator.Validate) error {
	nt.sanitize()
	if err := validate.Struct(nt); err != nil {
		return err
	}
	if fields := nt.checkStructure(); len(fields) > 0 {
		return core.NewFieldsError(errInvalidStructure, fields)
	}
	nt.normalize()
	return nil
}

type QueryFilter struct {
	OrganizationID string    `query:"-"`
	CreatedBy      string    `query:"-"`
	Search         string    `query:"search"`
	Tag            string    `query:"tag"`
	IsPublic       *bool     `query:"is_public"`
	CreatedFrom    time.Time `query:"created_from"`
	CreatedTo      time.Time `query:"created_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Tag = core.CleanString(qf.Tag, true /* lower */)
}

// GetFilter selects a single Template; the first non-empty field wins.
type GetFilter struct {
	ID   string
	Slug string
}
