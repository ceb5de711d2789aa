package moffin

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
)

// Autocomplete kinds
const (
	KindRFC           = "rfc"
	KindCURP          = "curp"
	KindRFCCalculator = "rfc_calculator"
)

// Account types
const (
	AccountTypePF = "PF" // persona física
	AccountTypePM = "PM" // persona moral
)

var AccountTypes = []string{AccountTypePF, AccountTypePM}

// Credentials identify a Moffin API client.
type Credentials struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

func (c Credentials) IsZero() bool { return c.ClientID == "" || c.ClientSecret == "" }

// APIError is returned by clients when Moffin answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("moffin: request failed with status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type (
	// RFCCalculation holds the personal data the RFC is computed from.
	RFCCalculation struct {
		Name      string `json:"nombre"`
		LastName1 string `json:"apellido_paterno"`
		LastName2 string `json:"apellido_materno"`
		BirthDate string `json:"fecha_nacimiento"`
	}

	// ServiceQueries are the checks Moffin runs for a form config. Keys follow the Moffin API.
	ServiceQueries struct {
		BureauPM          bool `json:"bureauPM"`
		BureauPF          bool `json:"bureauPF"`
		ProspectorPF      bool `json:"prospectorPF"`
		SatBlackList      bool `json:"satBlackList"`
		SatRFC            bool `json:"satRFC"`
		RenapoCurp        bool `json:"renapoCurp"`
		ImssJobHistory    bool `json:"imssJobHistory"`
		JumioIDValidation bool `json:"jumioIdValidation"`
		CaBlacklist       bool `json:"caBlacklist"`
	}

	FormConfig struct {
		Name           string         `json:"name"`
		Slug           string         `json:"slug"`
		AccountType    string         `json:"accountType"`
		ServiceQueries ServiceQueries `json:"serviceQueries"`
	}

	// Form is a Moffin form config registered by an organization.
	Form struct {
		ID             string         `json:"id"`
		Name           string         `json:"name"`
		Slug           string         `json:"slug"`
		AccountType    string         `json:"account_type"`
		ServiceQueries ServiceQueries `json:"service_queries"`
		MoffinFormID   string         `json:"moffin_form_id"`
		OrganizationID string         `json:"organization_id"`
		CreatedBy      string         `json:"created_by,omitempty"`
		IsActive       bool           `json:"is_active"`
		CreatedAt      time.Time      `json:"created_at"`
		UpdatedAt      time.Time      `json:"updated_at"`
	}

	// NewForm contains information needed to register a Form.
	NewForm struct {
		Name           string         `json:"name" validate:"required,notblank,max=200"`
		Slug           string         `json:"slug" validate:"omitempty,slug,max=100"`
		AccountType    string         `json:"account_type" validate:"required,accounttype"`
		ServiceQueries ServiceQueries `json:"service_queries"`
		OrganizationID string         `json:"organization_id" validate:"required,uuid"`
	}

	AutocompleteRequest struct {
		FieldID string            `json:"field_id" validate:"required"`
		Value   string            `json:"value"`
		Extra   map[string]string `json:"extra"`
	}

	AutocompleteResult struct {
		Kind    string                 `json:"kind"`
		Data    map[string]interface{} `json:"data"`
		Prefill form.Answers           `json:"prefill"`
	}
)

func (nf *NewForm) Validate(validate *validator.Validate) error {
	nf.Name = core.CleanString(nf.Name)
	nf.AccountType = strings.ToUpper(core.CleanString(nf.AccountType))
	nf.Slug = core.CleanString(nf.Slug, true /* lower */)
	if nf.Slug == "" {
		nf.Slug = core.Slugify(nf.Name)
	}
	return validate.Struct(nf)
}

// Config returns the payload sent to Moffin for nf.
func (nf NewForm) Config() FormConfig {
	return FormConfig{
		Name:           nf.Name,
		Slug:           nf.Slug,
		AccountType:    nf.AccountType,
		ServiceQueries: nf.ServiceQueries,
	}
}
