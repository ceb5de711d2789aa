package organization

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/forma/core"
)

const DefaultMoffinBaseURL = "https://staging.moffin.mx/api/v1"

type Organization struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	MoffinAPIKey  string    `json:"-"`
	MoffinBaseURL string    `json:"moffin_base_url"`
	IsActive      bool      `json:"is_active"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MaskedAPIKey only reveals the last 4 characters of the Moffin API key.
func (o Organization) MaskedAPIKey() string {
	if o.MoffinAPIKey == "" {
		return ""
	}
	if len(o.MoffinAPIKey) <= 4 {
		return strings.Repeat("*", len(o.MoffinAPIKey))
	}
	return strings.Repeat("*", len(o.MoffinAPIKey)-4) + o.MoffinAPIKey[len(o.MoffinAPIKey)-4:]
}

// HasMoffinCredentials reports whether the organization carries its own Moffin client credentials.
func (o Organization) HasMoffinCredentials() bool {
	id, secret := o.MoffinCredentials()
	return id != "" && secret != ""
}

// MoffinCredentials splits the stored key, formatted as "client_id:client_secret".
func (o Organization) MoffinCredentials() (clientID, clientSecret string) {
	parts := strings.SplitN(o.MoffinAPIKey, ":", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

// NewOrganization contains information needed to create or update an Organization.
type NewOrganization struct {
	Name          string `json:"name" validate:"required,notblank,max=120"`
	Slug          string `json:"slug" validate:"omitempty,slug,max=80"`
	MoffinAPIKey  string `json:"moffin_api_key" validate:"omitempty,moffinkey"`
	MoffinBaseURL string `json:"moffin_base_url" validate:"omitempty,url"`
}

func (no *NewOrganization) Validate(validate *validator.Validate) error {
	no.Name = core.CleanString(no.Name)
	no.Slug = core.CleanString(no.Slug, true /* lower */)
	no.MoffinAPIKey = core.CleanString(no.MoffinAPIKey)
	no.MoffinBaseURL = strings.TrimSuffix(core.CleanString(no.MoffinBaseURL), "/")
	if no.Slug == "" {
		no.Slug = core.Slugify(no.Name)
	}
	return validate.Struct(no)
}

// UpdateOrganization defines what may be changed on an existing Organization. Empty values are left untouched.
type UpdateOrganization struct {
	Name          string `json:"name" validate:"omitempty,notblank,max=120"`
	MoffinAPIKey  string `json:"moffin_api_key" validate:"omitempty,moffinkey"`
	MoffinBaseURL string `json:"moffin_base_url" validate:"omitempty,url"`
	IsActive      *bool  `json:"is_active"`
}

func (uo *UpdateOrganization) Validate(validate *validator.Validate) error {
	uo.Name = core.CleanString(uo.Name)
	uo.MoffinAPIKey = core.CleanString(uo.MoffinAPIKey)
	uo.MoffinBaseURL = strings.TrimSuffix(core.CleanString(uo.MoffinBaseURL), "/")
	return validate.Struct(uo)
}

type QueryFilter struct {
	CreatedBy string
	IDs       []string
	IsActive  *bool
}
