package moffin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/organization"
	"github.com/trezcool/forma/core/user"
)

var (
	// errors
	ErrNotConfigured    = errors.New("moffin is not configured for this organization")
	ErrSlugExists       = errors.New("a moffin form with this slug already exists")
	errUnavailable      = errors.New("autocomplete is not available")
	errInvalidRFC       = errors.New("invalid RFC")
	errInvalidCURP      = errors.New("invalid CURP")
	errMissingPersonal  = errors.New("name, first last name and birth date are required to calculate the RFC")
	errMissingMoffinRef = errors.New("moffin did not return a form id")
)

type (
	// Client calls the Moffin API. Responses are returned as decoded JSON objects.
	Client interface {
		RFCData(ctx context.Context, rfc string) (map[string]interface{}, error)
		CURPData(ctx context.Context, curp string) (map[string]interface{}, error)
		CalculateRFC(ctx context.Context, calc RFCCalculation) (map[string]interface{}, error)
		CreateFormConfig(ctx context.Context, cfg FormConfig) (map[string]interface{}, error)
	}

	// ClientFactory builds a Client for the given credentials.
	ClientFactory func(creds Credentials) (Client, error)

	Repository interface {
		CheckFormSlugExists(ctx context.Context, orgID, slug string, exec ...core.DBExecutor) (bool, error)
		CreateForm(ctx context.Context, f Form, exec ...core.DBExecutor) (Form, error)
		// QueryForms lists the active forms of an organization, newest first.
		QueryForms(ctx context.Context, orgID string, exec ...core.DBExecutor) ([]Form, error)
	}

	Service interface {
		// Autocomplete looks up value for the autocomplete field fieldID of t, using the
		// credentials of org when it has some.
		Autocomplete(ctx context.Context, t form.Template, org organization.Organization, req AutocompleteRequest) (AutocompleteResult, error)
		CreateForm(ctx context.Context, org organization.Organization, nf NewForm, owner user.User) (Form, error)
		QueryForms(ctx context.Context, orgID string) ([]Form, error)
	}

	service struct {
		repo      Repository
		newClient ClientFactory
		conf      *core.Config

		mu      sync.Mutex
		clients map[Credentials]Client
		lookups singleflight.Group
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, newClient ClientFactory, conf *core.Config) Service {
	return &service{
		repo:      repo,
		newClient: newClient,
		conf:      conf,
		clients:   make(map[Credentials]Client),
	}
}

// credentials returns the credentials of org, falling back to the configured ones.
func (svc *service) credentials(org organization.Organization) (Credentials, error) {
	if org.HasMoffinCredentials() {
		id, secret := org.MoffinCredentials()
		baseURL := org.MoffinBaseURL
		if baseURL == "" {
			baseURL = organization.DefaultMoffinBaseURL
		}
		return Credentials{BaseURL: strings.TrimSuffix(baseURL, "/"), ClientID: id, ClientSecret: secret}, nil
	}

	creds := Credentials{
		BaseURL:      svc.conf.Moffin.BaseURL,
		ClientID:     svc.conf.Moffin.ClientID,
		ClientSecret: svc.conf.Moffin.ClientSecret,
	}
	if creds.IsZero() {
		return Credentials{}, ErrNotConfigured
	}
	if creds.BaseURL == "" {
		creds.BaseURL = organization.DefaultMoffinBaseURL
	}
	return creds, nil
}

// client returns the cached client of creds, so that access tokens are shared.
func (svc *service) client(org organization.Organization) (Client, Credentials, error) {
	creds, err := svc.credentials(org)
	if err != nil {
		return nil, Credentials{}, err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if cl, ok := svc.clients[creds]; ok {
		return cl, creds, nil
	}
	cl, err := svc.newClient(creds)
	if err != nil {
		return nil, Credentials{}, errors.Wrap(err, "creating moffin client")
	}
	svc.clients[creds] = cl
	return cl, creds, nil
}

func valueError(err error) error {
	return core.NewValidationError(err, core.FieldError{Field: "value", Error: err.Error()})
}

func (svc *service) Autocomplete(ctx context.Context, t form.Template, org organization.Organization, req AutocompleteRequest) (AutocompleteResult, error) {
	fld, ok := t.Field(req.FieldID)
	if !ok || fld.Autocomplete == nil || !fld.Autocomplete.Enabled {
		return AutocompleteResult{}, core.NewValidationError(
			errUnavailable,
			core.FieldError{Field: "field_id", Error: errUnavailable.Error()},
		)
	}
	kind := Kind(fld)

	value := strings.ToUpper(strings.TrimSpace(req.Value))
	var calc RFCCalculation
	switch kind {
	case KindRFC:
		if !rfcRegex.MatchString(value) {
			return AutocompleteResult{}, valueError(errInvalidRFC)
		}
	case KindCURP:
		if !curpRegex.MatchString(value) {
			return AutocompleteResult{}, valueError(errInvalidCURP)
		}
	case KindRFCCalculator:
		calc = RFCCalculation{
			Name:      core.CleanString(req.Extra["name"]),
			LastName1: core.CleanString(req.Extra["last_name1"]),
			LastName2: core.CleanString(req.Extra["last_name2"]),
			BirthDate: core.CleanString(req.Extra["birth_date"]),
		}
		if calc.Name == "" || calc.LastName1 == "" || calc.BirthDate == "" {
			return AutocompleteResult{}, core.NewValidationError(
				errMissingPersonal,
				core.FieldError{Field: "extra", Error: errMissingPersonal.Error()},
			)
		}
		value = strings.Join([]string{calc.Name, calc.LastName1, calc.LastName2, calc.BirthDate}, "|")
	default:
		return AutocompleteResult{}, core.NewValidationError(
			errUnavailable,
			core.FieldError{Field: "field_id", Error: errUnavailable.Error()},
		)
	}

	cl, creds, err := svc.client(org)
	if err != nil {
		return AutocompleteResult{}, err
	}

	// identical lookups in flight are coalesced; the shared call must not die with the caller that started it
	key := strings.Join([]string{creds.BaseURL, creds.ClientID, kind, value}, "|")
	sharedCtx := context.WithoutCancel(ctx)
	ch := svc.lookups.DoChan(key, func() (interface{}, error) {
		switch kind {
		case KindRFC:
			return cl.RFCData(sharedCtx, value)
		case KindCURP:
			return cl.CURPData(sharedCtx, value)
		default:
			return cl.CalculateRFC(sharedCtx, calc)
		}
	})

	var res interface{}
	select {
	case <-ctx.Done():
		return AutocompleteResult{}, errors.Wrapf(ctx.Err(), "querying moffin %s", kind)
	case r := <-ch:
		if r.Err != nil {
			return AutocompleteResult{}, errors.Wrapf(r.Err, "querying moffin %s", kind)
		}
		res = r.Val
	}

	data, _ := res.(map[string]interface{})
	return AutocompleteResult{
		Kind:    kind,
		Data:    data,
		Prefill: Prefill(t, fld, kind, data),
	}, nil
}

func (svc *service) CreateForm(ctx context.Context, org organization.Organization, nf NewForm, owner user.User) (Form, error) {
	exists, err := svc.repo.CheckFormSlugExists(ctx, org.ID, nf.Slug)
	if err != nil {
		return Form{}, errors.Wrap(err, "checking slug")
	}
	if exists {
		return Form{}, core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
	}

	cl, _, err := svc.client(org)
	if err != nil {
		return Form{}, err
	}
	resp, err := cl.CreateFormConfig(ctx, nf.Config())
	if err != nil {
		return Form{}, errors.Wrap(err, "creating moffin form config")
	}
	ref := remoteID(resp)
	if ref == "" {
		return Form{}, errMissingMoffinRef
	}

	now := time.Now().UTC()
	f, err := svc.repo.CreateForm(ctx, Form{
		Name:           nf.Name,
		Slug:           nf.Slug,
		AccountType:    nf.AccountType,
		ServiceQueries: nf.ServiceQueries,
		MoffinFormID:   ref,
		OrganizationID: org.ID,
		CreatedBy:      owner.ID,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	return f, errors.Wrap(err, "creating moffin form")
}

func (svc *service) QueryForms(ctx context.Context, orgID string) ([]Form, error) {
	forms, err := svc.repo.QueryForms(ctx, orgID)
	return forms, errors.Wrap(err, "querying moffin forms")
}

// remoteID extracts the id Moffin assigned to a created resource.
func remoteID(resp map[string]interface{}) string {
	for _, key := range []string{"id", "_id"} {
		switch v := resp[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case fmt.Stringer:
			return v.String()
		}
	}
	return ""
}
