package form

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/user"
)

const defaultSlug = "form"

var (
	// errors
	ErrNotFound = core.NewNotFoundError("form not found")

	// OrderingFields lists the fields templates can be sorted by.
	OrderingFields = []string{"title", "slug", "created_at", "updated_at"}
)

type (
	Repository interface {
		CheckSlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error)
		CreateTemplate(ctx context.Context, t Template, exec ...core.DBExecutor) (Template, error)
		// QueryTemplates applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Template.Title or Template.Description.
		QueryTemplates(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Template, error)
		GetTemplate(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Template, error)
		UpdateTemplate(ctx context.Context, t Template, exec ...core.DBExecutor) (Template, error)
		// DeleteTemplate also removes the sessions, submissions and events of the template.
		DeleteTemplate(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, nt NewTemplate, owner user.User) (Template, error)
		Update(ctx context.Context, t Template, nt NewTemplate) (Template, error)
		Delete(ctx context.Context, t Template) error
		// Import creates the template with the given slug, or updates the one already using it.
		Import(ctx context.Context, slug string, nt NewTemplate, owner user.User) (Template, bool, error)
		GetByID(ctx context.Context, id string) (Template, error)
		GetBySlug(ctx context.Context, slug string) (Template, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Template, error)
		// QueryForUser lists the templates of usr's organization, or the ones usr created when they have none.
		QueryForUser(ctx context.Context, usr user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Template, error)
		CanEdit(t Template, usr user.User) bool
		CanDelete(t Template, usr user.User) bool
	}

	service struct {
		txr  core.TxRunner
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(txr core.TxRunner, repo Repository) Service {
	return &service{
		txr:  txr,
		repo: repo,
	}
}

// uniqueSlug suffixes the slugified title with -1, -2, ... until it is free.
func (svc *service) uniqueSlug(ctx context.Context, title string, exec core.DBExecutor) (string, error) {
	base := core.Slugify(title)
	if base == "" {
		base = defaultSlug
	}
	slug := base
	for i := 1; ; i++ {
		exists, err := svc.repo.CheckSlugExists(ctx, slug, exec)
		if err != nil {
			return "", errors.Wrap(err, "checking slug")
		}
		if !exists {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(i)
	}
}

func (svc *service) Create(ctx context.Context, nt NewTemplate, owner user.User) (Template, error) {
	now := time.Now().UTC()
	t := Template{
		Title:          nt.Title,
		Description:    nt.Description,
		Sections:       nt.Sections,
		Settings:       nt.Settings,
		Permissions:    nt.Permissions,
		IsPublic:       nt.IsPublic,
		Tags:           nt.Tags,
		OrganizationID: owner.OrganizationID,
		CreatedBy:      owner.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		slug, err := svc.uniqueSlug(ctx, t.Title, exec)
		if err != nil {
			return err
		}
		t.Slug = slug
		t, err = svc.repo.CreateTemplate(ctx, t, exec)
		return errors.Wrap(err, "creating template")
	})
	if err != nil {
		return Template{}, err
	}
	return t, nil
}

// Update replaces the content of t with nt. The slug never changes so that shared links keep working.
func (svc *service) Update(ctx context.Context, t Template, nt NewTemplate) (Template, error) {
	t.Title = nt.Title
	t.Description = nt.Description
	t.Sections = nt.Sections
	t.Settings = nt.Settings
	t.Permissions = nt.Permissions
	t.IsPublic = nt.IsPublic
	t.Tags = nt.Tags
	t.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTemplate(ctx, t)
}

func (svc *service) Import(ctx context.Context, slug string, nt NewTemplate, owner user.User) (Template, bool, error) {
	slug = core.Slugify(slug)
	if slug == "" {
		return Template{}, false, errors.New("import slug is required")
	}

	var (
		t       Template
		created bool
	)
	err := svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		existing, err := svc.repo.GetTemplate(ctx, GetFilter{Slug: slug}, exec)
		switch {
		case err == nil:
			existing.Title = nt.Title
			existing.Description = nt.Description
			existing.Sections = nt.Sections
			existing.Settings = nt.Settings
			existing.Permissions = nt.Permissions
			existing.IsPublic = nt.IsPublic
			existing.Tags = nt.Tags
			existing.UpdatedAt = time.Now().UTC()
			t, err = svc.repo.UpdateTemplate(ctx, existing, exec)
			return errors.Wrap(err, "updating template")
		case core.IsNotFound(err):
			now := time.Now().UTC()
			t, err = svc.repo.CreateTemplate(ctx, Template{
				Title:          nt.Title,
				Description:    nt.Description,
				Slug:           slug,
				Sections:       nt.Sections,
				Settings:       nt.Settings,
				Permissions:    nt.Permissions,
				IsPublic:       nt.IsPublic,
				Tags:           nt.Tags,
				OrganizationID: owner.OrganizationID,
				CreatedBy:      owner.ID,
				CreatedAt:      now,
				UpdatedAt:      now,
			}, exec)
			created = true
			return errors.Wrap(err, "creating template")
		default:
			return errors.Wrap(err, "getting template")
		}
	})
	if err != nil {
		return Template{}, false, err
	}
	return t, created, nil
}

func (svc *service) Delete(ctx context.Context, t Template) error {
	return svc.repo.DeleteTemplate(ctx, t.ID)
}

func (svc *service) GetByID(ctx context.Context, id string) (Template, error) {
	return svc.repo.GetTemplate(ctx, GetFilter{ID: id})
}

func (svc *service) GetBySlug(ctx context.Context, slug string) (Template, error) {
	return svc.repo.GetTemplate(ctx, GetFilter{Slug: core.CleanString(slug, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Template, error) {
	ordering = core.FilterOrderings(ordering, OrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	templates, err := svc.repo.QueryTemplates(ctx, filter, ordering)
	return templates, errors.Wrap(err, "querying templates")
}

func (svc *service) QueryForUser(ctx context.Context, usr user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Template, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if usr.OrganizationID != "" {
		filter.OrganizationID = usr.OrganizationID
	} else {
		filter.CreatedBy = usr.ID
	}
	return svc.Query(ctx, filter, ordering)
}

// CanEdit is true for the owner, for admins of the owning organization and for its members
// whose role is allowed by Permissions.CanEdit.
func (svc *service) CanEdit(t Template, usr user.User) bool {
	if t.CreatedBy == usr.ID {
		return true
	}
	if t.OrganizationID == "" || t.OrganizationID != usr.OrganizationID {
		return false
	}
	return usr.IsAdmin() || t.Permissions.AllowsEdit(usr.Role)
}

// CanDelete is true for the owner and for admins of the owning organization.
func (svc *service) CanDelete(t Template, usr user.User) bool {
	if t.CreatedBy == usr.ID {
		return true
	}
	return usr.IsAdmin() && t.OrganizationID != "" && t.OrganizationID == usr.OrganizationID
}
