package organization

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/user"
)

var (
	// errors
	ErrNotFound   = core.NewNotFoundError("organization not found")
	ErrSlugExists = errors.New("an organization with this slug already exists")
)

type (
	Repository interface {
		CheckSlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error)
		CreateOrganization(ctx context.Context, org Organization, exec ...core.DBExecutor) (Organization, error)
		// QueryOrganizations returns the organizations matching any of filter.CreatedBy or filter.IDs,
		// restricted by filter.IsActive when set.
		QueryOrganizations(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Organization, error)
		GetOrganization(ctx context.Context, id string, exec ...core.DBExecutor) (Organization, error)
		UpdateOrganization(ctx context.Context, org Organization, exec ...core.DBExecutor) (Organization, error)
	}

	Service interface {
		Create(ctx context.Context, no NewOrganization, owner user.User) (Organization, error)
		QueryForUser(ctx context.Context, usr user.User, ordering []core.DBOrdering) ([]Organization, error)
		GetByID(ctx context.Context, id string) (Organization, error)
		Update(ctx context.Context, org Organization, uo UpdateOrganization) (Organization, error)
		Deactivate(ctx context.Context, org Organization) (Organization, error)
		CanView(org Organization, usr user.User) bool
		CanManage(org Organization, usr user.User) bool
	}

	service struct {
		txr     core.TxRunner
		repo    Repository
		usrRepo user.Repository
	}
)

var _ Service = (*service)(nil)

func NewService(txr core.TxRunner, repo Repository, usrRepo user.Repository) Service {
	return &service{
		txr:     txr,
		repo:    repo,
		usrRepo: usrRepo,
	}
}

// Create saves a new Organization owned by owner. An owner without an organization is attached to the new one.
func (svc *service) Create(ctx context.Context, no NewOrganization, owner user.User) (Organization, error) {
	now := time.Now().UTC()
	org := Organization{
		Name:          no.Name,
		Slug:          no.Slug,
		MoffinAPIKey:  no.MoffinAPIKey,
		MoffinBaseURL: no.MoffinBaseURL,
		IsActive:      true,
		CreatedBy:     owner.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if org.MoffinBaseURL == "" {
		org.MoffinBaseURL = DefaultMoffinBaseURL
	}

	err := svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		exists, err := svc.repo.CheckSlugExists(ctx, org.Slug, exec)
		if err != nil {
			return errors.Wrap(err, "checking slug")
		}
		if exists {
			return core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
		}

		if org, err = svc.repo.CreateOrganization(ctx, org, exec); err != nil {
			return errors.Wrap(err, "creating organization")
		}

		if owner.OrganizationID == "" {
			owner.OrganizationID = org.ID
			owner.UpdatedAt = now
			if _, err = svc.usrRepo.UpdateUser(ctx, owner, exec); err != nil {
				return errors.Wrap(err, "attaching owner to organization")
			}
		}
		return nil
	})
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

// QueryForUser lists the active organizations usr created or belongs to, newest first by default.
func (svc *service) QueryForUser(ctx context.Context, usr user.User, ordering []core.DBOrdering) ([]Organization, error) {
	active := true
	filter := &QueryFilter{CreatedBy: usr.ID, IsActive: &active}
	if usr.OrganizationID != "" {
		filter.IDs = []string{usr.OrganizationID}
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	orgs, err := svc.repo.QueryOrganizations(ctx, filter, ordering)
	return orgs, errors.Wrap(err, "querying organizations")
}

func (svc *service) GetByID(ctx context.Context, id string) (Organization, error) {
	return svc.repo.GetOrganization(ctx, id)
}

func (svc *service) Update(ctx context.Context, org Organization, uo UpdateOrganization) (Organization, error) {
	if uo.Name != "" {
		org.Name = uo.Name
	}
	if uo.MoffinAPIKey != "" {
		org.MoffinAPIKey = uo.MoffinAPIKey
	}
	if uo.MoffinBaseURL != "" {
		org.MoffinBaseURL = uo.MoffinBaseURL
	}
	if uo.IsActive != nil {
		org.IsActive = *uo.IsActive
	}
	org.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateOrganization(ctx, org)
}

func (svc *service) Deactivate(ctx context.Context, org Organization) (Organization, error) {
	org.IsActive = false
	org.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateOrganization(ctx, org)
}

func (svc *service) CanView(org Organization, usr user.User) bool {
	return svc.CanManage(org, usr) || (usr.OrganizationID != "" && usr.OrganizationID == org.ID)
}

// CanManage is true for the creator of the organization and for its admins.
func (svc *service) CanManage(org Organization, usr user.User) bool {
	if org.CreatedBy == usr.ID {
		return true
	}
	return usr.IsAdmin() && usr.OrganizationID == org.ID
}
