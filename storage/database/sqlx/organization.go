package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/organization"
)

const organizationTable = "organization"

var organizationColumns = []string{
	"id", "name", "slug", "moffin_api_key", "moffin_base_url", "is_active", "created_by", "created_at", "updated_at",
}

type organizationRow struct {
	ID            string      `db:"id"`
	Name          string      `db:"name"`
	Slug          string      `db:"slug"`
	MoffinAPIKey  null.String `db:"moffin_api_key"`
	MoffinBaseURL null.String `db:"moffin_base_url"`
	IsActive      bool        `db:"is_active"`
	CreatedBy     null.String `db:"created_by"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func toOrganizationRow(org organization.Organization) organizationRow {
	return organizationRow{
		ID:            org.ID,
		Name:          org.Name,
		Slug:          org.Slug,
		MoffinAPIKey:  null.NewString(org.MoffinAPIKey, org.MoffinAPIKey != ""),
		MoffinBaseURL: null.NewString(org.MoffinBaseURL, org.MoffinBaseURL != ""),
		IsActive:      org.IsActive,
		CreatedBy:     null.NewString(org.CreatedBy, org.CreatedBy != ""),
		CreatedAt:     org.CreatedAt.UTC(),
		UpdatedAt:     org.UpdatedAt.UTC(),
	}
}

func (r organizationRow) toOrganization() organization.Organization {
	return organization.Organization{
		ID:            r.ID,
		Name:          r.Name,
		Slug:          r.Slug,
		MoffinAPIKey:  r.MoffinAPIKey.String,
		MoffinBaseURL: r.MoffinBaseURL.String,
		IsActive:      r.IsActive,
		CreatedBy:     r.CreatedBy.String,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type organizationRepository struct {
	baseRepository
}

var _ organization.Repository = (*organizationRepository)(nil) // interface compliance check

func NewOrganizationRepository(exec core.DBExecutor) organization.Repository {
	return &organizationRepository{baseRepository{exec: exec}}
}

func (repo *organizationRepository) CheckSlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error) {
	exists, err := repo.exists(ctx, exec, psql.Select("1").From(organizationTable).Where(sq.Eq{"slug": slug}))
	return exists, errors.Wrap(err, "checking organization slug")
}

func (repo *organizationRepository) CreateOrganization(ctx context.Context, org organization.Organization, exec ...core.DBExecutor) (organization.Organization, error) {
	org.ID = uuid.New().String()
	r := toOrganizationRow(org)
	qb := psql.Insert(organizationTable).
		Columns(organizationColumns...).
		Values(r.ID, r.Name, r.Slug, r.MoffinAPIKey, r.MoffinBaseURL, r.IsActive, r.CreatedBy, r.CreatedAt, r.UpdatedAt)
	if _, err := repo.run(ctx, exec, qb); err != nil {
		if isUniqueViolation(err) {
			return organization.Organization{}, organization.ErrSlugExists
		}
		return organization.Organization{}, errors.Wrap(err, "inserting organization")
	}
	return r.toOrganization(), nil
}

func (repo *organizationRepository) QueryOrganizations(ctx context.Context, filter *organization.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]organization.Organization, error) {
	qb := psql.Select(organizationColumns...).From(organizationTable)
	if filter != nil {
		var owned sq.Or
		if filter.CreatedBy != "" {
			owned = append(owned, sq.Eq{"created_by": filter.CreatedBy})
		}
		if len(filter.IDs) > 0 {
			owned = append(owned, sq.Eq{"id": filter.IDs})
		}
		if len(owned) > 0 {
			qb = qb.Where(owned)
		}
		if filter.IsActive != nil {
			qb = qb.Where(sq.Eq{"is_active": *filter.IsActive})
		}
	}
	qb = qb.OrderBy(orderBy(ordering)...)

	var rows []organizationRow
	if err := repo.sel(ctx, exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying organizations")
	}
	orgs := make([]organization.Organization, 0, len(rows))
	for _, r := range rows {
		orgs = append(orgs, r.toOrganization())
	}
	return orgs, nil
}

func (repo *organizationRepository) GetOrganization(ctx context.Context, id string, exec ...core.DBExecutor) (organization.Organization, error) {
	if _, err := uuid.Parse(id); err != nil {
		return organization.Organization{}, organization.ErrNotFound
	}
	var r organizationRow
	qb := psql.Select(organizationColumns...).From(organizationTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, exec, &r, qb); err != nil {
		return organization.Organization{}, trapNoRows(err, organization.ErrNotFound, "getting organization")
	}
	return r.toOrganization(), nil
}

func (repo *organizationRepository) UpdateOrganization(ctx context.Context, org organization.Organization, exec ...core.DBExecutor) (organization.Organization, error) {
	r := toOrganizationRow(org)
	qb := psql.Update(organizationTable).
		SetMap(map[string]interface{}{
			"name":            r.Name,
			"moffin_api_key":  r.MoffinAPIKey,
			"moffin_base_url": r.MoffinBaseURL,
			"is_active":       r.IsActive,
			"updated_at":      r.UpdatedAt,
		}).
		Where(sq.Eq{"id": r.ID})

	n, err := repo.run(ctx, exec, qb)
	if err != nil {
		return organization.Organization{}, errors.Wrap(err, "updating organization")
	}
	if n == 0 {
		return organization.Organization{}, organization.ErrNotFound
	}
	return r.toOrganization(), nil
}
