package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/organization"
)

type organizationRepository struct {
	db *DB
}

var _ organization.Repository = (*organizationRepository)(nil) // interface compliance check

func NewOrganizationRepository(db *DB) organization.Repository {
	return &organizationRepository{db: db}
}

func (repo *organizationRepository) CheckSlugExists(_ context.Context, slug string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, org := range repo.db.orgs {
		if org.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (repo *organizationRepository) CreateOrganization(_ context.Context, org organization.Organization, _ ...core.DBExecutor) (organization.Organization, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	org.ID = uuid.New().String()
	repo.db.orgs[org.ID] = org
	return org, nil
}

func compareOrganizations(a, b organization.Organization, field string) int {
	switch field {
	case "name":
		return compareStrings(a.Name, b.Name)
	case "slug":
		return compareStrings(a.Slug, b.Slug)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	}
	return 0
}

func (repo *organizationRepository) QueryOrganizations(_ context.Context, filter *organization.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]organization.Organization, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	orgs := make([]organization.Organization, 0)
	for _, org := range repo.db.orgs {
		if filter != nil {
			if filter.CreatedBy != "" || len(filter.IDs) > 0 {
				owned := filter.CreatedBy != "" && org.CreatedBy == filter.CreatedBy
				if !owned && !core.StringInSlice(org.ID, filter.IDs) {
					continue
				}
			}
			if filter.IsActive != nil && org.IsActive != *filter.IsActive {
				continue
			}
		}
		orgs = append(orgs, org)
	}
	sortBy(orgs, ordering, compareOrganizations)
	return orgs, nil
}

func (repo *organizationRepository) GetOrganization(_ context.Context, id string, _ ...core.DBExecutor) (organization.Organization, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if org, ok := repo.db.orgs[id]; ok {
		return org, nil
	}
	return organization.Organization{}, organization.ErrNotFound
}

func (repo *organizationRepository) UpdateOrganization(_ context.Context, org organization.Organization, _ ...core.DBExecutor) (organization.Organization, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.orgs[org.ID]; !ok {
		return organization.Organization{}, organization.ErrNotFound
	}
	repo.db.orgs[org.ID] = org
	return org, nil
}
