package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/moffin"
)

type moffinRepository struct {
	db *DB
}

var _ moffin.Repository = (*moffinRepository)(nil) // interface compliance check

func NewMoffinRepository(db *DB) moffin.Repository {
	return &moffinRepository{db: db}
}

func (repo *moffinRepository) CheckFormSlugExists(_ context.Context, orgID, slug string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, f := range repo.db.moffinForms {
		if f.OrganizationID == orgID && f.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (repo *moffinRepository) CreateForm(_ context.Context, f moffin.Form, _ ...core.DBExecutor) (moffin.Form, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	f.ID = uuid.New().String()
	repo.db.moffinForms[f.ID] = f
	return f, nil
}

func (repo *moffinRepository) QueryForms(_ context.Context, orgID string, _ ...core.DBExecutor) ([]moffin.Form, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	forms := make([]moffin.Form, 0)
	for _, f := range repo.db.moffinForms {
		if f.OrganizationID == orgID && f.IsActive {
			forms = append(forms, f)
		}
	}
	sortBy(forms, []core.DBOrdering{{Field: "created_at"}}, func(a, b moffin.Form, _ string) int {
		return compareTimes(a.CreatedAt, b.CreatedAt)
	})
	return forms, nil
}
