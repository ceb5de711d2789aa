package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/session"
)

type formRepository struct {
	db *DB
}

var _ form.Repository = (*formRepository)(nil) // interface compliance check

func NewFormRepository(db *DB) form.Repository {
	return &formRepository{db: db}
}

func (repo *formRepository) CheckSlugExists(_ context.Context, slug string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.templates {
		if t.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (repo *formRepository) CreateTemplate(_ context.Context, t form.Template, _ ...core.DBExecutor) (form.Template, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = uuid.New().String()
	repo.db.templates[t.ID] = clone(t)
	return t, nil
}

func compareTemplates(a, b form.Template, field string) int {
	switch field {
	case "title":
		return compareStrings(a.Title, b.Title)
	case "slug":
		return compareStrings(a.Slug, b.Slug)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	}
	return 0
}

func matchTemplate(t form.Template, filter *form.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.OrganizationID != "" && t.OrganizationID != filter.OrganizationID {
		return false
	}
	if filter.CreatedBy != "" && t.CreatedBy != filter.CreatedBy {
		return false
	}
	if filter.Search != "" && !containsFold(t.Title, filter.Search) && !containsFold(t.Description, filter.Search) {
		return false
	}
	if filter.Tag != "" && !core.StringInSlice(filter.Tag, t.Tags) {
		return false
	}
	if filter.IsPublic != nil && t.IsPublic != *filter.IsPublic {
		return false
	}
	return inRange(t.CreatedAt, filter.CreatedFrom, filter.CreatedTo)
}

func (repo *formRepository) QueryTemplates(_ context.Context, filter *form.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]form.Template, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	templates := make([]form.Template, 0)
	for _, t := range repo.db.templates {
		if matchTemplate(t, filter) {
			templates = append(templates, clone(t))
		}
	}
	sortBy(templates, ordering, compareTemplates)
	return templates, nil
}

func (repo *formRepository) GetTemplate(_ context.Context, filter form.GetFilter, _ ...core.DBExecutor) (form.Template, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if t, ok := repo.db.templates[filter.ID]; ok {
			return clone(t), nil
		}
		return form.Template{}, form.ErrNotFound
	}
	if filter.Slug != "" {
		for _, t := range repo.db.templates {
			if t.Slug == filter.Slug {
				return clone(t), nil
			}
		}
	}
	return form.Template{}, form.ErrNotFound
}

func (repo *formRepository) UpdateTemplate(_ context.Context, t form.Template, _ ...core.DBExecutor) (form.Template, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.templates[t.ID]; !ok {
		return form.Template{}, form.ErrNotFound
	}
	repo.db.templates[t.ID] = clone(t)
	return t, nil
}

// DeleteTemplate mirrors the ON DELETE CASCADE of the form tables.
func (repo *formRepository) DeleteTemplate(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.templates[id]; !ok {
		return form.ErrNotFound
	}
	delete(repo.db.templates, id)

	for sid, s := range repo.db.sessions {
		if s.FormID == id {
			delete(repo.db.sessions, sid)
		}
	}
	for sid, sub := range repo.db.submissions {
		if sub.FormID == id {
			delete(repo.db.submissions, sid)
		}
	}
	events := repo.db.events[:0:0]
	for _, evt := range repo.db.events {
		if evt.FormID != id {
			events = append(events, evt)
		}
	}
	repo.db.events = events
	return nil
}

// inScope reports whether the form formID belongs to scope. Callers hold the lock.
func (db *DB) inScope(formID string, scope session.Scope) bool {
	if scope.OrganizationID == "" && scope.CreatedBy == "" {
		return true
	}
	t, ok := db.templates[formID]
	if !ok {
		return false
	}
	if scope.OrganizationID != "" {
		return t.OrganizationID == scope.OrganizationID
	}
	return t.CreatedBy == scope.CreatedBy
}
