package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
)

const templateTable = "form_template"

var templateColumns = []string{
	"id", "title", "description", "slug", "sections", "settings", "permissions", "is_public", "tags",
	"organization_id", "created_by", "created_at", "updated_at",
}

type templateRow struct {
	ID             string         `db:"id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	Slug           string         `db:"slug"`
	Sections       types.JSONText `db:"sections"`
	Settings       types.JSONText `db:"settings"`
	Permissions    types.JSONText `db:"permissions"`
	IsPublic       bool           `db:"is_public"`
	Tags           pq.StringArray `db:"tags"`
	OrganizationID null.String    `db:"organization_id"`
	CreatedBy      null.String    `db:"created_by"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func toTemplateRow(t form.Template) (templateRow, error) {
	r := templateRow{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Slug:           t.Slug,
		IsPublic:       t.IsPublic,
		Tags:           pq.StringArray(t.Tags),
		OrganizationID: null.NewString(t.OrganizationID, t.OrganizationID != ""),
		CreatedBy:      null.NewString(t.CreatedBy, t.CreatedBy != ""),
		CreatedAt:      t.CreatedAt.UTC(),
		UpdatedAt:      t.UpdatedAt.UTC(),
	}
	if r.Tags == nil {
		r.Tags = pq.StringArray{}
	}
	sections := t.Sections
	if sections == nil {
		sections = []form.Section{}
	}

	var err error
	if r.Sections, err = toJSON(sections); err != nil {
		return templateRow{}, err
	}
	if r.Settings, err = toJSON(t.Settings); err != nil {
		return templateRow{}, err
	}
	if r.Permissions, err = toJSON(t.Permissions); err != nil {
		return templateRow{}, err
	}
	return r, nil
}

func (r templateRow) toTemplate() (form.Template, error) {
	t := form.Template{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		Slug:           r.Slug,
		IsPublic:       r.IsPublic,
		Tags:           []string(r.Tags),
		OrganizationID: r.OrganizationID.String,
		CreatedBy:      r.CreatedBy.String,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if err := fromJSON(r.Sections, &t.Sections); err != nil {
		return form.Template{}, err
	}
	if err := fromJSON(r.Settings, &t.Settings); err != nil {
		return form.Template{}, err
	}
	if err := fromJSON(r.Permissions, &t.Permissions); err != nil {
		return form.Template{}, err
	}
	return t, nil
}

type formRepository struct {
	baseRepository
}

var _ form.Repository = (*formRepository)(nil) // interface compliance check

func NewFormRepository(exec core.DBExecutor) form.Repository {
	return &formRepository{baseRepository{exec: exec}}
}

func (repo *formRepository) CheckSlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error) {
	exists, err := repo.exists(ctx, exec, psql.Select("1").From(templateTable).Where(sq.Eq{"slug": slug}))
	return exists, errors.Wrap(err, "checking form slug")
}

func (repo *formRepository) CreateTemplate(ctx context.Context, t form.Template, exec ...core.DBExecutor) (form.Template, error) {
	t.ID = uuid.New().String()
	r, err := toTemplateRow(t)
	if err != nil {
		return form.Template{}, err
	}
	qb := psql.Insert(templateTable).
		Columns(templateColumns...).
		Values(
			r.ID, r.Title, r.Description, r.Slug, r.Sections, r.Settings, r.Permissions, r.IsPublic, r.Tags,
			r.OrganizationID, r.CreatedBy, r.CreatedAt, r.UpdatedAt,
		)
	if _, err := repo.run(ctx, exec, qb); err != nil {
		return form.Template{}, errors.Wrap(err, "inserting template")
	}
	return t, nil
}

func (repo *formRepository) QueryTemplates(ctx context.Context, filter *form.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]form.Template, error) {
	qb := psql.Select(templateColumns...).From(templateTable)
	if filter != nil {
		if filter.OrganizationID != "" {
			qb = qb.Where(sq.Eq{"organization_id": filter.OrganizationID})
		}
		if filter.CreatedBy != "" {
			qb = qb.Where(sq.Eq{"created_by": filter.CreatedBy})
		}
		if filter.Search != "" {
			qb = qb.Where(ilike([]string{"title", "description"}, filter.Search))
		}
		if filter.Tag != "" {
			qb = qb.Where(sq.Expr("? = ANY (tags)", filter.Tag))
		}
		if filter.IsPublic != nil {
			qb = qb.Where(sq.Eq{"is_public": *filter.IsPublic})
		}
		if !filter.CreatedFrom.IsZero() {
			qb = qb.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
		}
		if !filter.CreatedTo.IsZero() {
			qb = qb.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
		}
	}
	qb = qb.OrderBy(orderBy(ordering)...)

	var rows []templateRow
	if err := repo.sel(ctx, exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying templates")
	}
	templates := make([]form.Template, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTemplate()
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, nil
}

func (repo *formRepository) GetTemplate(ctx context.Context, filter form.GetFilter, exec ...core.DBExecutor) (form.Template, error) {
	qb := psql.Select(templateColumns...).From(templateTable)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return form.Template{}, form.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"id": filter.ID})
	case filter.Slug != "":
		qb = qb.Where(sq.Eq{"slug": filter.Slug})
	default:
		return form.Template{}, form.ErrNotFound
	}

	var r templateRow
	if err := repo.get(ctx, exec, &r, qb); err != nil {
		return form.Template{}, trapNoRows(err, form.ErrNotFound, "getting template")
	}
	return r.toTemplate()
}

func (repo *formRepository) UpdateTemplate(ctx context.Context, t form.Template, exec ...core.DBExecutor) (form.Template, error) {
	r, err := toTemplateRow(t)
	if err != nil {
		return form.Template{}, err
	}
	qb := psql.Update(templateTable).
		SetMap(map[string]interface{}{
			"title":       r.Title,
			"description": r.Description,
			"sections":    r.Sections,
			"settings":    r.Settings,
			"permissions": r.Permissions,
			"is_public":   r.IsPublic,
			"tags":        r.Tags,
			"updated_at":  r.UpdatedAt,
		}).
		Where(sq.Eq{"id": r.ID})

	n, err := repo.run(ctx, exec, qb)
	if err != nil {
		return form.Template{}, errors.Wrap(err, "updating template")
	}
	if n == 0 {
		return form.Template{}, form.ErrNotFound
	}
	return t, nil
}

// DeleteTemplate relies on ON DELETE CASCADE for sessions, submissions and events.
func (repo *formRepository) DeleteTemplate(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := repo.run(ctx, exec, psql.Delete(templateTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting template")
	}
	if n == 0 {
		return form.ErrNotFound
	}
	return nil
}
