package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/moffin"
)

const moffinFormTable = "moffin_form"

var moffinFormColumns = []string{
	"id", "name", "slug", "account_type", "service_queries", "moffin_form_id", "organization_id",
	"created_by", "is_active", "created_at", "updated_at",
}

type moffinFormRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Slug           string         `db:"slug"`
	AccountType    string         `db:"account_type"`
	ServiceQueries types.JSONText `db:"service_queries"`
	MoffinFormID   string         `db:"moffin_form_id"`
	OrganizationID string         `db:"organization_id"`
	CreatedBy      null.String    `db:"created_by"`
	IsActive       bool           `db:"is_active"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r moffinFormRow) toForm() (moffin.Form, error) {
	f := moffin.Form{
		ID:             r.ID,
		Name:           r.Name,
		Slug:           r.Slug,
		AccountType:    r.AccountType,
		MoffinFormID:   r.MoffinFormID,
		OrganizationID: r.OrganizationID,
		CreatedBy:      r.CreatedBy.String,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	return f, fromJSON(r.ServiceQueries, &f.ServiceQueries)
}

type moffinRepository struct {
	baseRepository
}

var _ moffin.Repository = (*moffinRepository)(nil) // interface compliance check

func NewMoffinRepository(exec core.DBExecutor) moffin.Repository {
	return &moffinRepository{baseRepository{exec: exec}}
}

func (repo *moffinRepository) CheckFormSlugExists(ctx context.Context, orgID, slug string, exec ...core.DBExecutor) (bool, error) {
	qb := psql.Select("1").From(moffinFormTable).Where(sq.Eq{"organization_id": orgID, "slug": slug})
	exists, err := repo.exists(ctx, exec, qb)
	return exists, errors.Wrap(err, "checking moffin form slug")
}

func (repo *moffinRepository) CreateForm(ctx context.Context, f moffin.Form, exec ...core.DBExecutor) (moffin.Form, error) {
	f.ID = uuid.New().String()
	queries, err := toJSON(f.ServiceQueries)
	if err != nil {
		return moffin.Form{}, err
	}
	qb := psql.Insert(moffinFormTable).
		Columns(moffinFormColumns...).
		Values(
			f.ID, f.Name, f.Slug, f.AccountType, queries, f.MoffinFormID, f.OrganizationID,
			null.NewString(f.CreatedBy, f.CreatedBy != ""), f.IsActive, f.CreatedAt.UTC(), f.UpdatedAt.UTC(),
		)
	if _, err := repo.run(ctx, exec, qb); err != nil {
		if isUniqueViolation(err) {
			return moffin.Form{}, moffin.ErrSlugExists
		}
		return moffin.Form{}, errors.Wrap(err, "inserting moffin form")
	}
	return f, nil
}

func (repo *moffinRepository) QueryForms(ctx context.Context, orgID string, exec ...core.DBExecutor) ([]moffin.Form, error) {
	qb := psql.Select(moffinFormColumns...).
		From(moffinFormTable).
		Where(sq.Eq{"organization_id": orgID, "is_active": true}).
		OrderBy("created_at DESC")

	var rows []moffinFormRow
	if err := repo.sel(ctx, exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying moffin forms")
	}
	forms := make([]moffin.Form, 0, len(rows))
	for _, r := range rows {
		f, err := r.toForm()
		if err != nil {
			return nil, err
		}
		forms = append(forms, f)
	}
	return forms, nil
}
