package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/user"
)

const userTable = `"user"`

var userColumns = []string{
	"id", "name", "email", "role", "organization_id", "is_active", "password_hash",
	"created_at", "updated_at", "last_login",
}

type userRow struct {
	ID             string      `db:"id"`
	Name           string      `db:"name"`
	Email          string      `db:"email"`
	Role           string      `db:"role"`
	OrganizationID null.String `db:"organization_id"`
	IsActive       bool        `db:"is_active"`
	PasswordHash   []byte      `db:"password_hash"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
	LastLogin      null.Time   `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:             usr.ID,
		Name:           usr.Name,
		Email:          usr.Email,
		Role:           usr.Role,
		OrganizationID: null.NewString(usr.OrganizationID, usr.OrganizationID != ""),
		IsActive:       usr.IsActive,
		PasswordHash:   usr.PasswordHash,
		CreatedAt:      usr.CreatedAt.UTC(),
		UpdatedAt:      usr.UpdatedAt.UTC(),
		LastLogin:      null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email,
		Role:           r.Role,
		OrganizationID: r.OrganizationID.String,
		IsActive:       r.IsActive,
		PasswordHash:   r.PasswordHash,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		LastLogin:      r.LastLogin.Time.UTC(),
	}
}

func (r userRow) values() []interface{} {
	return []interface{}{
		r.ID, r.Name, r.Email, r.Role, r.OrganizationID, r.IsActive, r.PasswordHash,
		r.CreatedAt, r.UpdatedAt, r.LastLogin,
	}
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{baseRepository{exec: exec}}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	qb := psql.Select("1").From(userTable).Where(sq.Eq{"email": email})
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		qb = qb.Where(sq.NotEq{"id": ids})
	}

	exists, err := repo.exists(ctx, exec, qb)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row := toUserRow(usr)
	qb := psql.Insert(userTable).Columns(userColumns...).Values(row.values()...)
	if _, err := repo.run(ctx, exec, qb); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	qb := psql.Select(userColumns...).From(userTable)

	if filter != nil {
		if filter.Search != "" {
			qb = qb.Where(ilike([]string{"name", "email"}, filter.Search))
		}
		if len(filter.Roles) > 0 {
			qb = qb.Where(sq.Eq{"role": filter.Roles})
		}
		if filter.IsActive != nil {
			qb = qb.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if filter.OrganizationID != "" {
			qb = qb.Where(sq.Eq{"organization_id": filter.OrganizationID})
		}
		if !filter.CreatedFrom.IsZero() {
			qb = qb.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
		}
		if !filter.CreatedTo.IsZero() {
			qb = qb.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
		}
	}
	qb = qb.OrderBy(orderBy(ordering)...)

	var rows []userRow
	if err := repo.sel(ctx, exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	qb := psql.Select(userColumns...).From(userTable)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"id": filter.ID})
	case filter.Email != "":
		qb = qb.Where(sq.Eq{"email": filter.Email})
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.get(ctx, exec, &row, qb); err != nil {
		return user.User{}, trapNoRows(err, user.ErrNotFound, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := toUserRow(usr)
	qb := psql.Update(userTable).
		SetMap(map[string]interface{}{
			"name":            row.Name,
			"email":           row.Email,
			"role":            row.Role,
			"organization_id": row.OrganizationID,
			"is_active":       row.IsActive,
			"password_hash":   row.PasswordHash,
			"updated_at":      row.UpdatedAt,
			"last_login":      row.LastLogin,
		}).
		Where(sq.Eq{"id": row.ID})

	n, err := repo.run(ctx, exec, qb)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.run(ctx, exec, psql.Delete(userTable).Where(sq.Eq{"id": ids}))
	return errors.Wrap(err, "deleting users")
}
