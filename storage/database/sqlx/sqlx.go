// Package sqlxrepos implements the repositories on PostgreSQL with sqlx and squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/forma/core"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type baseRepository struct {
	exec core.DBExecutor
}

func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo baseRepository) get(ctx context.Context, exec []core.DBExecutor, dest interface{}, qb sq.Sqlizer) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return repo.getExec(exec).GetContext(ctx, dest, query, args...)
}

func (repo baseRepository) sel(ctx context.Context, exec []core.DBExecutor, dest interface{}, qb sq.Sqlizer) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return repo.getExec(exec).SelectContext(ctx, dest, query, args...)
}

func (repo baseRepository) run(ctx context.Context, exec []core.DBExecutor, qb sq.Sqlizer) (int64, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (repo baseRepository) exists(ctx context.Context, exec []core.DBExecutor, qb sq.SelectBuilder) (bool, error) {
	query, args, err := qb.Prefix("SELECT EXISTS (").Suffix(")").ToSql()
	if err != nil {
		return false, errors.Wrap(err, "building query")
	}
	var exists bool
	err = repo.getExec(exec).GetContext(ctx, &exists, query, args...)
	return exists, err
}

// countBy returns {value of column: count} for the rows of qb.
func (repo baseRepository) countBy(ctx context.Context, exec []core.DBExecutor, column string, qb sq.SelectBuilder) (map[string]int, error) {
	var rows []struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	qb = qb.Columns(column+" AS key", "COUNT(*) AS count").GroupBy(column)
	if err := repo.sel(ctx, exec, &rows, qb); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Key] = r.Count
	}
	return counts, nil
}

// trapNoRows maps "no rows" errors to notFound.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

func orderBy(ordering []core.DBOrdering) []string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return clauses
}

func toJSON(v interface{}) (types.JSONText, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encoding json column")
	}
	return types.JSONText(data), nil
}

func fromJSON(data types.JSONText, v interface{}) error {
	if len(data) == 0 || strings.TrimSpace(string(data)) == "null" {
		return nil
	}
	return errors.Wrap(data.Unmarshal(v), "decoding json column")
}

func ilike(columns []string, search string) sq.Or {
	val := "%" + search + "%"
	or := make(sq.Or, 0, len(columns))
	for _, col := range columns {
		or = append(or, sq.ILike{col: val})
	}
	return or
}
