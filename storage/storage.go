// Package storage picks the storage backend configured for the apps and builds its repositories.
package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/moffin"
	"github.com/trezcool/forma/core/organization"
	"github.com/trezcool/forma/core/session"
	"github.com/trezcool/forma/core/user"
	"github.com/trezcool/forma/storage/database"
	inmemdb "github.com/trezcool/forma/storage/database/inmem"
	sqlxrepos "github.com/trezcool/forma/storage/database/sqlx"
)

type Repositories struct {
	Tx            core.TxRunner
	Users         user.Repository
	Organizations organization.Repository
	Forms         form.Repository
	Sessions      session.Repository
	Submissions   session.SubmissionRepository
	Events        session.EventRepository
	Moffin        moffin.Repository

	close func() error
}

// Close releases the database connections, if any.
func (r *Repositories) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// NewMemory returns repositories backed by a fresh in-memory database.
func NewMemory() *Repositories {
	db := inmemdb.New()
	return &Repositories{
		Tx:            db,
		Users:         inmemdb.NewUserRepository(db),
		Organizations: inmemdb.NewOrganizationRepository(db),
		Forms:         inmemdb.NewFormRepository(db),
		Sessions:      inmemdb.NewSessionRepository(db),
		Submissions:   inmemdb.NewSubmissionRepository(db),
		Events:        inmemdb.NewEventRepository(db),
		Moffin:        inmemdb.NewMoffinRepository(db),
	}
}

// Open returns the repositories of the configured storage.
// With PostgreSQL, the database must exist and be migrated.
func Open(ctx context.Context, conf *core.Config) (*Repositories, error) {
	if conf.UseMemoryStorage() {
		return NewMemory(), nil
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	return NewDatabase(db), nil
}

// NewDatabase returns repositories backed by db; closing them closes db.
func NewDatabase(db *sqlx.DB) *Repositories {
	return &Repositories{
		Tx:            database.NewTxRunner(db),
		Users:         sqlxrepos.NewUserRepository(db),
		Organizations: sqlxrepos.NewOrganizationRepository(db),
		Forms:         sqlxrepos.NewFormRepository(db),
		Sessions:      sqlxrepos.NewSessionRepository(db),
		Submissions:   sqlxrepos.NewSubmissionRepository(db),
		Events:        sqlxrepos.NewEventRepository(db),
		Moffin:        sqlxrepos.NewMoffinRepository(db),
		close:         db.Close,
	}
}
