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
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/session"
)

const (
	sessionTable    = "form_session"
	submissionTable = "form_submission"
	eventTable      = "form_event"
)

var (
	sessionColumns = []string{
		"id", "form_id", "user_id", "organization_id", "status", "progress", "current_section", "data",
		"created_at", "updated_at", "submitted_at",
	}
	submissionColumns = []string{
		"id", "form_id", "session_id", "user_id", "data", "status", "reviewed_by", "reviewed_at",
		"created_at", "updated_at", "submitted_at",
	}
	eventColumns = []string{"id", "form_id", "session_id", "type", "data", "created_at"}
)

// scoped restricts qb, selecting from a table with a form_id column, to the forms of scope.
func scoped(qb sq.SelectBuilder, table string, scope session.Scope) sq.SelectBuilder {
	switch {
	case scope.OrganizationID != "":
		return qb.Join(templateTable + " t ON t.id = " + table + ".form_id").Where(sq.Eq{"t.organization_id": scope.OrganizationID})
	case scope.CreatedBy != "":
		return qb.Join(templateTable + " t ON t.id = " + table + ".form_id").Where(sq.Eq{"t.created_by": scope.CreatedBy})
	}
	return qb
}

type sessionRow struct {
	ID             string         `db:"id"`
	FormID         string         `db:"form_id"`
	UserID         null.String    `db:"user_id"`
	OrganizationID null.String    `db:"organization_id"`
	Status         string         `db:"status"`
	Progress       int            `db:"progress"`
	CurrentSection string         `db:"current_section"`
	Data           types.JSONText `db:"data"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	SubmittedAt    null.Time      `db:"submitted_at"`
}

func toSessionRow(s session.Session) (sessionRow, error) {
	data := s.Data
	if data == nil {
		data = form.Answers{}
	}
	js, err := toJSON(data)
	if err != nil {
		return sessionRow{}, err
	}
	return sessionRow{
		ID:             s.ID,
		FormID:         s.FormID,
		UserID:         null.NewString(s.UserID, s.UserID != ""),
		OrganizationID: null.NewString(s.OrganizationID, s.OrganizationID != ""),
		Status:         s.Status,
		Progress:       s.Progress,
		CurrentSection: s.CurrentSection,
		Data:           js,
		CreatedAt:      s.CreatedAt.UTC(),
		UpdatedAt:      s.UpdatedAt.UTC(),
		SubmittedAt:    null.TimeFromPtr(s.SubmittedAt),
	}, nil
}

func (r sessionRow) toSession() (session.Session, error) {
	s := session.Session{
		ID:             r.ID,
		FormID:         r.FormID,
		UserID:         r.UserID.String,
		OrganizationID: r.OrganizationID.String,
		Status:         r.Status,
		Progress:       r.Progress,
		CurrentSection: r.CurrentSection,
		Data:           make(form.Answers),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		SubmittedAt:    r.SubmittedAt.Ptr(),
	}
	return s, fromJSON(r.Data, &s.Data)
}

type sessionRepository struct {
	baseRepository
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(exec core.DBExecutor) session.Repository {
	return &sessionRepository{baseRepository{exec: exec}}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, s session.Session, exec ...core.DBExecutor) (session.Session, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	r, err := toSessionRow(s)
	if err != nil {
		return session.Session{}, err
	}
	qb := psql.Insert(sessionTable).
		Columns(sessionColumns...).
		Values(
			r.ID, r.FormID, r.UserID, r.OrganizationID, r.Status, r.Progress, r.CurrentSection, r.Data,
			r.CreatedAt, r.UpdatedAt, r.SubmittedAt,
		)
	if _, err := repo.run(ctx, exec, qb); err != nil {
		return session.Session{}, errors.Wrap(err, "inserting session")
	}
	return s, nil
}

func (repo *sessionRepository) getOne(ctx context.Context, exec []core.DBExecutor, qb sq.SelectBuilder) (session.Session, error) {
	var r sessionRow
	if err := repo.get(ctx, exec, &r, qb); err != nil {
		return session.Session{}, trapNoRows(err, session.ErrNotFound, "getting session")
	}
	return r.toSession()
}

func (repo *sessionRepository) GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (session.Session, error) {
	return repo.getOne(ctx, exec, psql.Select(sessionColumns...).From(sessionTable).Where(sq.Eq{"id": id}))
}

func (repo *sessionRepository) GetDraft(ctx context.Context, formID, userID string, exec ...core.DBExecutor) (session.Session, error) {
	qb := psql.Select(sessionColumns...).
		From(sessionTable).
		Where(sq.Eq{"form_id": formID, "user_id": userID, "status": session.StatusDraft}).
		OrderBy("updated_at DESC").
		Limit(1)
	return repo.getOne(ctx, exec, qb)
}

// notDraft explains why a draft-only statement matched no row.
func (repo *sessionRepository) notDraft(ctx context.Context, id string, exec []core.DBExecutor) error {
	if _, err := repo.GetSession(ctx, id, exec...); err != nil {
		return err
	}
	return session.ErrSubmitted
}

func (repo *sessionRepository) UpdateDraft(ctx context.Context, s session.Session, exec ...core.DBExecutor) (session.Session, error) {
	r, err := toSessionRow(s)
	if err != nil {
		return session.Session{}, err
	}
	qb := psql.Update(sessionTable).
		SetMap(map[string]interface{}{
			"status":          r.Status,
			"progress":        r.Progress,
			"current_section": r.CurrentSection,
			"data":            r.Data,
			"updated_at":      r.UpdatedAt,
			"submitted_at":    r.SubmittedAt,
		}).
		Where(sq.Eq{"id": r.ID, "status": session.StatusDraft})

	n, err := repo.run(ctx, exec, qb)
	if err != nil {
		return session.Session{}, errors.Wrap(err, "updating session")
	}
	if n == 0 {
		return session.Session{}, repo.notDraft(ctx, r.ID, exec)
	}
	return s, nil
}

func (repo *sessionRepository) DeleteDraft(ctx context.Context, id string, exec ...core.DBExecutor) error {
	qb := psql.Delete(sessionTable).Where(sq.Eq{"id": id, "status": session.StatusDraft})
	n, err := repo.run(ctx, exec, qb)
	if err != nil {
		return errors.Wrap(err, "deleting session")
	}
	if n == 0 {
		return repo.notDraft(ctx, id, exec)
	}
	return nil
}

func (repo *sessionRepository) CountSessions(ctx context.Context, scope session.Scope, exec ...core.DBExecutor) (map[string]int, error) {
	qb := scoped(psql.Select().From(sessionTable), sessionTable, scope)
	counts, err := repo.countBy(ctx, exec, sessionTable+".status", qb)
	return counts, errors.Wrap(err, "counting sessions")
}

type submissionRow struct {
	ID          string         `db:"id"`
	FormID      string         `db:"form_id"`
	SessionID   string         `db:"session_id"`
	UserID      null.String    `db:"user_id"`
	Data        types.JSONText `db:"data"`
	Status      string         `db:"status"`
	ReviewedBy  null.String    `db:"reviewed_by"`
	ReviewedAt  null.Time      `db:"reviewed_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	SubmittedAt time.Time      `db:"submitted_at"`
}

func toSubmissionRow(sub session.Submission) (submissionRow, error) {
	data := sub.Data
	if data == nil {
		data = form.Answers{}
	}
	js, err := toJSON(data)
	if err != nil {
		return submissionRow{}, err
	}
	return submissionRow{
		ID:          sub.ID,
		FormID:      sub.FormID,
		SessionID:   sub.SessionID,
		UserID:      null.NewString(sub.UserID, sub.UserID != ""),
		Data:        js,
		Status:      sub.Status,
		ReviewedBy:  null.NewString(sub.ReviewedBy, sub.ReviewedBy != ""),
		ReviewedAt:  null.TimeFromPtr(sub.ReviewedAt),
		CreatedAt:   sub.CreatedAt.UTC(),
		UpdatedAt:   sub.UpdatedAt.UTC(),
		SubmittedAt: sub.SubmittedAt.UTC(),
	}, nil
}

func (r submissionRow) toSubmission() (session.Submission, error) {
	sub := session.Submission{
		ID:          r.ID,
		FormID:      r.FormID,
		SessionID:   r.SessionID,
		UserID:      r.UserID.String,
		Data:        make(form.Answers),
		Status:      r.Status,
		ReviewedBy:  r.ReviewedBy.String,
		ReviewedAt:  r.ReviewedAt.Ptr(),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		SubmittedAt: r.SubmittedAt.UTC(),
	}
	return sub, fromJSON(r.Data, &sub.Data)
}

type submissionRepository struct {
	baseRepository
}

var _ session.SubmissionRepository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(exec core.DBExecutor) session.SubmissionRepository {
	return &submissionRepository{baseRepository{exec: exec}}
}

func (repo *submissionRepository) CreateSubmission(ctx context.Context, sub session.Submission, exec ...core.DBExecutor) (session.Submission, error) {
	sub.ID = uuid.New().String()
	r, err := toSubmissionRow(sub)
	if err != nil {
		return session.Submission{}, err
	}
	qb := psql.Insert(submissionTable).
		Columns(submissionColumns...).
		Values(
			r.ID, r.FormID, r.SessionID, r.UserID, r.Data, r.Status, r.ReviewedBy, r.ReviewedAt,
			r.CreatedAt, r.UpdatedAt, r.SubmittedAt,
		)
	if _, err := repo.run(ctx, exec, qb); err != nil {
		if isUniqueViolation(err) {
			return session.Submission{}, session.ErrSubmissionExists
		}
		return session.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return sub, nil
}

func (repo *submissionRepository) getOne(ctx context.Context, exec []core.DBExecutor, qb sq.SelectBuilder) (session.Submission, error) {
	var r submissionRow
	if err := repo.get(ctx, exec, &r, qb); err != nil {
		return session.Submission{}, trapNoRows(err, session.ErrSubmissionNotFound, "getting submission")
	}
	return r.toSubmission()
}

func (repo *submissionRepository) GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (session.Submission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return session.Submission{}, session.ErrSubmissionNotFound
	}
	return repo.getOne(ctx, exec, psql.Select(submissionColumns...).From(submissionTable).Where(sq.Eq{"id": id}))
}

func (repo *submissionRepository) GetSessionSubmission(ctx context.Context, sessionID string, exec ...core.DBExecutor) (session.Submission, error) {
	return repo.getOne(ctx, exec, psql.Select(submissionColumns...).From(submissionTable).Where(sq.Eq{"session_id": sessionID}))
}

func (repo *submissionRepository) QuerySubmissions(ctx context.Context, filter *session.SubmissionFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]session.Submission, error) {
	qb := psql.Select(submissionColumns...).From(submissionTable)
	if filter != nil {
		if filter.FormID != "" {
			qb = qb.Where(sq.Eq{"form_id": filter.FormID})
		}
		if filter.Status != "" {
			qb = qb.Where(sq.Eq{"status": filter.Status})
		}
		if filter.UserID != "" {
			qb = qb.Where(sq.Eq{"user_id": filter.UserID})
		}
		if !filter.SubmittedFrom.IsZero() {
			qb = qb.Where(sq.GtOrEq{"submitted_at": filter.SubmittedFrom.UTC()})
		}
		if !filter.SubmittedTo.IsZero() {
			qb = qb.Where(sq.LtOrEq{"submitted_at": filter.SubmittedTo.UTC()})
		}
	}
	qb = qb.OrderBy(orderBy(ordering)...)

	var rows []submissionRow
	if err := repo.sel(ctx, exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]session.Submission, 0, len(rows))
	for _, r := range rows {
		sub, err := r.toSubmission()
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (repo *submissionRepository) UpdateSubmission(ctx context.Context, sub session.Submission, exec ...core.DBExecutor) (session.Submission, error) {
	r, err := toSubmissionRow(sub)
	if err != nil {
		return session.Submission{}, err
	}
	qb := psql.Update(submissionTable).
		SetMap(map[string]interface{}{
			"status":      r.Status,
			"reviewed_by": r.ReviewedBy,
			"reviewed_at": r.ReviewedAt,
			"updated_at":  r.UpdatedAt,
		}).
		Where(sq.Eq{"id": r.ID})

	n, err := repo.run(ctx, exec, qb)
	if err != nil {
		return session.Submission{}, errors.Wrap(err, "updating submission")
	}
	if n == 0 {
		return session.Submission{}, session.ErrSubmissionNotFound
	}
	return sub, nil
}

func (repo *submissionRepository) CountSubmissions(ctx context.Context, scope session.Scope, exec ...core.DBExecutor) (map[string]int, error) {
	qb := scoped(psql.Select().From(submissionTable), submissionTable, scope)
	counts, err := repo.countBy(ctx, exec, submissionTable+".status", qb)
	return counts, errors.Wrap(err, "counting submissions")
}

type eventRow struct {
	ID        string         `db:"id"`
	FormID    string         `db:"form_id"`
	SessionID string         `db:"session_id"`
	Type      string         `db:"type"`
	Data      types.JSONText `db:"data"`
	CreatedAt time.Time      `db:"created_at"`
}

type eventRepository struct {
	baseRepository
}

var _ session.EventRepository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(exec core.DBExecutor) session.EventRepository {
	return &eventRepository{baseRepository{exec: exec}}
}

func (repo *eventRepository) CreateEvent(ctx context.Context, evt session.Event, exec ...core.DBExecutor) (session.Event, error) {
	evt.ID = uuid.New().String()
	var data types.JSONText
	if evt.Data != nil {
		var err error
		if data, err = toJSON(evt.Data); err != nil {
			return session.Event{}, err
		}
	}
	qb := psql.Insert(eventTable).
		Columns(eventColumns...).
		Values(evt.ID, evt.FormID, evt.SessionID, evt.Type, data, evt.CreatedAt.UTC())
	if _, err := repo.run(ctx, exec, qb); err != nil {
		return session.Event{}, errors.Wrap(err, "inserting event")
	}
	return evt, nil
}

func (repo *eventRepository) QueryEvents(ctx context.Context, sessionID string, exec ...core.DBExecutor) ([]session.Event, error) {
	qb := psql.Select(eventColumns...).From(eventTable).Where(sq.Eq{"session_id": sessionID}).OrderBy("created_at ASC")

	var rows []eventRow
	if err := repo.sel(ctx, exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	events := make([]session.Event, 0, len(rows))
	for _, r := range rows {
		evt := session.Event{
			ID:        r.ID,
			FormID:    r.FormID,
			SessionID: r.SessionID,
			Type:      r.Type,
			CreatedAt: r.CreatedAt.UTC(),
		}
		if err := fromJSON(r.Data, &evt.Data); err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

func (repo *eventRepository) CountEvents(ctx context.Context, scope session.Scope, exec ...core.DBExecutor) (map[string]int, error) {
	qb := scoped(psql.Select().From(eventTable), eventTable, scope)
	counts, err := repo.countBy(ctx, exec, eventTable+".type", qb)
	return counts, errors.Wrap(err, "counting events")
}
