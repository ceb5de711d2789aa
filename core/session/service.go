package session

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("session not found")
	ErrSubmissionNotFound = core.NewNotFoundError("submission not found")
	ErrSubmitted          = core.NewConflictError("session already submitted")
	ErrSubmissionExists   = core.NewConflictError("session already has a submission")
	ErrReviewed           = core.NewConflictError("submission already reviewed")
	ErrInvalidAnswers     = errors.New("invalid answers")
	ErrEditNotAllowed     = errors.Wrap(core.ErrPermissionDenied, "this form cannot be restarted")

	// SubmissionOrderingFields lists the fields submissions can be sorted by.
	SubmissionOrderingFields = []string{"created_at", "updated_at", "submitted_at", "status"}
)

type (
	Repository interface {
		CreateSession(ctx context.Context, s Session, exec ...core.DBExecutor) (Session, error)
		GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (Session, error)
		// GetDraft returns the most recently updated draft of userID for formID.
		GetDraft(ctx context.Context, formID, userID string, exec ...core.DBExecutor) (Session, error)
		// UpdateDraft saves s only while the stored session is still a draft;
		// it fails with ErrSubmitted otherwise.
		UpdateDraft(ctx context.Context, s Session, exec ...core.DBExecutor) (Session, error)
		// DeleteDraft deletes a draft session and its events; it fails with ErrSubmitted
		// when the session is no longer a draft.
		DeleteDraft(ctx context.Context, id string, exec ...core.DBExecutor) error
		// CountSessions returns the number of sessions per status within scope.
		CountSessions(ctx context.Context, scope Scope, exec ...core.DBExecutor) (map[string]int, error)
	}

	SubmissionRepository interface {
		// CreateSubmission fails with ErrSubmissionExists when the session already has one.
		CreateSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
		GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (Submission, error)
		GetSessionSubmission(ctx context.Context, sessionID string, exec ...core.DBExecutor) (Submission, error)
		// QuerySubmissions applies AND operation on available SubmissionFilter fields.
		QuerySubmissions(ctx context.Context, filter *SubmissionFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Submission, error)
		UpdateSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
		// CountSubmissions returns the number of submissions per status within scope.
		CountSubmissions(ctx context.Context, scope Scope, exec ...core.DBExecutor) (map[string]int, error)
	}

	EventRepository interface {
		CreateEvent(ctx context.Context, evt Event, exec ...core.DBExecutor) (Event, error)
		QueryEvents(ctx context.Context, sessionID string, exec ...core.DBExecutor) ([]Event, error)
		// CountEvents returns the number of events per type within scope.
		CountEvents(ctx context.Context, scope Scope, exec ...core.DBExecutor) (map[string]int, error)
	}

	Service interface {
		// Start opens a new session on t. When t does not allow multiple sessions,
		// the pending draft of an authenticated usr is returned instead.
		Start(ctx context.Context, t form.Template, usr user.User) (View, error)
		Resume(ctx context.Context, t form.Template, token string) (View, error)
		// SaveProgress merges the answers of a section into the session.
		SaveProgress(ctx context.Context, t form.Template, token string, sp SectionProgress) (View, error)
		// SetData replaces every answer of the session.
		SetData(ctx context.Context, t form.Template, token string, data form.Answers) (View, error)
		GoToSection(ctx context.Context, t form.Template, token string, index int) (View, error)
		Reset(ctx context.Context, t form.Template, token string) error
		// Submit is idempotent: an already submitted session returns its submission.
		Submit(ctx context.Context, t form.Template, token string) (Submission, error)
		History(ctx context.Context, t form.Template, token string) ([]Event, error)
		QuerySubmissions(ctx context.Context, filter *SubmissionFilter, ordering []core.DBOrdering) ([]Submission, error)
		GetSubmission(ctx context.Context, formID, id string) (Submission, error)
		Review(ctx context.Context, sub Submission, rs ReviewSubmission, reviewer user.User) (Submission, error)
		Stats(ctx context.Context, scope Scope) (Stats, error)
	}

	service struct {
		txr      core.TxRunner
		repo     Repository
		subRepo  SubmissionRepository
		evtRepo  EventRepository
		formRepo form.Repository
		usrRepo  user.Repository
		mailSvc  core.EmailService
		logger   core.Logger
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	txr core.TxRunner,
	repo Repository,
	subRepo SubmissionRepository,
	evtRepo EventRepository,
	formRepo form.Repository,
	usrRepo user.Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		txr:      txr,
		repo:     repo,
		subRepo:  subRepo,
		evtRepo:  evtRepo,
		formRepo: formRepo,
		usrRepo:  usrRepo,
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     conf,
	}
}

// getSession fetches the session token of t; sessions of other forms are not found.
func (svc *service) getSession(ctx context.Context, t form.Template, token string, exec ...core.DBExecutor) (Session, error) {
	if _, err := uuid.Parse(token); err != nil {
		return Session{}, ErrNotFound
	}
	s, err := svc.repo.GetSession(ctx, token, exec...)
	if err != nil {
		return Session{}, err
	}
	if s.FormID != t.ID {
		return Session{}, ErrNotFound
	}
	if s.Data == nil {
		s.Data = make(form.Answers)
	}
	return s, nil
}

func (svc *service) getDraft(ctx context.Context, t form.Template, token string) (Session, error) {
	s, err := svc.getSession(ctx, t, token)
	if err != nil {
		return Session{}, err
	}
	if !s.IsDraft() {
		return Session{}, ErrSubmitted
	}
	return s, nil
}

// save persists s and records evt in a single transaction.
func (svc *service) save(ctx context.Context, s Session, evtType string, evtData map[string]interface{}) (Session, error) {
	err := svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if s, err = svc.repo.UpdateDraft(ctx, s, exec); err != nil {
			return errors.Wrap(err, "updating session")
		}
		return svc.record(ctx, s, evtType, evtData, exec)
	})
	return s, err
}

func (svc *service) record(ctx context.Context, s Session, evtType string, data map[string]interface{}, exec core.DBExecutor) error {
	_, err := svc.evtRepo.CreateEvent(ctx, Event{
		FormID:    s.FormID,
		SessionID: s.ID,
		Type:      evtType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}, exec)
	return errors.Wrap(err, "recording event")
}

func (svc *service) Start(ctx context.Context, t form.Template, usr user.User) (View, error) {
	if !t.Settings.AllowMultiSession && usr.ID != "" {
		s, err := svc.repo.GetDraft(ctx, t.ID, usr.ID)
		if err == nil {
			if s.Data == nil {
				s.Data = make(form.Answers)
			}
			return newView(t, s), nil
		} else if !core.IsNotFound(err) {
			return View{}, errors.Wrap(err, "getting draft")
		}
	}

	now := time.Now().UTC()
	s := Session{
		ID:             uuid.New().String(),
		FormID:         t.ID,
		UserID:         usr.ID,
		OrganizationID: t.OrganizationID,
		Status:         StatusDraft,
		Data:           make(form.Answers),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if sections := t.VisibleSections(s.Data); len(sections) > 0 {
		s.CurrentSection = sections[0].ID
	}

	err := svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if s, err = svc.repo.CreateSession(ctx, s, exec); err != nil {
			return errors.Wrap(err, "creating session")
		}
		return svc.record(ctx, s, EventFormStarted, nil, exec)
	})
	if err != nil {
		return View{}, err
	}
	return newView(t, s), nil
}

func (svc *service) Resume(ctx context.Context, t form.Template, token string) (View, error) {
	s, err := svc.getSession(ctx, t, token)
	if err != nil {
		return View{}, err
	}
	return newView(t, s), nil
}

// checkKeys reports the keys of data that are not fields of t.
func checkKeys(t form.Template, data form.Answers) map[string]string {
	errs := make(map[string]string)
	for id := range data {
		if _, ok := t.Field(id); !ok {
			errs[id] = "unknown field"
		}
	}
	return errs
}

func (svc *service) SaveProgress(ctx context.Context, t form.Template, token string, sp SectionProgress) (View, error) {
	s, err := svc.getDraft(ctx, t, token)
	if err != nil {
		return View{}, err
	}

	if errs := checkKeys(t, sp.Data); len(errs) > 0 {
		return View{}, core.NewFieldsError(ErrInvalidAnswers, errs)
	}

	merged := s.Data.Clone()
	for k, v := range sp.Data {
		merged[k] = v
	}

	var section *form.Section
	for _, sec := range t.Project(merged) {
		if sec.ID == sp.SectionID {
			sec := sec
			section = &sec
			break
		}
	}
	if section == nil {
		return View{}, core.NewValidationError(ErrInvalidAnswers, core.FieldError{Field: "section_id", Error: "section is not available"})
	}

	submitted := make([]form.Field, 0, len(section.Fields))
	for _, fld := range section.Fields {
		if _, ok := sp.Data[fld.ID]; ok {
			submitted = append(submitted, fld)
		}
	}
	if errs := form.ValidateAnswers(submitted, sp.Data); len(errs) > 0 {
		return View{}, core.NewFieldsError(ErrInvalidAnswers, errs)
	}

	s.Data = merged
	s.CurrentSection = sp.SectionID
	s.Progress = t.Progress(merged)
	s.UpdatedAt = time.Now().UTC()

	s, err = svc.save(ctx, s, EventSectionCompleted, map[string]interface{}{
		"section_id": sp.SectionID,
		"progress":   s.Progress,
	})
	if err != nil {
		return View{}, err
	}
	return newView(t, s), nil
}

func (svc *service) SetData(ctx context.Context, t form.Template, token string, data form.Answers) (View, error) {
	s, err := svc.getDraft(ctx, t, token)
	if err != nil {
		return View{}, err
	}
	if errs := checkKeys(t, data); len(errs) > 0 {
		return View{}, core.NewFieldsError(ErrInvalidAnswers, errs)
	}

	if data == nil {
		data = make(form.Answers)
	}
	s.Data = data
	s.Progress = t.Progress(data)
	s.UpdatedAt = time.Now().UTC()

	s, err = svc.save(ctx, s, EventFormEdited, map[string]interface{}{"progress": s.Progress})
	if err != nil {
		return View{}, err
	}
	return newView(t, s), nil
}

func (svc *service) GoToSection(ctx context.Context, t form.Template, token string, index int) (View, error) {
	s, err := svc.getDraft(ctx, t, token)
	if err != nil {
		return View{}, err
	}

	sections := t.VisibleSections(s.Data)
	if index < 0 || index >= len(sections) {
		return View{}, core.NewValidationError(
			errors.New("invalid section"),
			core.FieldError{Field: "index", Error: "section index out of range"},
		)
	}
	s.CurrentSection = sections[index].ID
	s.UpdatedAt = time.Now().UTC()

	if s, err = svc.repo.UpdateDraft(ctx, s); err != nil {
		return View{}, errors.Wrap(err, "updating session")
	}
	return newView(t, s), nil
}

func (svc *service) Reset(ctx context.Context, t form.Template, token string) error {
	if !t.Settings.AllowEdit {
		return ErrEditNotAllowed
	}
	s, err := svc.getDraft(ctx, t, token)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteDraft(ctx, s.ID), "deleting session")
}

func (svc *service) Submit(ctx context.Context, t form.Template, token string) (Submission, error) {
	s, err := svc.getSession(ctx, t, token)
	if err != nil {
		return Submission{}, err
	}
	if !s.IsDraft() {
		return svc.subRepo.GetSessionSubmission(ctx, s.ID)
	}

	var fields []form.Field
	for _, sec := range t.Project(s.Data) {
		fields = append(fields, sec.Fields...)
	}
	if errs := form.ValidateAnswers(fields, s.Data); len(errs) > 0 {
		return Submission{}, core.NewFieldsError(ErrInvalidAnswers, errs)
	}

	now := time.Now().UTC()
	sub := Submission{
		FormID:      t.ID,
		SessionID:   s.ID,
		UserID:      s.UserID,
		Data:        t.VisibleAnswers(s.Data),
		Status:      SubmissionSubmitted,
		CreatedAt:   now,
		UpdatedAt:   now,
		SubmittedAt: now,
	}
	s.Status = StatusSubmitted
	s.SubmittedAt = &now
	s.UpdatedAt = now
	s.Progress = t.Progress(s.Data)

	err = svc.txr.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if sub, err = svc.subRepo.CreateSubmission(ctx, sub, exec); err != nil {
			return err
		}
		if s, err = svc.repo.UpdateDraft(ctx, s, exec); err != nil {
			return errors.Wrap(err, "updating session")
		}
		return svc.record(ctx, s, EventFormSubmitted, map[string]interface{}{"submission_id": sub.ID}, exec)
	})
	if err != nil {
		if cause := errors.Cause(err); cause == ErrSubmissionExists || cause == ErrSubmitted {
			// lost a race against a concurrent submit of the same session
			return svc.subRepo.GetSessionSubmission(ctx, s.ID)
		}
		return Submission{}, errors.Wrap(err, "creating submission")
	}

	svc.notifyOwner(ctx, t, sub)
	return sub, nil
}

// notifyOwner emails the creator of t about sub. Failures are logged only.
func (svc *service) notifyOwner(ctx context.Context, t form.Template, sub Submission) {
	if t.CreatedBy == "" {
		return
	}
	owner, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: t.CreatedBy})
	if err != nil {
		svc.logger.Warn("getting form owner", err, map[string]interface{}{"form_id": t.ID})
		return
	}
	if !owner.IsActive {
		return
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: owner.Name, Address: owner.Email}},
		Subject:      "New submission: " + t.Title,
		TemplateName: "submission_received",
		TemplateData: struct {
			OwnerName   string
			FormTitle   string
			SubmittedAt string
			ReviewURL   string
		}{
			OwnerName:   owner.Name,
			FormTitle:   t.Title,
			SubmittedAt: sub.SubmittedAt.Format("2006-01-02 15:04 MST"),
			ReviewURL:   svc.conf.FrontendBaseURL + "/forms/" + t.ID + "/submissions/" + sub.ID,
		},
	})
}

func (svc *service) History(ctx context.Context, t form.Template, token string) ([]Event, error) {
	s, err := svc.getSession(ctx, t, token)
	if err != nil {
		return nil, err
	}
	events, err := svc.evtRepo.QueryEvents(ctx, s.ID)
	return events, errors.Wrap(err, "querying events")
}

func (svc *service) QuerySubmissions(ctx context.Context, filter *SubmissionFilter, ordering []core.DBOrdering) ([]Submission, error) {
	ordering = core.FilterOrderings(ordering, SubmissionOrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "submitted_at", Ascending: false}}
	}
	subs, err := svc.subRepo.QuerySubmissions(ctx, filter, ordering)
	return subs, errors.Wrap(err, "querying submissions")
}

func (svc *service) GetSubmission(ctx context.Context, formID, id string) (Submission, error) {
	sub, err := svc.subRepo.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if sub.FormID != formID {
		return Submission{}, ErrSubmissionNotFound
	}
	return sub, nil
}

// Review approves or rejects a pending submission.
func (svc *service) Review(ctx context.Context, sub Submission, rs ReviewSubmission, reviewer user.User) (Submission, error) {
	if sub.Status != SubmissionSubmitted {
		return Submission{}, ErrReviewed
	}
	now := time.Now().UTC()
	sub.Status = rs.Status
	sub.ReviewedBy = reviewer.ID
	sub.ReviewedAt = &now
	sub.UpdatedAt = now
	return svc.subRepo.UpdateSubmission(ctx, sub)
}

func (svc *service) Stats(ctx context.Context, scope Scope) (Stats, error) {
	var (
		stats    Stats
		sessions map[string]int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		templates, err := svc.formRepo.QueryTemplates(ctx, &form.QueryFilter{
			OrganizationID: scope.OrganizationID,
			CreatedBy:      scope.CreatedBy,
		}, nil)
		stats.Forms = len(templates)
		return errors.Wrap(err, "counting forms")
	})
	g.Go(func() error {
		var err error
		sessions, err = svc.repo.CountSessions(ctx, scope)
		return errors.Wrap(err, "counting sessions")
	})
	g.Go(func() error {
		var err error
		stats.Submissions, err = svc.subRepo.CountSubmissions(ctx, scope)
		return errors.Wrap(err, "counting submissions")
	})
	g.Go(func() error {
		var err error
		stats.Events, err = svc.evtRepo.CountEvents(ctx, scope)
		return errors.Wrap(err, "counting events")
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	stats.DraftSessions = sessions[StatusDraft]
	stats.SubmittedSessions = sessions[StatusSubmitted]
	stats.Submissions = withKeys(stats.Submissions, SubmissionStatuses)
	stats.Events = withKeys(stats.Events, EventTypes)
	return stats, nil
}

// withKeys adds the missing keys to counts with a zero count.
func withKeys(counts map[string]int, keys []string) map[string]int {
	if counts == nil {
		counts = make(map[string]int, len(keys))
	}
	for _, k := range keys {
		if _, ok := counts[k]; !ok {
			counts[k] = 0
		}
	}
	return counts
}
