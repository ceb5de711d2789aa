package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/session"
	"github.com/trezcool/forma/core/user"
	"github.com/trezcool/forma/testutil"
)

type fixture struct {
	env   *testutil.Env
	svc   session.Service
	owner user.User
	tmpl  form.Template
}

func setup(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	owner := testutil.CreateUser(t, env.Repos.Users, "Owner", "owner@example.com", "", user.RoleAdmin, "", true)
	tmpl := testutil.ImportSeed(t, env.FormSvc, env.Validate, "financial-onboarding", owner)
	return fixture{env: env, svc: env.SessionSvc, owner: owner, tmpl: tmpl}
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "want a validation error, got %v", err)
	flds := make(map[string]string, len(vErr.Fields))
	for _, f := range vErr.Fields {
		flds[f.Field] = f.Error
	}
	return flds
}

func sectionIDs(sections []form.Section) []string {
	ids := make([]string, 0, len(sections))
	for _, sec := range sections {
		ids = append(ids, sec.ID)
	}
	return ids
}

// personaFisica answers every visible field of the financial form for an individual asking for information.
var personaFisica = []session.SectionProgress{
	{SectionID: "welcome", Data: form.Answers{"client_type": "persona_fisica"}},
	{SectionID: "persona_fisica_data", Data: form.Answers{
		"nombre_completo":       "Juan Perez",
		"curp":                  "PEGJ900101HDFRRN09",
		"rfc":                   "PEGJ900101AB1",
		"ine_file":              "ine.pdf",
		"comprobante_domicilio": "domicilio.jpg",
		"ocupacion":             "Ingeniero",
	}},
	{SectionID: "service_validation", Data: form.Answers{"tipo_servicio": "consulta"}},
	{SectionID: "consent_and_channels", Data: form.Answers{
		"acepta_terminos":      true,
		"preferencia_contacto": []interface{}{"email"},
		"email_contacto":       "juan@example.com",
	}},
}

func fill(t *testing.T, fx fixture, token string, steps []session.SectionProgress) session.View {
	t.Helper()
	var (
		view session.View
		err  error
	)
	for _, sp := range steps {
		view, err = fx.svc.SaveProgress(context.Background(), fx.tmpl, token, sp)
		require.NoError(t, err, "saving %s", sp.SectionID)
	}
	return view
}

func TestService_StartAndResume(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)
	s := view.Session
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, session.StatusDraft, s.Status)
	assert.Equal(t, "welcome", s.CurrentSection)
	assert.Equal(t, 0, view.Progress)
	assert.Equal(t, 0, view.CurrentIndex)
	assert.Equal(t, 3, view.TotalSections)
	assert.Equal(t, []string{"welcome", "service_validation", "consent_and_channels"}, sectionIDs(view.Sections))
	assert.Empty(t, s.Data)

	resumed, err := fx.svc.Resume(ctx, fx.tmpl, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, resumed.Session.ID)
	assert.Equal(t, view.Sections, resumed.Sections)

	_, err = fx.svc.Resume(ctx, fx.tmpl, "not-a-token")
	assert.True(t, core.IsNotFound(err))

	other := fx.tmpl
	other.ID = "another-form"
	_, err = fx.svc.Resume(ctx, other, s.ID)
	assert.True(t, core.IsNotFound(err), "sessions of other forms are not found")

	events, err := fx.svc.History(ctx, fx.tmpl, s.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, session.EventFormStarted, events[0].Type)
}

func TestService_Start_SingleDraft(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	endUser := testutil.CreateUser(t, fx.env.Repos.Users, "Jane", "jane@example.com", "", user.RoleUser, "", true)

	single := fx.tmpl
	single.Settings.AllowMultiSession = false

	v1, err := fx.svc.Start(ctx, single, endUser)
	require.NoError(t, err)
	v2, err := fx.svc.Start(ctx, single, endUser)
	require.NoError(t, err)
	assert.Equal(t, v1.Session.ID, v2.Session.ID, "the pending draft is returned")

	// anonymous users always get a new session
	a1, err := fx.svc.Start(ctx, single, user.User{})
	require.NoError(t, err)
	a2, err := fx.svc.Start(ctx, single, user.User{})
	require.NoError(t, err)
	assert.NotEqual(t, a1.Session.ID, a2.Session.ID)

	// multi-session forms start over
	m1, err := fx.svc.Start(ctx, fx.tmpl, endUser)
	require.NoError(t, err)
	assert.NotEqual(t, v1.Session.ID, m1.Session.ID)
}

func TestService_SaveProgress(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)
	token := view.Session.ID

	view, err = fx.svc.SaveProgress(ctx, fx.tmpl, token, session.SectionProgress{
		SectionID: "welcome",
		Data:      form.Answers{"client_type": "persona_moral"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"welcome", "persona_moral_data", "service_validation", "consent_and_channels"}, sectionIDs(view.Sections))
	assert.Equal(t, 4, view.TotalSections)
	assert.Equal(t, 10, view.Progress) // 1 of 10 visible fields
	assert.Equal(t, "welcome", view.Session.CurrentSection)
	assert.False(t, view.IsLastSection)

	tests := []struct {
		name    string
		sp      session.SectionProgress
		wantErr map[string]string
	}{
		{
			name:    "hidden section",
			sp:      session.SectionProgress{SectionID: "persona_fisica_data", Data: form.Answers{"nombre_completo": "Juan"}},
			wantErr: map[string]string{"section_id": "section is not available"},
		},
		{
			name:    "unknown section",
			sp:      session.SectionProgress{SectionID: "nope"},
			wantErr: map[string]string{"section_id": "section is not available"},
		},
		{
			name:    "unknown field",
			sp:      session.SectionProgress{SectionID: "persona_moral_data", Data: form.Answers{"foo": "bar"}},
			wantErr: map[string]string{"foo": "unknown field"},
		},
		{
			name: "invalid answers",
			sp: session.SectionProgress{SectionID: "persona_moral_data", Data: form.Answers{
				"razon_social": "A",
				"rfc_empresa":  "not an rfc",
			}},
			wantErr: map[string]string{
				"razon_social": "must contain at least 2 characters",
				"rfc_empresa":  "invalid format",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.SaveProgress(ctx, fx.tmpl, token, tt.sp)
			assert.Equal(t, tt.wantErr, fieldErrors(t, err))
		})
	}

	// partial answers: only the submitted fields are checked
	view, err = fx.svc.SaveProgress(ctx, fx.tmpl, token, session.SectionProgress{
		SectionID: "persona_moral_data",
		Data:      form.Answers{"razon_social": "ACME SA DE CV", "rfc_empresa": "ACM010101AB1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "persona_moral_data", view.Session.CurrentSection)
	assert.Equal(t, 1, view.CurrentIndex)
	assert.Equal(t, 30, view.Progress)
	assert.Equal(t, "persona_moral", view.Session.Data["client_type"], "answers are merged")

	resumed, err := fx.svc.Resume(ctx, fx.tmpl, token)
	require.NoError(t, err)
	assert.Equal(t, view.Session.Data, resumed.Session.Data)

	events, err := fx.svc.History(ctx, fx.tmpl, token)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, session.EventSectionCompleted, events[2].Type)
	assert.Equal(t, "persona_moral_data", events[2].Data["section_id"])
}

func TestService_SetData_SnapsHiddenSection(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)
	token := view.Session.ID
	fill(t, fx, token, personaFisica[:2])

	// switching the client type hides the current section
	view, err = fx.svc.SetData(ctx, fx.tmpl, token, form.Answers{"client_type": "persona_moral"})
	require.NoError(t, err)
	assert.Equal(t, "consent_and_channels", view.Session.CurrentSection)
	assert.Equal(t, view.TotalSections-1, view.CurrentIndex)
	assert.True(t, view.IsLastSection)
	assert.Equal(t, form.Answers{"client_type": "persona_moral"}, view.Session.Data, "answers are replaced")
}

func TestService_GoToSection(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)
	token := view.Session.ID

	view, err = fx.svc.GoToSection(ctx, fx.tmpl, token, 2)
	require.NoError(t, err)
	assert.Equal(t, "consent_and_channels", view.Session.CurrentSection)
	assert.True(t, view.IsLastSection)

	for _, idx := range []int{-1, 3} {
		_, err = fx.svc.GoToSection(ctx, fx.tmpl, token, idx)
		assert.Equal(t, map[string]string{"index": "section index out of range"}, fieldErrors(t, err))
	}
}

func TestService_Reset(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)
	token := view.Session.ID

	locked := fx.tmpl
	locked.Settings.AllowEdit = false
	err = fx.svc.Reset(ctx, locked, token)
	assert.Equal(t, core.ErrPermissionDenied, errors.Cause(err))

	require.NoError(t, fx.svc.Reset(ctx, fx.tmpl, token))
	_, err = fx.svc.Resume(ctx, fx.tmpl, token)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Submit(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)
	token := view.Session.ID

	// incomplete
	fill(t, fx, token, personaFisica[:1])
	_, err = fx.svc.Submit(ctx, fx.tmpl, token)
	flds := fieldErrors(t, err)
	assert.Equal(t, "this field is required", flds["nombre_completo"])
	assert.Equal(t, "this field is required", flds["tipo_servicio"])
	assert.Equal(t, "this field is required", flds["acepta_terminos"])
	assert.NotContains(t, flds, "razon_social", "hidden sections are not validated")
	assert.NotContains(t, flds, "email_contacto", "hidden fields are not validated")

	view = fill(t, fx, token, personaFisica[1:])
	assert.Equal(t, 100, view.Progress)
	assert.True(t, view.IsLastSection)

	sub, err := fx.svc.Submit(ctx, fx.tmpl, token)
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, session.SubmissionSubmitted, sub.Status)
	assert.Equal(t, fx.tmpl.ID, sub.FormID)
	assert.Equal(t, token, sub.SessionID)
	assert.Len(t, sub.Data, 11)
	assert.Equal(t, "Juan Perez", sub.Data["nombre_completo"])

	resumed, err := fx.svc.Resume(ctx, fx.tmpl, token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusSubmitted, resumed.Session.Status)
	assert.NotNil(t, resumed.Session.SubmittedAt)

	// the owner is notified once
	sent := fx.env.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, fx.owner.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, fx.tmpl.Title)
	assert.Contains(t, sent[0].TextContent, "/forms/"+fx.tmpl.ID+"/submissions/"+sub.ID)

	// terminal
	_, err = fx.svc.SaveProgress(ctx, fx.tmpl, token, personaFisica[0])
	assert.True(t, core.IsConflict(err))
	_, err = fx.svc.SetData(ctx, fx.tmpl, token, form.Answers{})
	assert.True(t, core.IsConflict(err))
	_, err = fx.svc.GoToSection(ctx, fx.tmpl, token, 0)
	assert.True(t, core.IsConflict(err))
	assert.True(t, core.IsConflict(fx.svc.Reset(ctx, fx.tmpl, token)))

	// idempotent
	again, err := fx.svc.Submit(ctx, fx.tmpl, token)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
	assert.Len(t, fx.env.Mail.SentMessages(), 1)

	events, err := fx.svc.History(ctx, fx.tmpl, token)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.Type)
	}
	assert.Equal(t, []string{
		session.EventFormStarted,
		session.EventSectionCompleted, session.EventSectionCompleted,
		session.EventSectionCompleted, session.EventSectionCompleted,
		session.EventFormSubmitted,
	}, types)
}

func TestService_Submit_DropsHiddenAnswers(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)
	token := view.Session.ID

	data := form.Answers{"razon_social": "ACME SA DE CV", "telefono_contacto": "5512345678"}
	for _, sp := range personaFisica {
		for k, v := range sp.Data {
			data[k] = v
		}
	}
	_, err = fx.svc.SetData(ctx, fx.tmpl, token, data)
	require.NoError(t, err)

	sub, err := fx.svc.Submit(ctx, fx.tmpl, token)
	require.NoError(t, err)
	assert.NotContains(t, sub.Data, "razon_social")
	assert.NotContains(t, sub.Data, "telefono_contacto")
	assert.Contains(t, sub.Data, "email_contacto")
}

func TestService_Submit_Concurrent(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)
	token := view.Session.ID
	fill(t, fx, token, personaFisica)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := fx.svc.Submit(ctx, fx.tmpl, token)
			if assert.NoError(t, err) {
				ids[i] = sub.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	subs, err := fx.svc.QuerySubmissions(ctx, &session.SubmissionFilter{FormID: fx.tmpl.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
	assert.Len(t, fx.env.Mail.SentMessages(), 1)
}

func TestService_DraftWritesAfterSubmit(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	repo := fx.env.Repos.Sessions

	view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)
	token := view.Session.ID
	fill(t, fx, token, personaFisica)

	// a write that read the draft before the submit committed
	stale, err := repo.GetSession(ctx, token)
	require.NoError(t, err)
	sub, err := fx.svc.Submit(ctx, fx.tmpl, token)
	require.NoError(t, err)

	stale.CurrentSection = "welcome"
	_, err = repo.UpdateDraft(ctx, stale)
	assert.Equal(t, session.ErrSubmitted, errors.Cause(err))
	assert.Equal(t, session.ErrSubmitted, errors.Cause(repo.DeleteDraft(ctx, token)))

	_, err = repo.UpdateDraft(ctx, session.Session{ID: "d3b07384-d113-4ec6-a2b5-3f1e0e1e8b1f"})
	assert.True(t, core.IsNotFound(err))

	resumed, err := fx.svc.Resume(ctx, fx.tmpl, token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusSubmitted, resumed.Session.Status)
	assert.NotNil(t, resumed.Session.SubmittedAt)
	got, err := fx.svc.GetSubmission(ctx, fx.tmpl.ID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, token, got.SessionID)
}

func TestService_Submit_RacingEdits(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)
	token := view.Session.ID
	fill(t, fx, token, personaFisica)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.SaveProgress(ctx, fx.tmpl, token, personaFisica[2])
			if err != nil {
				assert.Equal(t, session.ErrSubmitted, errors.Cause(err))
			}
		}()
	}
	_, err = fx.svc.Submit(ctx, fx.tmpl, token)
	require.NoError(t, err)
	wg.Wait()

	resumed, err := fx.svc.Resume(ctx, fx.tmpl, token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusSubmitted, resumed.Session.Status, "edits never reopen a submitted session")
}

func TestService_Submissions(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	reviewer := testutil.CreateUser(t, fx.env.Repos.Users, "Reviewer", "reviewer@example.com", "", user.RoleCustomerSuccess, "", true)

	submit := func() session.Submission {
		view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
		require.NoError(t, err)
		fill(t, fx, view.Session.ID, personaFisica)
		sub, err := fx.svc.Submit(ctx, fx.tmpl, view.Session.ID)
		require.NoError(t, err)
		return sub
	}
	sub1 := submit()
	sub2 := submit()

	got, err := fx.svc.GetSubmission(ctx, fx.tmpl.ID, sub1.ID)
	require.NoError(t, err)
	assert.Equal(t, sub1.ID, got.ID)

	_, err = fx.svc.GetSubmission(ctx, "another-form", sub1.ID)
	assert.True(t, core.IsNotFound(err))
	_, err = fx.svc.GetSubmission(ctx, fx.tmpl.ID, "unknown")
	assert.True(t, core.IsNotFound(err))

	approved, err := fx.svc.Review(ctx, got, session.ReviewSubmission{Status: session.SubmissionApproved}, reviewer)
	require.NoError(t, err)
	assert.Equal(t, session.SubmissionApproved, approved.Status)
	assert.Equal(t, reviewer.ID, approved.ReviewedBy)
	assert.NotNil(t, approved.ReviewedAt)

	_, err = fx.svc.Review(ctx, approved, session.ReviewSubmission{Status: session.SubmissionRejected}, reviewer)
	assert.True(t, core.IsConflict(err))

	subs, err := fx.svc.QuerySubmissions(ctx, &session.SubmissionFilter{FormID: fx.tmpl.ID}, nil)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, sub2.ID, subs[0].ID, "newest first by default")

	subs, err = fx.svc.QuerySubmissions(ctx, &session.SubmissionFilter{FormID: fx.tmpl.ID, Status: session.SubmissionApproved}, nil)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub1.ID, subs[0].ID)

	subs, err = fx.svc.QuerySubmissions(ctx, &session.SubmissionFilter{FormID: fx.tmpl.ID}, []core.DBOrdering{
		{Field: "submitted_at", Ascending: true},
		{Field: "password", Ascending: true}, // not allowed, ignored
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, sub1.ID, subs[0].ID)
}

func TestService_Stats(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	view, err := fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)
	fill(t, fx, view.Session.ID, personaFisica)
	_, err = fx.svc.Submit(ctx, fx.tmpl, view.Session.ID)
	require.NoError(t, err)
	_, err = fx.svc.Start(ctx, fx.tmpl, user.User{})
	require.NoError(t, err)

	stats, err := fx.svc.Stats(ctx, session.ScopeFor(fx.owner))
	require.NoError(t, err)
	assert.Equal(t, session.Stats{
		Forms:             1,
		DraftSessions:     1,
		SubmittedSessions: 1,
		Submissions: map[string]int{
			session.SubmissionSubmitted: 1,
			session.SubmissionApproved:  0,
			session.SubmissionRejected:  0,
		},
		Events: map[string]int{
			session.EventFormStarted:      2,
			session.EventSectionCompleted: 4,
			session.EventFormSubmitted:    1,
			session.EventFormEdited:       0,
		},
	}, stats)

	// nothing in another scope
	stats, err = fx.svc.Stats(ctx, session.Scope{CreatedBy: "someone-else"})
	require.NoError(t, err)
	assert.Zero(t, stats.Forms)
	assert.Zero(t, stats.DraftSessions)
	assert.Zero(t, stats.Submissions[session.SubmissionSubmitted])
}
