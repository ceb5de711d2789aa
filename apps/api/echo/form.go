package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/session"
	"github.com/trezcool/forma/core/user"
)

type formApi struct {
	svc        form.Service
	sessionSvc session.Service
	usrSvc     user.Service
	validate   *validator.Validate
}

func registerFormAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := formApi{
		svc:        deps.FormSvc,
		sessionSvc: deps.SessionSvc,
		usrSvc:     deps.UserSvc,
		validate:   deps.Validate,
	}

	fg := g.Group("/forms", jwt)
	fg.GET("", api.query)
	fg.POST("", api.create)

	dg := fg.Group("/:id", objectMiddleware(api.usrSvc, api.loadForm))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.GET("/submissions", api.querySubmissions)
	dg.GET("/submissions/:sid", api.retrieveSubmission)
	dg.PUT("/submissions/:sid/review", api.reviewSubmission)
}

// loadForm lets through the members of the owning organization and the users allowed to edit the form.
func (api *formApi) loadForm(ctx echo.Context, usr user.User) (interface{}, bool, error) {
	t, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return nil, false, err
	}
	sameOrg := t.OrganizationID != "" && t.OrganizationID == usr.OrganizationID
	if !sameOrg && !api.svc.CanEdit(t, usr) {
		return nil, false, nil
	}
	return t, true, nil
}

// Handlers

func (api *formApi) query(ctx echo.Context) error {
	filter := new(form.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []form.Template{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	templates, err := api.svc.QueryForUser(ctx.Request().Context(), usr, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying forms")
	}
	if templates == nil {
		templates = []form.Template{}
	}
	return ctx.JSON(http.StatusOK, templates)
}

func (api *formApi) create(ctx echo.Context) error {
	var data form.NewTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	t, err := api.svc.Create(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "creating form")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *formApi) retrieve(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *formApi) update(ctx echo.Context) error {
	t, err := api.editable(ctx)
	if err != nil {
		return err
	}

	var data form.NewTemplate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	t, err = api.svc.Update(ctx.Request().Context(), t, data)
	if err != nil {
		return errors.Wrap(err, "updating form")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *formApi) destroy(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if !api.svc.CanDelete(t, usr) {
		return errHttpForbidden
	}

	if err = api.svc.Delete(ctx.Request().Context(), t); err != nil {
		return errors.Wrap(err, "deleting form")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *formApi) querySubmissions(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}

	filter := new(session.SubmissionFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []session.Submission{})
	}
	filter.Clean()
	filter.FormID = t.ID
	ordering := new(Ordering)
	ordering.Bind(ctx)

	subs, err := api.sessionSvc.QuerySubmissions(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []session.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *formApi) retrieveSubmission(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}
	sub, err := api.sessionSvc.GetSubmission(ctx.Request().Context(), t.ID, ctx.Param("sid"))
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *formApi) reviewSubmission(ctx echo.Context) error {
	t, err := api.editable(ctx)
	if err != nil {
		return err
	}

	var data session.ReviewSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewSubmission")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	sub, err := api.sessionSvc.GetSubmission(ctx.Request().Context(), t.ID, ctx.Param("sid"))
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sub, err = api.sessionSvc.Review(ctx.Request().Context(), sub, data, usr)
	if err != nil {
		return errors.Wrap(err, "reviewing submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *formApi) editable(ctx echo.Context) (form.Template, error) {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return t, err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return t, err
	}
	if !api.svc.CanEdit(t, usr) {
		return t, errHttpForbidden
	}
	return t, nil
}
