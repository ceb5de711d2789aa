package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/moffin"
	"github.com/trezcool/forma/core/organization"
	"github.com/trezcool/forma/core/session"
	"github.com/trezcool/forma/core/user"
)

// publicApi serves forms to their end users, authenticated or not.
type publicApi struct {
	formSvc    form.Service
	sessionSvc session.Service
	moffinSvc  moffin.Service
	orgSvc     organization.Service
	usrSvc     user.Service
	validate   *validator.Validate
}

func registerPublicAPI(g *echo.Group, optionalJWT echo.MiddlewareFunc, deps Deps) {
	api := publicApi{
		formSvc:    deps.FormSvc,
		sessionSvc: deps.SessionSvc,
		moffinSvc:  deps.MoffinSvc,
		orgSvc:     deps.OrgSvc,
		usrSvc:     deps.UserSvc,
		validate:   deps.Validate,
	}

	fg := g.Group("/public/forms/:slug", optionalJWT, api.formMiddleware)
	fg.GET("", api.retrieveForm)
	fg.POST("/autocomplete", api.autocomplete)
	fg.POST("/sessions", api.start)

	sg := fg.Group("/sessions/:token")
	sg.GET("", api.resume)
	sg.PUT("", api.saveProgress)
	sg.DELETE("", api.reset)
	sg.PUT("/data", api.setData)
	sg.PUT("/section", api.goToSection)
	sg.POST("/submit", api.submit)
	sg.GET("/history", api.history)
}

// formMiddleware loads the form of the route and checks that the requesting user may use it.
// Private forms are only visible to their editors.
func (api *publicApi) formMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getOptionalUser(ctx, api.usrSvc)
		if err != nil {
			return err
		}
		t, err := api.formSvc.GetBySlug(ctx.Request().Context(), ctx.Param("slug"))
		if err != nil {
			if core.IsNotFound(err) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "getting form by slug")
		}

		authed := usr.ID != ""
		if !t.IsPublic && !(authed && api.formSvc.CanEdit(t, usr)) {
			return errHttpNotFound
		}
		if t.Settings.RequireAuth && !authed {
			return errUnauthorized
		}

		allowed := t.Permissions.AllowsSubmit(usr.Role)
		if ctx.Request().Method == http.MethodGet {
			allowed = t.Permissions.AllowsView(usr.Role)
		}
		if !allowed {
			if !authed {
				return errUnauthorized
			}
			return errHttpForbidden
		}

		ctx.Set(contextObjectKey, t)
		return next(ctx)
	}
}

// Handlers

func (api *publicApi) retrieveForm(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t.PublicView())
}

func (api *publicApi) autocomplete(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}

	var data moffin.AutocompleteRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AutocompleteRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	// forms without an organization use the configured credentials
	var org organization.Organization
	if t.OrganizationID != "" {
		if org, err = api.orgSvc.GetByID(ctx.Request().Context(), t.OrganizationID); err != nil && !core.IsNotFound(err) {
			return errors.Wrap(err, "getting form organization")
		}
	}

	res, err := api.moffinSvc.Autocomplete(ctx.Request().Context(), t, org, data)
	if err != nil {
		return errors.Wrap(err, "autocompleting field")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *publicApi) start(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}
	usr, err := getOptionalUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	view, err := api.sessionSvc.Start(ctx.Request().Context(), t, usr)
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	return ctx.JSON(http.StatusCreated, view)
}

func (api *publicApi) resume(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}
	view, err := api.sessionSvc.Resume(ctx.Request().Context(), t, ctx.Param("token"))
	if err != nil {
		return errors.Wrap(err, "resuming session")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *publicApi) saveProgress(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}

	var data session.SectionProgress
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SectionProgress")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	view, err := api.sessionSvc.SaveProgress(ctx.Request().Context(), t, ctx.Param("token"), data)
	if err != nil {
		return errors.Wrap(err, "saving progress")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *publicApi) setData(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}

	var data DataRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DataRequest")
	}

	view, err := api.sessionSvc.SetData(ctx.Request().Context(), t, ctx.Param("token"), data.Data)
	if err != nil {
		return errors.Wrap(err, "setting session data")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *publicApi) goToSection(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}

	var data IndexRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IndexRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	view, err := api.sessionSvc.GoToSection(ctx.Request().Context(), t, ctx.Param("token"), *data.Index)
	if err != nil {
		return errors.Wrap(err, "going to section")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *publicApi) reset(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}
	if err = api.sessionSvc.Reset(ctx.Request().Context(), t, ctx.Param("token")); err != nil {
		return errors.Wrap(err, "resetting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *publicApi) submit(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}
	sub, err := api.sessionSvc.Submit(ctx.Request().Context(), t, ctx.Param("token"))
	if err != nil {
		return errors.Wrap(err, "submitting session")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *publicApi) history(ctx echo.Context) error {
	t, err := contextObject[form.Template](ctx)
	if err != nil {
		return err
	}
	events, err := api.sessionSvc.History(ctx.Request().Context(), t, ctx.Param("token"))
	if err != nil {
		return errors.Wrap(err, "getting session history")
	}
	if events == nil {
		events = []session.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}
