package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/moffin"
	"github.com/trezcool/forma/core/organization"
	"github.com/trezcool/forma/core/user"
)

type moffinApi struct {
	svc      moffin.Service
	orgSvc   organization.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerMoffinAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := moffinApi{
		svc:      deps.MoffinSvc,
		orgSvc:   deps.OrgSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	mg := g.Group("/moffin/forms", jwt)
	mg.GET("", api.queryForms)
	mg.POST("", api.createForm)
}

// organization returns the active organization id, checking usr may view it.
func (api *moffinApi) organization(ctx echo.Context, usr user.User, id string) (organization.Organization, error) {
	org, err := api.orgSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if core.IsNotFound(err) {
			return org, errHttpNotFound
		}
		return org, errors.Wrap(err, "getting organization")
	}
	if !org.IsActive || !api.orgSvc.CanView(org, usr) {
		return org, errHttpNotFound
	}
	return org, nil
}

// Handlers

func (api *moffinApi) queryForms(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	orgID := ctx.QueryParam("organization_id")
	if orgID == "" {
		orgID = usr.OrganizationID
	}
	if orgID == "" {
		return ctx.JSON(http.StatusOK, []moffin.Form{})
	}

	org, err := api.organization(ctx, usr, orgID)
	if err != nil {
		return err
	}
	forms, err := api.svc.QueryForms(ctx.Request().Context(), org.ID)
	if err != nil {
		return errors.Wrap(err, "querying moffin forms")
	}
	if forms == nil {
		forms = []moffin.Form{}
	}
	return ctx.JSON(http.StatusOK, forms)
}

func (api *moffinApi) createForm(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data moffin.NewForm
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewForm")
	}
	if data.OrganizationID == "" {
		data.OrganizationID = usr.OrganizationID
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	org, err := api.organization(ctx, usr, data.OrganizationID)
	if err != nil {
		return err
	}
	if !api.orgSvc.CanManage(org, usr) {
		return errHttpForbidden
	}

	f, err := api.svc.CreateForm(ctx.Request().Context(), org, data, usr)
	if err != nil {
		return errors.Wrap(err, "creating moffin form")
	}
	return ctx.JSON(http.StatusCreated, f)
}
