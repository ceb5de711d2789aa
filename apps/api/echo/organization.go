package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/forma/core/organization"
	"github.com/trezcool/forma/core/user"
)

type orgApi struct {
	svc      organization.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerOrganizationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := orgApi{
		svc:      deps.OrgSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	og := g.Group("/organizations", jwt)
	og.GET("", api.query)
	og.POST("", api.create)

	dg := og.Group("/:id", objectMiddleware(api.usrSvc, api.loadOrganization))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.deactivate)
}

func (api *orgApi) loadOrganization(ctx echo.Context, usr user.User) (interface{}, bool, error) {
	org, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return nil, false, err
	}
	if !org.IsActive || !api.svc.CanView(org, usr) {
		return nil, false, nil
	}
	return org, true, nil
}

// Handlers

func (api *orgApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	orgs, err := api.svc.QueryForUser(ctx.Request().Context(), usr, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying organizations")
	}
	resp := make([]OrganizationResponse, 0, len(orgs))
	for _, org := range orgs {
		resp = append(resp, newOrganizationResponse(org))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *orgApi) create(ctx echo.Context) error {
	var data organization.NewOrganization
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOrganization")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	org, err := api.svc.Create(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "creating organization")
	}
	return ctx.JSON(http.StatusCreated, newOrganizationResponse(org))
}

func (api *orgApi) retrieve(ctx echo.Context) error {
	org, err := contextObject[organization.Organization](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newOrganizationResponse(org))
}

func (api *orgApi) update(ctx echo.Context) error {
	org, err := api.manageable(ctx)
	if err != nil {
		return err
	}

	var data organization.UpdateOrganization
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateOrganization")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	org, err = api.svc.Update(ctx.Request().Context(), org, data)
	if err != nil {
		return errors.Wrap(err, "updating organization")
	}
	return ctx.JSON(http.StatusOK, newOrganizationResponse(org))
}

func (api *orgApi) deactivate(ctx echo.Context) error {
	org, err := api.manageable(ctx)
	if err != nil {
		return err
	}
	if _, err = api.svc.Deactivate(ctx.Request().Context(), org); err != nil {
		return errors.Wrap(err, "deactivating organization")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *orgApi) manageable(ctx echo.Context) (organization.Organization, error) {
	org, err := contextObject[organization.Organization](ctx)
	if err != nil {
		return org, err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return org, err
	}
	if !api.svc.CanManage(org, usr) {
		return org, errHttpForbidden
	}
	return org, nil
}

// OrganizationResponse exposes an Organization with its Moffin key masked.
type OrganizationResponse struct {
	organization.Organization
	MoffinAPIKey string `json:"moffin_api_key"`
}

func newOrganizationResponse(org organization.Organization) OrganizationResponse {
	return OrganizationResponse{Organization: org, MoffinAPIKey: org.MaskedAPIKey()}
}
