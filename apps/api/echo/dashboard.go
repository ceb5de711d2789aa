package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/forma/core/session"
	"github.com/trezcool/forma/core/user"
)

type dashboardApi struct {
	sessionSvc session.Service
	usrSvc     user.Service
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := dashboardApi{sessionSvc: deps.SessionSvc, usrSvc: deps.UserSvc}
	g.GET("/dashboard/stats", api.stats, jwt)
}

// stats counts the forms, sessions, submissions and events the user manages.
func (api *dashboardApi) stats(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	stats, err := api.sessionSvc.Stats(ctx.Request().Context(), session.ScopeFor(usr))
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}
