package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/user"
)

var contextObjectKey = "object"

// roleMiddleware only lets through users having one of roles.
func roleMiddleware(svc user.Service, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if core.StringInSlice(usr.Role, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware(svc user.Service) echo.MiddlewareFunc {
	return roleMiddleware(svc, user.RoleAdmin)
}

// objectMiddleware loads the object of the route with load and stores it under contextObjectKey.
// load reports false when the object does not exist or the user may not see it.
func objectMiddleware(svc user.Service, load func(ctx echo.Context, usr user.User) (interface{}, bool, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			obj, ok, err := load(ctx, usr)
			if err != nil {
				if core.IsNotFound(err) {
					return errHttpNotFound
				}
				return err
			}
			if !ok {
				return errHttpNotFound
			}
			ctx.Set(contextObjectKey, obj)
			return next(ctx)
		}
	}
}
