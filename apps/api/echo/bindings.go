package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/forma/core"
)

var (
	orderingParam = "ordering"

	errObjNotFoundInCtx = errors.New("object not found in echo.Context")
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses `?ordering=field,-field`; a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// contextObject returns the object stored by objectMiddleware.
func contextObject[T any](ctx echo.Context) (T, error) {
	obj, ok := ctx.Get(contextObjectKey).(T)
	if !ok {
		return obj, errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return obj, nil
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	// DataRequest carries a full answer map.
	DataRequest struct {
		Data map[string]interface{} `json:"data"`
	}

	// IndexRequest selects a visible section by position.
	IndexRequest struct {
		Index *int `json:"index" validate:"required"`
	}
)
