package execution

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/internal/execution"
	"github.com/pkg/errors"
)

func PostFlow(c echo.Context) error {
	var req execution.RunFlowRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}
	req.OBOToken = c.Request().Header.Get(oboHeader)

	record, err := execution.Service(c.Request().Context()).RunFlowExecution(&req)
	switch {
	case errors.Is(err, execution.ErrFlowSourceRequired):
		return echo.ErrBadRequest.SetInternal(err)
	case errors.Is(err, execution.ErrNotFound):
		return echo.ErrNotFound.SetInternal(err)
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	default:
		return c.JSON(http.StatusCreated, record)
	}
}
