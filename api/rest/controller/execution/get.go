package execution

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/internal/execution"
	"github.com/pkg/errors"
)

func Get(c echo.Context) error {
	state, err := execution.Service(c.Request().Context()).GetExecutionStatus(c.Param("id"))

	switch {
	case errors.Is(err, execution.ErrNotFound):
		return echo.ErrNotFound
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	case state == nil:
		// Live run the engine no longer reports: unknown.
		return echo.ErrNotFound
	default:
		return c.JSON(http.StatusOK, state)
	}
}
