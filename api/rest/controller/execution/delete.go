package execution

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/internal/execution"
	"github.com/pkg/errors"
)

func Delete(c echo.Context) error {
	err := execution.Service(c.Request().Context()).Delete(c.Param("id"))

	switch {
	case errors.Is(err, execution.ErrNotFound):
		return echo.ErrNotFound
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	default:
		return c.NoContent(http.StatusNoContent)
	}
}

func DeleteAll(c echo.Context) error {
	count, err := execution.Service(c.Request().Context()).DeleteAll()
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]int64{"deleted": count})
}
