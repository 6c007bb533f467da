package execution

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/internal/tracking"
)

func Traces(c echo.Context) error {
	traces, err := tracking.Service(c.Request().Context()).ListTraces(c.Param("id"))
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, traces)
}
