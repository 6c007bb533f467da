package memorybackend

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/api/rest/service/memorybackend"
)

func Disable(c echo.Context) error {
	backend, err := memorybackend.Service(c.Request().Context()).
		SwitchToDisabledMode(c.QueryParam("group_id"))
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, backend)
}

func CleanupDisabled(c echo.Context) error {
	count, err := memorybackend.Service(c.Request().Context()).
		CleanupDisabledConfigs(c.QueryParam("group_id"))
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]int64{"deleted": count})
}
