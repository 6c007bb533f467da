package crew

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/api/rest/service/crew"
)

func Post(c echo.Context) error {
	var req crew.CreateRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	cw, err := crew.Service(c.Request().Context()).Create(&req)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, cw)
}
