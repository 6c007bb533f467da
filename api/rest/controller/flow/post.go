package flow

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/api/rest/service/flow"
)

func Post(c echo.Context) error {
	var req flow.CreateRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	f, err := flow.Service(c.Request().Context()).Create(&req)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, f)
}
