package agent

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/api/rest/service/agent"
)

func Post(c echo.Context) error {
	var req agent.CreateRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	a, err := agent.Service(c.Request().Context()).Create(&req)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, a)
}
