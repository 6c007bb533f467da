package mcpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/api/rest/service/mcpserver"
)

func Post(c echo.Context) error {
	var req mcpserver.CreateRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	server, err := mcpserver.Service(c.Request().Context()).Create(&req)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, server)
}
