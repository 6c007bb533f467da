package agent

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/api/rest/service/agent"
	"github.com/pkg/errors"
)

func Put(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	var req agent.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	a, err := agent.Service(c.Request().Context()).Update(id, &req)

	switch {
	case errors.Is(err, agent.ErrNotFound):
		return echo.ErrNotFound
	case err != nil:
		return echo.ErrBadRequest.SetInternal(err)
	default:
		return c.JSON(http.StatusOK, a)
	}
}
