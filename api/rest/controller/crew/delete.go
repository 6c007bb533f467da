package crew

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/api/rest/service/crew"
	"github.com/pkg/errors"
)

func Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	err = crew.Service(c.Request().Context()).Delete(id)

	switch {
	case errors.Is(err, crew.ErrNotFound):
		return echo.ErrNotFound
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	default:
		return c.NoContent(http.StatusNoContent)
	}
}
