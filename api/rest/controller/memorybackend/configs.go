package memorybackend

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/api/rest/service/memorybackend"
	"github.com/pkg/errors"
)

func List(c echo.Context) error {
	backends, err := memorybackend.Service(c.Request().Context()).List(c.QueryParam("group_id"))
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, backends)
}

func Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	backend, err := memorybackend.Service(c.Request().Context()).Get(id)
	switch {
	case errors.Is(err, memorybackend.ErrNotFound):
		return echo.ErrNotFound
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	default:
		return c.JSON(http.StatusOK, backend)
	}
}

func GetDefault(c echo.Context) error {
	backend, err := memorybackend.Service(c.Request().Context()).GetDefault(c.QueryParam("group_id"))
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}
	if backend == nil {
		return echo.ErrNotFound
	}

	return c.JSON(http.StatusOK, backend)
}

func Post(c echo.Context) error {
	var req memorybackend.CreateRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	backend, err := memorybackend.Service(c.Request().Context()).Create(&req)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, backend)
}

func Put(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	var req memorybackend.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	backend, err := memorybackend.Service(c.Request().Context()).Update(id, &req)
	switch {
	case errors.Is(err, memorybackend.ErrNotFound):
		return echo.ErrNotFound
	case err != nil:
		return echo.ErrBadRequest.SetInternal(err)
	default:
		return c.JSON(http.StatusOK, backend)
	}
}

func Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	err = memorybackend.Service(c.Request().Context()).Delete(id)
	switch {
	case errors.Is(err, memorybackend.ErrNotFound):
		return echo.ErrNotFound
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	default:
		return c.NoContent(http.StatusNoContent)
	}
}

func SetDefault(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	backend, err := memorybackend.Service(c.Request().Context()).SetDefault(id)
	switch {
	case errors.Is(err, memorybackend.ErrNotFound):
		return echo.ErrNotFound
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	default:
		return c.JSON(http.StatusOK, backend)
	}
}
