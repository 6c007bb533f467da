package memorybackend

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/api/rest/service/memorybackend"
	"github.com/murtihash94/kasal/internal/models"
)

const oboHeader = "X-Forwarded-Access-Token"

func Validate(c echo.Context) error {
	var cfg models.DatabricksMemoryConfig

	if err := c.Bind(&cfg); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	result := memorybackend.Service(c.Request().Context()).Validate(&cfg)
	return c.JSON(http.StatusOK, result)
}

func TestConnection(c echo.Context) error {
	var req memorybackend.ConnectionRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}
	req.OBOToken = c.Request().Header.Get(oboHeader)

	result := memorybackend.Service(c.Request().Context()).TestConnection(&req)
	return c.JSON(http.StatusOK, result)
}

func Indexes(c echo.Context) error {
	req := connectionFromQuery(c)

	result, err := memorybackend.Service(c.Request().Context()).GetIndexes(req)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusOK, result)
}

func CreateIndex(c echo.Context) error {
	var req memorybackend.CreateIndexRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}
	req.OBOToken = c.Request().Header.Get(oboHeader)

	index, err := memorybackend.Service(c.Request().Context()).CreateIndex(&req)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, index)
}

func DeleteIndex(c echo.Context) error {
	var req memorybackend.DeleteIndexRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}
	req.OBOToken = c.Request().Header.Get(oboHeader)

	if err := memorybackend.Service(c.Request().Context()).DeleteIndexByName(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func EndpointStatus(c echo.Context) error {
	req := connectionFromQuery(c)

	endpoint, err := memorybackend.Service(c.Request().Context()).EndpointStatus(req)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusOK, endpoint)
}

func OneClick(c echo.Context) error {
	var req memorybackend.OneClickRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}
	req.OBOToken = c.Request().Header.Get(oboHeader)

	result, err := memorybackend.Service(c.Request().Context()).OneClickSetup(&req)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, result)
}

func Verify(c echo.Context) error {
	req := connectionFromQuery(c)

	result, err := memorybackend.Service(c.Request().Context()).VerifyResources(req)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusOK, result)
}

func DeleteConfigs(c echo.Context) error {
	count, err := memorybackend.Service(c.Request().Context()).
		DeleteAllDatabricksConfigs(c.QueryParam("group_id"))
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]int64{"deleted": count})
}

func connectionFromQuery(c echo.Context) *memorybackend.ConnectionRequest {
	return &memorybackend.ConnectionRequest{
		WorkspaceURL: c.QueryParam("workspace_url"),
		EndpointName: c.QueryParam("endpoint_name"),
		Catalog:      c.QueryParam("catalog"),
		Schema:       c.QueryParam("schema"),
		OBOToken:     c.Request().Header.Get(oboHeader),
	}
}
