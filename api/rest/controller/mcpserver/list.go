package mcpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/api/rest/service/mcpserver"
)

func List(c echo.Context) error {
	req, err := parseListRequest(c)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	servers, err := mcpserver.Service(c.Request().Context()).List(req)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, servers)
}

func parseListRequest(c echo.Context) (req *mcpserver.ListRequest, err error) {
	req = &mcpserver.ListRequest{
		GroupID: c.QueryParam("group_id"),
	}

	if enabled := c.QueryParam("enabled"); enabled != "" {
		value, err := strconv.ParseBool(enabled)
		if err != nil {
			return nil, err
		}
		req.Enabled = &value
	}

	if limit := c.QueryParam("limit"); limit != "" {
		if req.Limit, err = strconv.ParseUint(limit, 10, 32); err != nil {
			return nil, err
		}
	}

	if offset := c.QueryParam("offset"); offset != "" {
		if req.Offset, err = strconv.ParseUint(offset, 10, 64); err != nil {
			return nil, err
		}
	}

	if orderBy := c.QueryParam("order_by"); orderBy != "" {
		req.OrderBy = strings.Split(orderBy, ",")
	}

	return
}
