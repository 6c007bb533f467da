package execution

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/internal/execution"
)

func List(c echo.Context) error {
	req, err := parseListRequest(c)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	executions, err := execution.Service(c.Request().Context()).List(req)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, executions)
}

func parseListRequest(c echo.Context) (req *execution.ListRequest, err error) {
	req = &execution.ListRequest{
		GroupID: c.QueryParam("group_id"),
		Status:  c.QueryParam("status"),
	}

	if limit := c.QueryParam("limit"); limit != "" {
		if req.Limit, err = strconv.Atoi(limit); err != nil {
			return nil, err
		}
	}

	if offset := c.QueryParam("offset"); offset != "" {
		if req.Offset, err = strconv.Atoi(offset); err != nil {
			return nil, err
		}
	}

	return
}
