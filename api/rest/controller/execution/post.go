package execution

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/internal/execution"
)

// oboHeader carries the caller's on-behalf-of token when kasal
// runs behind the Databricks Apps proxy.
const oboHeader = "X-Forwarded-Access-Token"

func Post(c echo.Context) error {
	var req execution.RunCrewRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}
	req.OBOToken = c.Request().Header.Get(oboHeader)

	record, err := execution.Service(c.Request().Context()).PrepareAndRunCrew(&req)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, record)
}
