package execution

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/internal/execution"
)

func Cancel(c echo.Context) error {
	jobID := c.Param("id")

	if !execution.Service(c.Request().Context()).CancelExecution(jobID) {
		// Unknown, already finished, or uncancellable.
		return echo.ErrNotFound
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": "cancelled",
	})
}
