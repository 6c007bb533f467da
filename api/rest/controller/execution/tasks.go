package execution

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/murtihash94/kasal/internal/tracking"
	"github.com/pkg/errors"
)

func Tasks(c echo.Context) error {
	ctx := c.Request().Context()
	jobID := c.Param("id")

	svc := tracking.Service(ctx)

	if _, err := svc.GetJobStatus(jobID); err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			return echo.ErrNotFound
		}
		return echo.ErrInternalServerError.SetInternal(err)
	}

	statuses, err := svc.ListTaskStatuses(jobID)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, statuses)
}
