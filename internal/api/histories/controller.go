package histories

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lukasz26671/webaudioprov/internal/history"
	"github.com/lukasz26671/webaudioprov/pkg/logger"
)

var controllerLogger = logger.Get("HistoriesController")

const defaultListLimit = 50

type (
	Service interface {
		Recent(ctx context.Context, limit int) ([]history.Entry, error)
	}

	// Controller exposes the recorded materializations. It is only wired
	// in when the history store is enabled.
	Controller struct {
		service Service
	}
)

func New(service Service) *Controller {
	return &Controller{service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/history", controller.list)
}

// list returns the most recent materializations, newest first. The
// optional 'limit' query param caps the number of rows returned.
func (controller *Controller) list(ec echo.Context) error {
	limit := defaultListLimit
	if raw := ec.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "Limit '"+raw+"' is not a positive integer")
		}

		limit = parsed
	}

	entries, err := controller.service.Recent(ec.Request().Context(), limit)
	if err != nil {
		controllerLogger.Emit(logger.ERROR, "Failed to list history: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list history")
	}

	return ec.JSON(http.StatusOK, entries)
}
