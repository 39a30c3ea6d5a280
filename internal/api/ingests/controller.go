package ingests

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Tasaveer/internal/classify"
	"github.com/hbomb79/Tasaveer/internal/ingest"
	"github.com/hbomb79/Tasaveer/pkg/logger"
	"github.com/labstack/echo/v4"
)

type (
	// StartResponse is returned when a run has been accepted. The run
	// continues in the background; progress is observed through the
	// status endpoint or the activity socket.
	StartResponse struct {
		Id uuid.UUID `json:"id"`
	}

	ScanRequest struct {
		Source string `json:"source" validate:"required"`
	}

	Service interface {
		Start(ingest.Request) (uuid.UUID, error)
		Cancel() error
		Status() ingest.RunSnapshot
		ScanForTags(ctx context.Context, source string) (classify.Result, error)
	}

	// Controller is the struct which is responsible for defining the
	// routes for this controller. Additionally, it holds the reference to
	// the orchestrator used to start and observe ingests.
	Controller struct {
		validate *validator.Validate
		service  Service
	}
)

var controllerLogger = logger.Get("IngestsController")

func New(validate *validator.Validate, serv Service) *Controller {
	return &Controller{validate: validate, service: serv}
}

// SetRoutes accepts the Echo group for the ingest endpoints
// and sets the routes on them.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.get)
	eg.POST("/", controller.start)
	eg.DELETE("/", controller.cancel)
}

// SetScanRoutes accepts the Echo group for the pre-flight scan.
func (controller *Controller) SetScanRoutes(eg *echo.Group) {
	eg.POST("/", controller.scan)
}

// get returns the current (or most recent) run, including its log.
func (controller *Controller) get(ec echo.Context) error {
	return ec.JSON(http.StatusOK, controller.service.Status())
}

// start validates the request body and begins a new ingest.
func (controller *Controller) start(ec echo.Context) error {
	var request ingest.Request
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := controller.service.Start(request)
	if err != nil {
		return ingestError(err)
	}

	controllerLogger.Emit(logger.INFO, "Accepted ingest %s via API\n", id)
	return ec.JSON(http.StatusAccepted, StartResponse{Id: id})
}

// cancel stops the active ingest.
func (controller *Controller) cancel(ec echo.Context) error {
	if err := controller.service.Cancel(); err != nil {
		return ingestError(err)
	}

	return ec.NoContent(http.StatusOK)
}

// scan groups the media in a folder by camera and directory so that
// aliases can be assigned before an ingest is started.
func (controller *Controller) scan(ec echo.Context) error {
	var request ScanRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := controller.service.ScanForTags(ec.Request().Context(), request.Source)
	if err != nil {
		return ingestError(err)
	}

	return ec.JSON(http.StatusOK, result)
}

func ingestError(err error) error {
	var validationErr *ingest.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return echo.NewHTTPError(http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, ingest.ErrRunActive), errors.Is(err, ingest.ErrNoActiveRun):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		controllerLogger.Emit(logger.ERROR, "Ingest request failed: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
