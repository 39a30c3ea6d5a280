package sourcetags

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Tasaveer/internal/api/util"
	"github.com/hbomb79/Tasaveer/internal/event"
	"github.com/hbomb79/Tasaveer/internal/tags"
	"github.com/hbomb79/Tasaveer/pkg/logger"
	"github.com/labstack/echo/v4"
)

type (
	// TagDto is the response used by endpoints that return tags.
	TagDto struct {
		Id               string   `json:"id"`
		Name             string   `json:"name"`
		Color            string   `json:"color"`
		CameraAliases    []string `json:"camera_aliases"`
		DirectoryAliases []string `json:"directory_aliases"`
	}

	CreateRequest struct {
		Name  string `json:"name" validate:"required"`
		Color string `json:"color"`
	}

	UpdateRequest struct {
		Name  *string `json:"name" validate:"omitempty,min=1"`
		Color *string `json:"color"`
	}

	// AliasRequest assigns an alias to a tag. An empty TagId removes the
	// alias from whichever tag currently owns it.
	AliasRequest struct {
		Alias string `json:"alias" validate:"required"`
		TagId string `json:"tag_id"`
	}

	Store interface {
		Tags() []tags.Tag
		Get(id string) (tags.Tag, bool)
		Create(name string, color string) (tags.Tag, error)
		Rename(id string, name string) error
		SetColor(id string, color string) error
		Delete(id string) error
		AssignCameraAlias(model string, tagID string) error
		AssignDirectoryAlias(key string, tagID string) error
	}

	Controller struct {
		validate *validator.Validate
		store    Store
		bus      event.EventDispatcher
	}
)

var controllerLogger = logger.Get("TagsController")

func New(validate *validator.Validate, store Store, bus event.EventDispatcher) *Controller {
	return &Controller{validate: validate, store: store, bus: bus}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.POST("/", controller.create)
	eg.PATCH("/:id/", controller.update)
	eg.DELETE("/:id/", controller.delete)
}

func (controller *Controller) SetAliasRoutes(eg *echo.Group) {
	eg.PUT("/camera/", controller.assignCamera)
	eg.PUT("/directory/", controller.assignDirectory)
}

func (controller *Controller) list(ec echo.Context) error {
	return ec.JSON(http.StatusOK, util.ApplyConversion(controller.store.Tags(), NewDto))
}

func (controller *Controller) create(ec echo.Context) error {
	var request CreateRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	tag, err := controller.store.Create(request.Name, request.Color)
	if err != nil && !isPersistenceError(err) {
		return storeError(err)
	}

	controller.notify(tag.ID)
	if err != nil {
		return storeError(err)
	}

	return ec.JSON(http.StatusCreated, NewDto(tag))
}

func (controller *Controller) update(ec echo.Context) error {
	id := ec.Param("id")

	var request UpdateRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if request.Name != nil {
		if err := controller.store.Rename(id, *request.Name); err != nil {
			return controller.mutationError(id, err)
		}
	}
	if request.Color != nil {
		if err := controller.store.SetColor(id, *request.Color); err != nil {
			return controller.mutationError(id, err)
		}
	}

	tag, ok := controller.store.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	controller.notify(id)
	return ec.JSON(http.StatusOK, NewDto(tag))
}

func (controller *Controller) delete(ec echo.Context) error {
	id := ec.Param("id")
	if err := controller.store.Delete(id); err != nil {
		return controller.mutationError(id, err)
	}

	controller.notify(id)
	return ec.NoContent(http.StatusOK)
}

func (controller *Controller) assignCamera(ec echo.Context) error {
	return controller.assign(ec, controller.store.AssignCameraAlias)
}

func (controller *Controller) assignDirectory(ec echo.Context) error {
	return controller.assign(ec, controller.store.AssignDirectoryAlias)
}

func (controller *Controller) assign(ec echo.Context, assignFn func(string, string) error) error {
	var request AliasRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := assignFn(request.Alias, request.TagId); err != nil {
		return controller.mutationError(request.TagId, err)
	}

	controller.notify(request.TagId)
	return ec.JSON(http.StatusOK, util.ApplyConversion(controller.store.Tags(), NewDto))
}

// mutationError converts a store error in to an HTTP error. A change
// which failed only to persist was still applied, so observers are told.
func (controller *Controller) mutationError(id string, err error) error {
	if isPersistenceError(err) {
		controller.notify(id)
	}

	return storeError(err)
}

func (controller *Controller) notify(id string) {
	if controller.bus != nil {
		controller.bus.Dispatch(event.TAGS_UPDATE, id)
	}
}

func isPersistenceError(err error) bool {
	var persistErr *tags.PersistenceError
	return errors.As(err, &persistErr)
}

func storeError(err error) error {
	switch {
	case errors.Is(err, tags.ErrTagNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, tags.ErrDuplicateName):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, tags.ErrEmptyName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		controllerLogger.Emit(logger.ERROR, "Tag store request failed: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// NewDto creates a TagDto from the tag model.
func NewDto(tag tags.Tag) TagDto {
	return TagDto{
		Id:               tag.ID,
		Name:             tag.Name,
		Color:            tag.Color,
		CameraAliases:    util.EmptyIfNil(tag.CameraAliases),
		DirectoryAliases: util.EmptyIfNil(tag.DirectoryAliases),
	}
}
