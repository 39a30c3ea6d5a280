package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Tasaveer/internal/api/ingests"
	"github.com/hbomb79/Tasaveer/internal/api/sourcetags"
	"github.com/hbomb79/Tasaveer/internal/event"
	"github.com/hbomb79/Tasaveer/internal/http/websocket"
	"github.com/hbomb79/Tasaveer/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

const apiPrefix = "/api/tasaveer/v1"

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"127.0.0.1:8080" validate:"hostname_port"`
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. Its sole responsibility
	// is to create the routes Tasaveer exposes and to manage ongoing web socket connections
	// and events.
	RestGateway struct {
		*broadcaster
		config           *RestConfig
		ec               *echo.Echo
		socket           *websocket.SocketHub
		ingestController *ingests.Controller
		tagsController   *sourcetags.Controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the controllers. Events from the bus are relayed to
// socket clients once the gateway is running.
func NewRestGateway(
	config *RestConfig,
	ingestService ingests.Service,
	tagStore sourcetags.Store,
	bus event.EventCoordinator,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	validate := validator.New()
	socket := websocket.New()
	bindCommands(socket, ingestService)

	gateway := &RestGateway{
		broadcaster:      newBroadcaster(socket, bus),
		config:           config,
		ec:               ec,
		socket:           socket,
		ingestController: ingests.New(validate, ingestService),
		tagsController:   sourcetags.New(validate, tagStore, bus),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET(apiPrefix+"/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	gateway.ingestController.SetRoutes(ec.Group(apiPrefix + "/ingest"))
	gateway.ingestController.SetScanRoutes(ec.Group(apiPrefix + "/scan"))
	gateway.tagsController.SetRoutes(ec.Group(apiPrefix + "/tags"))
	gateway.tagsController.SetAliasRoutes(ec.Group(apiPrefix + "/aliases"))

	return gateway
}

// Handler exposes the router, primarily so that it can be served by a
// test server.
func (gateway *RestGateway) Handler() http.Handler {
	return gateway.ec
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Emit(logger.INFO, "Listening on http://%s%s\n", gateway.config.HostAddr, apiPrefix)
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil && err != http.ErrServerClosed {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	wg.Add(2)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		gateway.broadcaster.Run(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
