package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lukasz26671/webaudioprov/internal/api/histories"
	"github.com/lukasz26671/webaudioprov/internal/api/medias"
	"github.com/lukasz26671/webaudioprov/internal/http/websocket"
	"github.com/lukasz26671/webaudioprov/pkg/logger"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `env:"HOST_ADDR" env-default:"0.0.0.0"`
		Port     int    `env:"PORT" env-default:"3000" validate:"gte=1,lte=65535"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. Its sole
	// responsibility is to create the routes the service exposes, manage
	// ongoing web socket connections, and translate activity events in to
	// socket broadcasts.
	RestGateway struct {
		*broadcaster
		config            *RestConfig
		ec                *echo.Echo
		socket            *websocket.SocketHub
		mediaController   controller
		historyController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers. The history service may be nil,
// in which case its routes are not registered.
func NewRestGateway(config *RestConfig, mediaService medias.Service, historyService histories.Service) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:     newBroadcaster(socket),
		config:          config,
		ec:              ec,
		socket:          socket,
		mediaController: medias.New(mediaService),
	}
	socket.WithConnectionCallback(gateway.broadcaster.connectionPayload)

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Use(middleware.CORS())

	ec.GET("/", func(ec echo.Context) error {
		return ec.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	ec.GET("/activity/ws", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	root := ec.Group("")
	gateway.mediaController.SetRoutes(root)

	if historyService != nil {
		gateway.historyController = histories.New(historyService)
		gateway.historyController.SetRoutes(root)
	}

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", gateway.config.HostAddr, gateway.config.Port)
		if err := gateway.ec.Start(addr); err != nil {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
