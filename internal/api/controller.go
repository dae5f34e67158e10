// Package api exposes the scheduling, queue and solar endpoints over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gocache "github.com/patrickmn/go-cache"

	"github.com/abvaden/nps-webcam-animation-generator/internal/animation"
	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
	"github.com/abvaden/nps-webcam-animation-generator/internal/imagestore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/logging"
	"github.com/abvaden/nps-webcam-animation-generator/internal/observability"
	"github.com/abvaden/nps-webcam-animation-generator/internal/suncalc"
)

// solarCacheTTL bounds how long a computed solar-times response is reused;
// the inputs only change once a day per webcam.
const solarCacheTTL = 30 * time.Minute

// Controller manages the API routes and handlers.
type Controller struct {
	Echo      *echo.Echo
	DS        datastore.Interface
	Settings  *conf.Settings
	Scheduler *animation.Scheduler
	Queue     *animation.Queue
	SunCalc   *suncalc.SunCalc
	Store     imagestore.Store

	solarCache *gocache.Cache
	metrics    *observability.Metrics
	log        *slog.Logger
	closeLog   func() error
}

// New creates the controller and registers all routes. The store may be nil
// when no object store is configured; animation responses then carry no
// artifact URL.
func New(settings *conf.Settings, ds datastore.Interface, store imagestore.Store, scheduler *animation.Scheduler, queue *animation.Queue, sun *suncalc.SunCalc, metrics *observability.Metrics) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	log := logging.ForService("api")
	var closeLog func() error
	if dir := settings.Main.Log.Path; dir != "" {
		level := slog.LevelInfo
		if settings.Debug {
			level = slog.LevelDebug
		}
		fileLog, closer, err := logging.NewFileLogger(filepath.Join(dir, "web.log"), "api", level)
		if err != nil {
			log.Warn("Web file logger unavailable, using default output", "error", err)
		} else {
			log = fileLog
			closeLog = closer
		}
	}

	c := &Controller{
		Echo:       e,
		DS:         ds,
		Settings:   settings,
		Scheduler:  scheduler,
		Queue:      queue,
		SunCalc:    sun,
		Store:      store,
		solarCache: gocache.New(solarCacheTTL, 10*time.Minute),
		metrics:    metrics,
		log:        log,
		closeLog:   closeLog,
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Echo.GET("/healthz", c.Health)
	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}

	v1 := c.Echo.Group("/api/v1")
	v1.GET("/webcams", c.ListWebcams)
	v1.GET("/webcams/:id/solar", c.WebcamSolar)

	v1.POST("/animations/schedule", c.ScheduleAnimations)
	v1.POST("/animations/advance", c.AdvanceAnimations)
	v1.GET("/animations", c.ListAnimations)
	v1.POST("/animations", c.CreateOnDemandAnimation)
	v1.POST("/animations/:id/complete", c.CompleteAnimation)
	v1.POST("/animations/:id/fail", c.FailAnimation)
	v1.DELETE("/animations/:id", c.DeleteAnimation)
}

// Start runs the HTTP server until the context is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%s", c.Settings.Web.Host, c.Settings.Web.Port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Echo.Shutdown(shutdownCtx); err != nil {
			c.log.Error("HTTP server shutdown failed", "error", err)
		}
		if c.closeLog != nil {
			_ = c.closeLog()
		}
	}()

	c.log.Info("HTTP server listening", "address", address)
	if err := c.Echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", address).
			Build()
	}
	return nil
}

// Health reports liveness.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ErrorResponse is the JSON shape of every error the API returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HandleError maps an application error onto an HTTP status using its
// category and returns the JSON response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	code := statusForError(err)
	c.log.Error("API error",
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"code", code,
		"message", message,
		"error", err)
	return ctx.JSON(code, &ErrorResponse{
		Error:   err.Error(),
		Message: message,
		Code:    code,
	})
}

func statusForError(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryFormat):
		return http.StatusBadRequest
	case errors.IsValidation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
