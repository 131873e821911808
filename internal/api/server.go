package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/grussorusso/offloadledge/internal/config"
	"github.com/grussorusso/offloadledge/internal/metrics"
)

// Routes mounts the admin API on e.
func (s *Server) Routes(e *echo.Echo) {
	e.Use(middleware.Recover())

	e.GET("/status", s.GetServerStatus)
	e.GET("/procedures", s.GetProcedures)
	e.GET("/units", s.GetUnits)
	e.POST("/invoke/:proc", s.InvokeProcedure)
	if metrics.Enabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
}

func StartAPIServer(e *echo.Echo, s *Server) {
	s.Routes(e)

	// Start server
	portNumber := config.GetInt(config.API_PORT, 1323)
	e.HideBanner = true

	if err := e.Start(fmt.Sprintf(":%d", portNumber)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("API server stopped: %v\n", err)
	}
}

// RegisterTerminationHandler runs the cleanups and stops e on SIGINT/SIGTERM,
// then cancels the returned context.
func RegisterTerminationHandler(e *echo.Echo, cleanups ...func()) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-c
		fmt.Printf("Got %s signal. Terminating...\n", sig)
		for _, cleanup := range cleanups {
			cleanup()
		}

		if e != nil {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := e.Shutdown(shutdownCtx); err != nil {
				log.Printf("Could not shut down the API server: %v\n", err)
			}
		}
		cancel()
	}()
	return ctx
}
