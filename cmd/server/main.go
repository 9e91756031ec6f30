package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"firmfeed/internal/app"
	"firmfeed/internal/config"
	"firmfeed/internal/handlers"
	"firmfeed/internal/version"
)

func main() {
	// Load .env if present
	_ = godotenv.Load()

	cfg := config.Load()
	a, err := app.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Loop.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	uploadHandler := handlers.NewUploadHandler(a.Processor, a.Uploads, a.Jobs, a.Records)
	schedulerHandler := handlers.NewSchedulerHandler(a.Loop)

	e.POST("/api/uploads", uploadHandler.Submit)
	e.GET("/api/uploads", uploadHandler.ListPending)
	e.GET("/api/uploads/:id", uploadHandler.Status)
	e.GET("/api/scheduler", schedulerHandler.Stats)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version.Version,
		})
	})

	go func() {
		a.Log.Infow("starting firmfeed", "version", version.Version, "addr", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalw("server stopped", "err", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		a.Log.Errorw("server shutdown failed", "err", err)
	}
}
