package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"site-sync/core/loader"
	"site-sync/core/logger"
	"site-sync/core/middleware/auth"
	"site-sync/core/middleware/rayid"
	"site-sync/feature/conflicts"
	"site-sync/feature/runs"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "site-sync/docs/swagger"
)

// @title Site Sync API
// @version 1.0
// @description API for reviewing sync conflicts, matching sites and triggering runs.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the site sync server",
	Long:  `Starts the HTTP server and initializes all enabled features.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		// 1. Wire configuration, store and platforms
		app, err := newApplication(ctx, platforms{monitoring: true, maintenance: true})
		if err != nil {
			return err
		}
		defer app.Close()
		logg := app.logger
		zap.ReplaceGlobals(logg)

		if !app.cfg.Server.IsValidEnvironment() {
			logg.Warn("Unknown environment", zap.String("environment", app.cfg.Server.Environment))
		}
		if app.cfg.Server.IsProduction() && app.cfg.Server.ApiKey == "" {
			return errors.New("SERVER_API_KEY is required in production")
		}

		// 2. Initialize Fiber App
		server := fiber.New(fiber.Config{
			DisableStartupMessage: true,
		})

		// 3. Register Features
		mgr := loader.NewManager()
		mgr.Register(conflicts.NewFeature(app.store, app.sync, app.cache, logg))
		var reports runs.Reports
		if app.archive != nil {
			reports = app.archive
		}
		mgr.Register(runs.NewFeature(app.store, app.sync, reports, logg))

		// RayID first so every log line carries it
		server.Use(rayid.New())

		server.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// Swagger Documentation (Public)
		server.Get("/swagger/*", swagger.HandlerDefault)

		server.Use(auth.New(auth.Config{ApiKey: app.cfg.Server.ApiKey, Skip: []string{"/swagger"}}))

		// 4. Load Features
		loaded, err := mgr.LoadAll(server)
		if err != nil {
			return err
		}
		logg.Info("Features loaded", zap.Strings("features", loaded))

		// 5. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", app.cfg.Server.Port), zap.String("environment", app.cfg.Server.Environment))
			if err := server.Listen(":" + app.cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 6. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		return server.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
