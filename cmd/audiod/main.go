package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lyzr/jukebox/cmd/audiod/container"
	"github.com/lyzr/jukebox/cmd/audiod/routes"
	"github.com/lyzr/jukebox/common/bootstrap"
	"github.com/lyzr/jukebox/common/cas"
	"github.com/lyzr/jukebox/common/server"
)

const serviceName = "audiod"

var (
	keyURL  string
	keyFile string

	rootCmd = &cobra.Command{
		Use:           serviceName,
		Short:         "Resolve, cache and serve track audio",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	keyCmd = &cobra.Command{
		Use:   "key",
		Short: "Print the storage key of an external URL or an uploaded file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case keyURL != "":
				fmt.Fprintln(cmd.OutOrStdout(), cas.URLKey(keyURL))
				return nil
			case keyFile != "":
				key, err := cas.FileKey(keyFile)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			default:
				return errors.New("one of --url or --file is required")
			}
		},
	}
)

func init() {
	keyCmd.Flags().StringVar(&keyURL, "url", "", "external audio URL")
	keyCmd.Flags().StringVar(&keyFile, "file", "", "transcoded audio file")
	keyCmd.MarkFlagsMutuallyExclusive("url", "file")
	rootCmd.AddCommand(keyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	// Bootstrap common components (config, logger, optional DB and Redis, cache, telemetry)
	components, err := bootstrap.Setup(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("failed to bootstrap %s: %w", serviceName, err)
	}
	defer components.Shutdown(context.WithoutCancel(ctx))

	serviceContainer, err := container.NewContainer(ctx, components)
	if err != nil {
		return fmt.Errorf("failed to initialize service container: %w", err)
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	registerRoutes(e, serviceContainer)

	cfg := components.Config
	srv := server.New(serviceName, cfg.Service.Port, e, components.Logger)
	components.Logger.Info("starting audio service",
		"port", cfg.Service.Port,
		"storage", serviceContainer.Storage.Name(),
		"sources", cfg.Audio.Sources,
	)

	// either server failing stops the other
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if components.Telemetry.ProfilingEnabled() {
		g.Go(func() error {
			return components.Telemetry.Run(gctx)
		})
	}
	return g.Wait()
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
}

// setupHealthCheck reports degraded when the database or Redis is unreachable
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "degraded",
				"service": serviceName,
				"error":   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": serviceName,
		})
	})
}

func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterAudioRoutes(e, serviceContainer)
	routes.RegisterNodeRoutes(e, serviceContainer)
}
