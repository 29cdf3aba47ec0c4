package main

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
	"github.com/spf13/cobra"

	"github.com/jo-hoe/promptrank/internal/backend"
	"github.com/jo-hoe/promptrank/internal/common"
	"github.com/jo-hoe/promptrank/internal/core"
)

var (
	configPath    string
	cataloguePath string

	rootCmd = &cobra.Command{
		Use:   "promptrank",
		Short: "Rank generated images by pairwise comparison",
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	importCmd = &cobra.Command{
		Use:   "import [catalogue.csv]",
		Short: "Add the rows of a CSV catalogue as new entries",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runImport,
	}
	purgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Physically remove soft-deleted entries",
		Args:  cobra.NoArgs,
		RunE:  runPurge,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $CONFIG_PATH or ./config.yaml)")
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&cataloguePath, "import", "", "import this catalogue before serving")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(purgeCmd)
}

func loadCoreService() (*core.ServiceConfig, *core.CoreService, error) {
	path := getConfigPath()
	config, err := core.LoadConfig(path)
	if err != nil {
		log.Printf("failed to load config from %s: %v", path, err)
		return nil, nil, err
	}
	coreService, err := core.NewCoreService(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize core service: %w", err)
	}
	return config, coreService, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	config, coreService, err := loadCoreService()
	if err != nil {
		return err
	}
	defer func() {
		if err := coreService.Close(); err != nil {
			log.Printf("core service close error: %v", err)
		}
	}()

	if path := firstNonEmpty(cataloguePath, config.Catalogue.Path); path != "" {
		n, err := coreService.ImportCatalogue(cmd.Context(), path)
		if err != nil {
			return err
		}
		log.Printf("imported %d entries from %s", n, path)
	}

	server := defineServer(config)
	backend.NewAPIService(config, coreService).SetRoutes(server)

	portString := fmt.Sprintf(":%d", config.Port)

	// Start HTTP server in a goroutine to allow graceful shutdown
	go func() {
		log.Printf("starting server on port %d", config.Port)
		if err := server.Start(portString); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Printf("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	config, coreService, err := loadCoreService()
	if err != nil {
		return err
	}
	defer func() {
		_ = coreService.Close()
	}()

	path := config.Catalogue.Path
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no catalogue given and catalogue.path is not configured")
	}
	n, err := coreService.ImportCatalogue(cmd.Context(), path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries from %s\n", n, path)
	return nil
}

func runPurge(cmd *cobra.Command, args []string) error {
	_, coreService, err := loadCoreService()
	if err != nil {
		return err
	}
	defer func() {
		_ = coreService.Close()
	}()

	n, err := coreService.PurgeDeleted(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d deleted entries\n", n)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func defineServer(config *core.ServiceConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Configure request logger to skip the probe endpoint
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/probe"
		},
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogError:     true,
		LogRemoteIP:  true,
		LogRoutePath: true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				log.Printf("%s %s (route=%s) - Status: %d - Latency: %v - Error: %v - RemoteIP: %s",
					v.Method, v.URI, v.RoutePath, v.Status, v.Latency, v.Error, v.RemoteIP)
				return nil
			}
			log.Printf("%s %s (route=%s) - Status: %d - Latency: %v - RemoteIP: %s",
				v.Method, v.URI, v.RoutePath, v.Status, v.Latency, v.RemoteIP)
			return nil
		},
	}))

	e.Use(middleware.Recover())
	e.Pre(middleware.RemoveTrailingSlash())
	if len(config.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: config.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		}))
	}

	e.Validator = &common.GenericEchoValidator{}

	return e
}
