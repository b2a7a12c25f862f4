// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"glider-device-service/internal/blackboard"
	"glider-device-service/internal/config"
	"glider-device-service/internal/database"
	"glider-device-service/internal/device"
	"glider-device-service/internal/discovery"
	"glider-device-service/internal/discovery/serial"
	"glider-device-service/internal/discovery/usb"
	"glider-device-service/internal/driver"
	"glider-device-service/internal/handler"
	"glider-device-service/internal/repository"
	"glider-device-service/internal/routes"
	"glider-device-service/internal/service"
	"glider-device-service/internal/utils"
)

var configPath string

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB
	router   *routes.Router

	eventBus *handler.EventBus
	board    *blackboard.Blackboard
	manager  *device.Manager
	registry *driver.Registry

	deviceService    *service.DeviceService
	operationService *service.OperationService
	discoveryService *service.DiscoveryService

	profileRepo   repository.ProfileRepository
	operationRepo repository.OperationRepository

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "glider-device-service",
		Short: "Glide computer device service",
		Long: `Talks to the variometers, loggers and FLARM units connected to the
configured device slots and serves their state over HTTP and websockets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(configPath)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.Start()
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Directory containing config.yaml")
	rootCmd.AddCommand(newMigrateCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// NewApplication loads the configuration and wires every component
func NewApplication(path string) (*Application, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "glider-device-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.initializeRepositories()
	app.initializeDevices()
	app.initializeServices()
	app.initializeServer()

	return app, nil
}

func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Database disabled, keeping profile and operations in memory")
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	if err := database.NewMigrator(db, app.logger).Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

func (app *Application) initializeRepositories() {
	if app.database != nil {
		app.profileRepo = repository.NewProfileRepository(app.database, app.logger)
		app.operationRepo = repository.NewOperationRepository(app.database, app.logger)
		return
	}
	app.profileRepo = repository.NewMemoryProfileRepository()
	app.operationRepo = repository.NewMemoryOperationRepository()
}

func (app *Application) initializeDevices() {
	cfg := app.config.Device

	app.eventBus = handler.NewEventBus(app.logger)

	app.registry = driver.NewRegistry(app.logger)
	driver.RegisterDefaultDrivers(app.registry, app.logger)

	app.board = blackboard.New(cfg.Count, cfg.AliveTimeout, app.eventBus, app.logger)
	app.manager = device.NewManager(cfg.Count, app.registry, app.board, app.eventBus, app.logger,
		cfg.TickerInterval, device.Options{
			OpenTimeout:    cfg.OpenTimeout,
			ReopenInterval: cfg.ReopenInterval,
		})

	app.logger.Info("Device manager initialized",
		zap.Int("slots", cfg.Count),
		zap.Int("registered_drivers", len(app.registry.List())),
	)
}

func (app *Application) initializeServices() {
	app.deviceService = service.NewDeviceService(
		app.manager,
		app.board,
		app.registry,
		app.profileRepo,
		app.config,
		app.eventBus,
		app.logger,
	)

	app.operationService = service.NewOperationService(
		app.manager,
		app.operationRepo,
		app.eventBus,
		app.config.Device.DownloadDir,
		app.logger,
	)

	scanners := discovery.NewScannerManager(app.logger)
	scanners.RegisterScanner(serial.NewScanner(app.logger))
	scanners.RegisterScanner(usb.NewScanner(app.logger))
	app.discoveryService = service.NewDiscoveryService(scanners, app.manager, app.logger)
}

func (app *Application) initializeServer() {
	// a nil *database.DB must not become a non-nil Pinger
	var db handler.Pinger
	if app.database != nil {
		db = app.database
	}

	app.router = routes.NewRouter(
		app.config,
		app.logger,
		db,
		app.eventBus,
		app.deviceService,
		app.operationService,
		app.discoveryService,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      app.router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.server.Addr))
}

// Start opens the devices, serves HTTP and blocks until a shutdown signal
func (app *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	app.goRun(func() { app.eventBus.Start() })
	app.goRun(func() { app.board.Run(ctx) })
	app.goRun(func() { app.manager.Run(ctx) })
	app.goRun(func() { app.runCleanup(ctx) })

	if err := app.deviceService.Start(ctx); err != nil {
		app.shutdown()
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var err error
	select {
	case sig := <-quit:
		app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err = <-serverErr:
		app.logger.Error("HTTP server failed", zap.Error(err))
	}

	app.shutdown()
	return err
}

func (app *Application) goRun(fn func()) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		fn()
	}()
}

// runCleanup drops finished operations older than the retention period
func (app *Application) runCleanup(ctx context.Context) {
	retention := app.config.Device.OperationRetention
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(ctx, time.Minute)
			deleted, err := app.operationService.Cleanup(cleanupCtx, retention)
			cancel()
			if err != nil {
				app.logger.Error("Failed to cleanup old operations", zap.Error(err))
			} else if deleted > 0 {
				app.logger.Info("Cleaned up old operations", zap.Int64("deleted", deleted))
			}
		}
	}
}

func (app *Application) shutdown() {
	utils.NewServiceLogger(app.logger, "glider-device-service").LogServiceStop("shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if ws := app.router.WebSocket(); ws != nil {
		ws.CloseAll()
	}
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	app.operationService.Shutdown()
	app.cancel()
	app.manager.Shutdown()
	app.eventBus.Stop()
	app.wg.Wait()

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Fprintf(os.Stderr, "Logger close error: %v\n", err)
	}
}
