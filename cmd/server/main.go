package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/middleware"
	"github.com/Ramsey-B/fern/internal/repositories/cluster"
	"github.com/Ramsey-B/fern/internal/repositories/connection"
	"github.com/Ramsey-B/fern/internal/repositories/embedding"
	"github.com/Ramsey-B/fern/internal/repositories/mergecandidate"
	"github.com/Ramsey-B/fern/internal/repositories/note"
	"github.com/Ramsey-B/fern/internal/startup"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/internal/tracing/exporters"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/merge"
	"github.com/Ramsey-B/fern/pkg/models"
	candidateroutes "github.com/Ramsey-B/fern/pkg/routes/candidate"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	noteroutes "github.com/Ramsey-B/fern/pkg/routes/note"
	scanroutes "github.com/Ramsey-B/fern/pkg/routes/scan"
	"github.com/Ramsey-B/fern/pkg/scan"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	tracerProvider := setupTracing(ctx, cfg, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()

	var (
		db          *database.DatabaseInstance
		producer    *kafka.Producer
		graphClient *graph.Client
		server      *echo.Echo
		checker     *health.Checker
	)

	boot := startup.New(logger, 5)

	boot.AddDependency(&startup.Func{
		Name: "database",
		StartFunc: func(ctx context.Context) error {
			var err error
			db, err = database.Connect(database.ConnectionConfig{
				Driver:          cfg.DatabaseDriver,
				Host:            cfg.DatabaseHost,
				Port:            cfg.DatabasePort,
				UserName:        cfg.DatabaseUserName,
				Password:        cfg.DatabasePassword,
				Name:            cfg.DatabaseName,
				SSLMode:         cfg.DatabaseSSLMode,
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, logger)
			return err
		},
		StopFunc: func(ctx context.Context) error {
			return db.Close()
		},
	})

	boot.AddDependency(&startup.Func{
		Name:  "migrations",
		Needs: []string{"database"},
		StartFunc: func(ctx context.Context) error {
			driver, err := migratepg.WithInstance(db.DB.DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			migrations := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return migrations.Migrate(cfg.DatabaseName, driver)
		},
	})

	if cfg.KafkaEnabled {
		boot.AddDependency(&startup.Func{
			Name: "kafka",
			StartFunc: func(ctx context.Context) error {
				producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				return producer.Close()
			},
		})
	}

	if cfg.GraphDBEnabled {
		boot.AddDependency(&startup.Func{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				var err error
				graphClient, err = graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, logger)
				if err != nil {
					return err
				}
				return graphClient.VerifyConnectivity(ctx)
			},
			StopFunc: func(ctx context.Context) error {
				return graphClient.Close(ctx)
			},
		})
	}

	httpNeeds := []string{"database", "migrations"}
	if cfg.KafkaEnabled {
		httpNeeds = append(httpNeeds, "kafka")
	}
	if cfg.GraphDBEnabled {
		httpNeeds = append(httpNeeds, "graph")
	}

	boot.AddDependency(&startup.Func{
		Name:  "http",
		Needs: httpNeeds,
		StartFunc: func(ctx context.Context) error {
			var err error
			server, checker, err = buildServer(cfg, logger, db, producer, graphClient)
			if err != nil {
				return err
			}

			go func() {
				addr := fmt.Sprintf(":%d", cfg.Port)
				if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server stopped")
				}
			}()

			checker.SetReady(true)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			checker.SetReady(false)
			return server.Shutdown(ctx)
		},
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	logger.WithFields(map[string]any{
		"app":  cfg.AppName,
		"port": cfg.Port,
	}).Info("Service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown failed")
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func setupTracing(ctx context.Context, cfg config.Config, logger ectologger.Logger) *sdktrace.TracerProvider {
	if !cfg.TracingEnabled {
		return tracing.Setup(cfg.AppName, &exporters.ConsoleExporter{})
	}

	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.TracingOTLPEndpoint,
		Protocol: cfg.TracingOTLPProtocol,
		Insecure: cfg.TracingOTLPInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to create OTLP exporter, tracing is disabled")
		return tracing.Setup(cfg.AppName, &exporters.ConsoleExporter{})
	}

	return tracing.Setup(cfg.AppName, exporter)
}

// buildServer wires the repositories, services, DI container and routes.
func buildServer(cfg config.Config, logger ectologger.Logger, db *database.DatabaseInstance, producer *kafka.Producer, graphClient *graph.Client) (*echo.Echo, *health.Checker, error) {
	noteRepo := note.NewRepository(db, logger)
	embeddingRepo := embedding.NewRepository(db, logger)
	connectionRepo := connection.NewRepository(db, logger)
	clusterRepo := cluster.NewRepository(db, logger)
	candidateRepo := mergecandidate.NewRepository(db, logger)

	var emitter *events.Emitter
	if producer != nil {
		emitter = events.NewEmitter(producer, logger)
	}

	var scanEmitter scan.Emitter
	var mergeEmitter merge.Emitter
	if emitter != nil {
		scanEmitter = emitter
		mergeEmitter = emitter
	}

	var mirror merge.Mirror
	if graphClient != nil {
		mirror = graph.NewMirror(graphClient, logger)
	}

	scanner := scan.NewScanner(logger, noteRepo, embeddingRepo, candidateRepo, scanEmitter, scan.Config{
		Weights: models.SimilarityWeights{
			Title:     cfg.SimilarityTitleWeight,
			Content:   cfg.SimilarityContentWeight,
			Embedding: cfg.SimilarityEmbeddingWeight,
		},
		Threshold: cfg.SimilarityThreshold,
	})

	resolver := merge.NewResolver(logger, db, noteRepo, connectionRepo, clusterRepo, candidateRepo, mirror, mergeEmitter)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return nil, nil, err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return nil, nil, err
	}
	if err := ectoinject.RegisterInstance[*note.Repository](container, noteRepo); err != nil {
		return nil, nil, err
	}
	if err := ectoinject.RegisterInstance[*connection.Repository](container, connectionRepo); err != nil {
		return nil, nil, err
	}
	if err := ectoinject.RegisterInstance[*cluster.Repository](container, clusterRepo); err != nil {
		return nil, nil, err
	}
	if err := ectoinject.RegisterInstance[*mergecandidate.Repository](container, candidateRepo); err != nil {
		return nil, nil, err
	}
	if err := ectoinject.RegisterInstance[*scan.Scanner](container, scanner); err != nil {
		return nil, nil, err
	}
	if err := ectoinject.RegisterInstance[*merge.Resolver](container, resolver); err != nil {
		return nil, nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	var graphPinger health.GraphPinger
	if graphClient != nil {
		graphPinger = graphClient
	}
	checker := health.NewChecker(db.DB, graphPinger, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	scanroutes.Register(api.Group("/scan"))
	candidateroutes.Register(api.Group("/candidates"))
	noteroutes.Register(api.Group("/notes"))

	return e, checker, nil
}
