// Command routingctl is the Routing Controller's CLI: `deploy` declares
// every group's topic and worker service, `teardown` reverses it, and
// `runserver` serves the Router Frontend HTTP surface (spec §4.6-4.7,
// §6).
//
// Grounded on
// routing_layer/app/cli.py's deploy/teardown/runserver subcommands,
// restated over Go's flag.FlagSet subcommand idiom.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	apimw "github.com/openfactory/assetstream/pkg/api/middleware"
	"github.com/openfactory/assetstream/pkg/compute/container"
	containermem "github.com/openfactory/assetstream/pkg/compute/container/adapters/memory"
	"github.com/openfactory/assetstream/pkg/concurrency/distlock"
	distlockmem "github.com/openfactory/assetstream/pkg/concurrency/distlock/adapters/memory"
	distlockredis "github.com/openfactory/assetstream/pkg/concurrency/distlock/adapters/redis"
	"github.com/openfactory/assetstream/pkg/config"
	"github.com/openfactory/assetstream/pkg/controller"
	"github.com/openfactory/assetstream/pkg/database"
	"github.com/openfactory/assetstream/pkg/deploy"
	deploymem "github.com/openfactory/assetstream/pkg/deploy/adapters/memory"
	"github.com/openfactory/assetstream/pkg/deploy/adapters/dockerswarm"
	sqldb "github.com/openfactory/assetstream/pkg/database/sql"
	sqlmysql "github.com/openfactory/assetstream/pkg/database/sql/adapters/mysql"
	sqlpostgres "github.com/openfactory/assetstream/pkg/database/sql/adapters/postgres"
	sqlsqlite "github.com/openfactory/assetstream/pkg/database/sql/adapters/sqlite"
	sqlmssql "github.com/openfactory/assetstream/pkg/database/sql/adapters/mssql"
	"github.com/openfactory/assetstream/pkg/grouping"
	"github.com/openfactory/assetstream/pkg/logger"
	"github.com/openfactory/assetstream/pkg/router"
	"github.com/openfactory/assetstream/pkg/telemetry"
	"github.com/openfactory/assetstream/pkg/validator"
	goredis "github.com/redis/go-redis/v9"
)

// appConfig aggregates every env-tagged setting routingctl needs, across
// the database, deployment backend, lock coordination and grouping
// projection concerns.
type appConfig struct {
	DB     sqldb.Config
	Deploy deploy.Config

	GroupingLevel string `env:"GROUPING_LEVEL" env-default:"workcenter"`

	DeploymentMode string `env:"DEPLOYMENT_MODE" env-default:"eager"`

	LockDriver string `env:"LOCK_DRIVER" env-default:"memory"`
	RedisAddr  string `env:"REDIS_ADDR" env-default:"localhost:6379"`

	ListenAddr string `env:"LISTEN_ADDR" env-default:":8080"`

	Telemetry telemetry.Config
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{})

	if cfg.Telemetry.ServiceName == "unknown-service" {
		cfg.Telemetry.ServiceName = "routingctl"
	}
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		logger.L().Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl, err := buildController(cfg)
	if err != nil {
		logger.L().Error("failed to build routing controller", "error", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "deploy":
		fs := flag.NewFlagSet("deploy", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		if err := ctrl.Deploy(ctx); err != nil {
			logger.L().Error("deploy failed", "error", err)
			os.Exit(1)
		}
	case "teardown":
		fs := flag.NewFlagSet("teardown", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		if err := ctrl.Teardown(ctx); err != nil {
			logger.L().Error("teardown failed", "error", err)
			os.Exit(1)
		}
	case "runserver":
		fs := flag.NewFlagSet("runserver", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		runServer(ctx, cfg, ctrl)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: routingctl <deploy|teardown|runserver>")
}

func runServer(ctx context.Context, cfg appConfig, ctrl *controller.Controller) {
	frontend := router.New(ctrl)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware("routingctl"))
	e.Use(echo.WrapMiddleware(apimw.SanitizeMiddleware(validator.NewSanitizer())))
	e.Use(echo.WrapMiddleware(apimw.SecureJSONMiddleware()))
	e.Use(echo.WrapMiddleware(apimw.RequestIDMiddleware()))
	e.Use(echo.WrapMiddleware(apimw.SecurityHeaders(apimw.DefaultSecurityHeadersConfig())))
	frontend.Register(e)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.L().Error("http server stopped unexpectedly", "error", err)
		}
	}()

	<-ctx.Done()
	logger.L().Info("shutting down routingctl")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("http server shutdown error", "error", err)
	}
}

func buildController(cfg appConfig) (*controller.Controller, error) {
	db, err := buildSQL(cfg.DB)
	if err != nil {
		return nil, err
	}
	strategy := grouping.New(db, cfg.GroupingLevel)

	backend, err := buildBackend(cfg.Deploy)
	if err != nil {
		return nil, err
	}

	locker := buildLocker(cfg)

	mode := controller.ModeEager
	if cfg.DeploymentMode == "lazy" {
		mode = controller.ModeLazy
	}

	return controller.New(strategy, backend, locker, controller.Config{Mode: mode}), nil
}

func buildSQL(cfg sqldb.Config) (sqldb.SQL, error) {
	switch cfg.Driver {
	case database.DriverMySQL:
		return sqlmysql.New(cfg)
	case database.DriverSQLite:
		return sqlsqlite.New(cfg)
	case database.DriverSQLServer:
		return sqlmssql.New(cfg)
	default:
		return sqlpostgres.New(cfg)
	}
}

func buildBackend(cfg deploy.Config) (deploy.Backend, error) {
	if cfg.Environment == deploy.EnvironmentLocal {
		return deploymem.New(cfg, buildContainerRuntime()), nil
	}
	return dockerswarm.New(cfg)
}

func buildContainerRuntime() container.ContainerRuntime {
	return containermem.New()
}

func buildLocker(cfg appConfig) distlock.Locker {
	if cfg.LockDriver == "redis" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return distlockredis.New(client, "routingctl")
	}
	return distlockmem.New()
}
