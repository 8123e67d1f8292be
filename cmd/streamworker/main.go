// Command streamworker runs one group's Stream Dispatcher and SSE
// Endpoint: it fans its configured bus topic out to subscriber queues and
// serves GET /asset_stream, /health and /ready (spec §3, §4.2-4.3, §6).
//
// Grounded on
// services/fastapi_group/app/main.py's worker process bootstrap (one
// dispatcher thread + one HTTP app per group), restated with the
// dispatcher running on a managed goroutine and echo serving the HTTP
// surface on the main goroutine.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	apimw "github.com/openfactory/assetstream/pkg/api/middleware"
	"github.com/openfactory/assetstream/pkg/cache"
	cachemem "github.com/openfactory/assetstream/pkg/cache/adapters/memory"
	cacheredis "github.com/openfactory/assetstream/pkg/cache/adapters/redis"
	"github.com/openfactory/assetstream/pkg/config"
	"github.com/openfactory/assetstream/pkg/dispatcher"
	"github.com/openfactory/assetstream/pkg/errors"
	"github.com/openfactory/assetstream/pkg/logger"
	"github.com/openfactory/assetstream/pkg/messaging"
	kafkabroker "github.com/openfactory/assetstream/pkg/messaging/adapters/kafka"
	memorybroker "github.com/openfactory/assetstream/pkg/messaging/adapters/memory"
	"github.com/openfactory/assetstream/pkg/registry"
	"github.com/openfactory/assetstream/pkg/snapshot"
	"github.com/openfactory/assetstream/pkg/sse"
	"github.com/openfactory/assetstream/pkg/telemetry"
	"github.com/openfactory/assetstream/pkg/validator"
)

// workerConfig is injected by the Routing Controller via deploy.Base.ServiceEnv
// plus this binary's own listen/match-mode settings.
type workerConfig struct {
	BrokerDriver string `env:"BROKER_DRIVER" env-default:"kafka"`
	KafkaBroker  string `env:"KAFKA_BROKER"`

	BrokerResilience messaging.ResilientBrokerConfig

	Topic string `env:"KAFKA_TOPIC" validate:"required"`
	Group string `env:"KAFKA_CONSUMER_GROUP_ID" validate:"required"`

	// MatchMode selects exact (routing by bare asset_uuid) or prefix
	// (routing by "asset_uuid|data_item_id") matching, and must agree
	// with the group's grouping strategy (spec §3, §4.2).
	MatchMode string `env:"MATCH_MODE" env-default:"exact"`

	ListenAddr string `env:"LISTEN_ADDR" env-default:":5555"`

	// Cache backs the optional Point-query Adapter's projection reads
	// (spec §4.8). Worker groups that carry no point-query traffic can
	// leave it on its memory default; it is never used for SSE fan-out.
	Cache       cache.Config
	BloomFilter cache.BloomCacheConfig
	Resilience  cache.ResilientConfig

	Telemetry telemetry.Config
}

func main() {
	var cfg workerConfig
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{})

	if cfg.Telemetry.ServiceName == "unknown-service" {
		cfg.Telemetry.ServiceName = "streamworker"
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

	broker, err := buildBroker(cfg)
	if err != nil {
		logger.L().Error("failed to build message broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	matchMode := registry.MatchExact
	if cfg.MatchMode == "prefix" {
		matchMode = registry.MatchPrefix
	}

	store, err := buildCache(cfg)
	if err != nil {
		logger.L().Error("failed to build point-query cache", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	snap := snapshot.New(store)

	reg := registry.New()
	d, err := dispatcher.New(broker, reg, dispatcher.Config{
		Topic:     cfg.Topic,
		Group:     cfg.Group,
		MatchMode: matchMode,
		Projector: snap,
	})
	if err != nil {
		logger.L().Error("failed to build dispatcher", "error", err)
		os.Exit(1)
	}
	d.RunInBackground(ctx)

	endpoint := sse.New(reg, sse.Config{MatchMode: matchMode})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware("streamworker"))
	e.Use(echo.WrapMiddleware(apimw.SanitizeMiddleware(validator.NewSanitizer())))
	e.Use(echo.WrapMiddleware(apimw.SecureJSONMiddleware()))
	e.Use(echo.WrapMiddleware(apimw.RequestIDMiddleware()))
	e.Use(echo.WrapMiddleware(apimw.SecurityHeaders(apimw.DefaultSecurityHeadersConfig())))

	e.GET("/asset_stream", endpoint.Handle)
	e.GET("/asset_state", func(c echo.Context) error {
		assetUUID := c.QueryParam("asset_uuid")
		if assetUUID == "" {
			appErr := errors.InvalidArgument("asset_uuid is required", nil)
			return c.JSON(appErr.HTTPStatus(), map[string]string{"error": appErr.Message})
		}
		records, err := snap.Snapshot(c.Request().Context(), assetUUID, c.QueryParam("id"))
		if err != nil {
			var appErr *errors.AppError
			if errors.As(err, &appErr) {
				return c.JSON(appErr.HTTPStatus(), map[string]string{"error": appErr.Message})
			}
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if len(records) == 1 && c.QueryParam("id") != "" {
			return c.JSON(http.StatusOK, records[0])
		}
		return c.JSON(http.StatusOK, records)
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if d.State() != dispatcher.Running {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "not ready",
				"issues": map[string]string{"dispatcher": d.State().String()},
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	})

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.L().Error("http server stopped unexpectedly", "error", err)
		}
	}()

	<-ctx.Done()
	logger.L().Info("shutting down streamworker")

	d.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("http server shutdown error", "error", err)
	}

	d.Wait()
}

func buildBroker(cfg workerConfig) (messaging.Broker, error) {
	if cfg.BrokerDriver == "memory" {
		return memorybroker.New(memorybroker.Config{}), nil
	}
	broker, err := kafkabroker.New(kafkabroker.Config{Brokers: strings.Split(cfg.KafkaBroker, ",")})
	if err != nil {
		return nil, err
	}
	return messaging.NewResilientBroker(broker, cfg.BrokerResilience), nil
}

// buildCache wraps the configured cache driver with a Bloom filter so a
// group with a cold projection can reject asset_state lookups for unknown
// assets without a round trip to the backing store.
func buildCache(cfg workerConfig) (cache.Cache, error) {
	var store cache.Cache
	if cfg.Cache.Driver == "redis" {
		redisStore, err := cacheredis.New(cfg.Cache)
		if err != nil {
			return nil, err
		}
		store = cache.NewResilientCache(redisStore, cfg.Resilience)
	} else {
		store = cachemem.New()
	}
	return cache.NewBloomCache(store, cfg.BloomFilter), nil
}
