// Command ledgerd runs the pooled lending ledger as a standalone HTTP
// service: it loads config/config.go's TOML document, seeds the configured
// groups and banks into an in-memory store, and serves the six ledger
// instructions behind api.New, grounded on cmd/p2pd/main.go's bootstrap shape
// (flag parsing, structured logging, OpenTelemetry init with deferred
// shutdown, then start-and-block).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coreledger/marginbank/api"
	"github.com/coreledger/marginbank/config"
	"github.com/coreledger/marginbank/native/ledger"
	"github.com/coreledger/marginbank/native/ledger/memstore"
	"github.com/coreledger/marginbank/observability"
	"github.com/coreledger/marginbank/observability/logging"
	telemetry "github.com/coreledger/marginbank/observability/otel"
)

func main() {
	configFile := flag.String("config", "./ledgerd.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LEDGERD_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger := logging.Setup(cfg.Service.Name, env)

	otlpEndpoint := cfg.Telemetry.OTLPEndpoint
	insecure := cfg.Telemetry.Insecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: cfg.Service.Name,
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialise telemetry: %v", err))
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	store := memstore.New()
	oracle := memstore.NewStaticOracle()
	vault := memstore.NewVault()
	clock := func() uint64 { return uint64(time.Now().Unix()) }

	engine := ledger.NewEngine(store, oracle, vault, clock)

	if err := seedGroups(engine, cfg.Groups); err != nil {
		logger.Error("failed to seed configured groups", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.Ledger()
	auth := api.NewAuthenticator(api.AuthConfig{
		Enabled: cfg.HTTP.JWTSecret != "",
		Secret:  cfg.HTTP.JWTSecret,
		Issuer:  cfg.HTTP.JWTIssuer,
	})
	limiter := api.NewRateLimiter(cfg.HTTP.RateLimitPerSecond, cfg.HTTP.RateLimitBurst)

	handler := api.New(api.Config{
		Engine:      engine,
		Auth:        auth,
		RateLimiter: limiter,
		Metrics:     metrics,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("ledgerd listening", slog.String("address", cfg.HTTP.ListenAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("ledgerd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}

// seedGroups creates every configured group and bank at startup, so an
// operator can boot ledgerd with a ready-to-use TOML fixture instead of
// driving the admin HTTP surface by hand. Oracle prices are not part of
// config.Config; ledgerd starts with an empty StaticOracle and expects an
// operator or test harness to call SetPrice before accepting traffic that
// requires a health evaluation.
func seedGroups(engine *ledger.Engine, groups []config.GroupConfig) error {
	for _, g := range groups {
		admin, err := g.AdminPrincipal()
		if err != nil {
			return fmt.Errorf("group %s: %w", g.ID, err)
		}
		if err := engine.CreateGroup(g.ID, admin); err != nil {
			return fmt.Errorf("group %s: %w", g.ID, err)
		}
		for _, b := range g.Banks {
			bankCfg, liquidity, insurance, fee, err := b.ToLedgerConfig()
			if err != nil {
				return fmt.Errorf("group %s bank %s: %w", g.ID, b.AssetMint, err)
			}
			if _, err := engine.AddBank(g.ID, admin, b.AssetMint, bankCfg, liquidity, insurance, fee); err != nil {
				return fmt.Errorf("group %s bank %s: %w", g.ID, b.AssetMint, err)
			}
		}
	}
	return nil
}
