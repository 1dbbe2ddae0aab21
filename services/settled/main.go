package settled

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gridsettle/crypto"
	"gridsettle/ledger"
	"gridsettle/observability/logging"
	telemetry "gridsettle/observability/otel"
	"gridsettle/settlement"
	"gridsettle/storage"
)

func loadAuthorityKey(cfg AuthorityConfig) (*crypto.PrivateKey, error) {
	if cfg.Keystore != "" {
		passphrase := os.Getenv(cfg.KeystorePassphraseEnv)
		return crypto.LoadAuthorityKeystore(cfg.Keystore, passphrase)
	}
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(cfg.Key), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode hex key: %w", err)
	}
	return crypto.PrivateKeyFromBytes(keyBytes)
}

// Main initialises and runs the settlement daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/settled/config.yaml", "path to settled configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("GRIDSETTLE_ENV"))

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("settled", env, logging.Options{
		FilePath:   cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "settled",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	authority, err := loadAuthorityKey(cfg.Authority)
	if err != nil {
		return fmt.Errorf("load authority key: %w", err)
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	client := ledger.NewRPCClient(ledger.RPCConfig{
		URL:     cfg.Ledger.Endpoint,
		Timeout: cfg.Ledger.Timeout.Duration,
	})

	engine, err := settlement.NewEngine(client, authority, settlement.Config{
		MaxGroupItems:      cfg.Engine.MaxGroupItems,
		MaxGroupAmount:     cfg.Engine.MaxGroupAmount,
		MaxBatchClaims:     cfg.Engine.MaxBatchClaims,
		MaxInFlight:        cfg.Engine.MaxInFlight,
		SubmitRate:         cfg.Engine.SubmitRate,
		BaseFee:            cfg.Engine.BaseFee,
		AccountCreationFee: cfg.Engine.AccountCreationFee,
	}, settlement.WithLogger(logger), settlement.WithMetrics(NewMetrics()))
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	logger.Info("settled configured",
		"listen", cfg.ListenAddress,
		"ledger", cfg.Ledger.Endpoint,
		"database", cfg.DatabasePath,
		logging.MaskField("authority_key", cfg.Authority.Key),
	)

	apiServer := NewServer(engine, store, cfg.Admin.BearerToken, logger)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(apiServer, "settled.api"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		log.Printf("settled listening on %s", cfg.ListenAddress)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
