package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dropzero/dropzero/internal/relay"
	"github.com/dropzero/dropzero/internal/relayhttp"
)

func main() {
	addr := envOrDefault("UD_ADDR", ":8080")

	stateBackend, err := relay.BuildStateBackendFromDSN(os.Getenv("UD_STATE_BACKEND_DSN"))
	if err != nil {
		log.Fatalf("failed to initialize state backend: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobStore, err := relay.BuildBlobStoreFromDSN(rootCtx, os.Getenv("UD_BLOB_STORE_DSN"))
	if err != nil {
		log.Fatalf("failed to initialize blob store: %v", err)
	}

	actor, err := relay.NewActor(stateBackend, relay.Config{
		APIKey:       os.Getenv("UD_API_KEY"),
		RateLimitSec: int64Env("UD_RATE_LIMIT_SEC", 10),
		MaxPending:   intEnv("UD_MAX_PENDING", 10),
		TTLSec:       int64Env("UD_TTL_SEC", 86400),
	})
	if err != nil {
		log.Fatalf("failed to initialize relay actor: %v", err)
	}

	relay.RegisterMetrics()

	server := relayhttp.NewServer(actor, blobStore, relayhttp.Config{
		BasePath: os.Getenv("UD_BASE_PATH"),
		MaxBytes: int64Env("UD_MAX_MB", 50) << 20,
	})

	scheduler := relay.NewScheduler(actor, durationEnv("UD_SCHEDULER_INTERVAL", time.Minute))
	go scheduler.Run(rootCtx)

	httpServer := &http.Server{Addr: addr, Handler: server}
	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("relay listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
