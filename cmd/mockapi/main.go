// mockapi levanta el API de Voci di Corridoio en memoria para desarrollo
// local del cliente. Los datos viven sólo mientras corre el proceso.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/voci/internal/apitest"
	"github.com/dropDatabas3/voci/internal/config"
	"github.com/dropDatabas3/voci/internal/observability/logger"
	"github.com/dropDatabas3/voci/internal/rate"
)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// newHandler monta el API y /metrics sobre un registry propio.
func newHandler(cfg *config.Config, seedPath string) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	limiter, err := newLoginLimiter(cfg)
	if err != nil {
		return nil, err
	}
	srv := apitest.New(apitest.Options{
		SigningKey:    []byte(cfg.MockAPI.SigningKey),
		MaxImageBytes: cfg.MockAPI.MaxImageBytes,
		AutoVerify:    cfg.MockAPI.AutoVerify,
		Registerer:    reg,
		LoginLimiter:  limiter,
	})
	if seedPath != "" {
		seed, err := apitest.LoadSeed(seedPath)
		if err != nil {
			return nil, err
		}
		if err := srv.ApplySeed(seed, filepath.Dir(seedPath)); err != nil {
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/", srv.Router())
	return r, nil
}

// newLoginLimiter usa redis cuando el cache del cliente es redis (varias
// instancias comparten el conteo) y memoria en otro caso.
func newLoginLimiter(cfg *config.Config) (rate.Limiter, error) {
	max := cfg.MockAPI.LoginMaxAttempts
	if max <= 0 {
		return nil, nil
	}
	if cfg.Cache.Kind != "redis" {
		return rate.NewMemoryLimiter(max, cfg.LoginWindow()), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rate limiter: redis ping: %w", err)
	}
	return rate.NewRedisLimiter(client, cfg.Cache.Redis.Prefix+"rl:", max, cfg.LoginWindow()), nil
}

func main() {
	var (
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (fallback: $VOCI_CONFIG)")
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (si existe, se carga)")
		flagSeed       = flag.String("seed", "", "archivo YAML con clases y cuentas iniciales")
		flagAddr       = flag.String("addr", "", "dirección de escucha (pisa mockapi.addr)")
	)
	flag.Parse()

	if *flagEnvFile != "" && fileExists(*flagEnvFile) {
		if err := godotenv.Load(*flagEnvFile); err == nil {
			log.Printf("dotenv: cargado %s", *flagEnvFile)
		}
	}

	cfgPath := *flagConfigPath
	if cfgPath == "" {
		cfgPath = os.Getenv("VOCI_CONFIG")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *flagAddr != "" {
		cfg.MockAPI.Addr = *flagAddr
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, Output: cfg.Log.Output})
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("mockapi")

	handler, err := newHandler(cfg, *flagSeed)
	if err != nil {
		lg.Fatal("seed", logger.Err(err))
	}

	srv := &http.Server{
		Addr:              cfg.MockAPI.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	lg.Sugar().Infow("mock API up", "addr", cfg.MockAPI.Addr, "auto_verify", cfg.MockAPI.AutoVerify, "seed", *flagSeed)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Fatal("http", logger.Err(err))
	}
}
