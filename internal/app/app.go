// Package app arma el grafo de dependencias del cliente a partir de la
// configuración. Es la única pieza que conoce todos los componentes.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/dropDatabas3/voci/internal/api"
	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/cache"
	"github.com/dropDatabas3/voci/internal/config"
	"github.com/dropDatabas3/voci/internal/credstore"
	"github.com/dropDatabas3/voci/internal/metrics"
	"github.com/dropDatabas3/voci/internal/notify"
	"github.com/dropDatabas3/voci/internal/observability/logger"
	"github.com/dropDatabas3/voci/internal/profileimage"
	"github.com/dropDatabas3/voci/internal/session"
	"github.com/dropDatabas3/voci/internal/token"
)

// Container contiene las dependencias ya conectadas.
type Container struct {
	Config *config.Config

	// Registry es nil si las métricas están deshabilitadas.
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	API        *api.Client
	Cache      cache.Client
	Store      *credstore.Store
	Secrets    credstore.SecretStore
	Center     *notify.Center
	Classifier *apperr.Classifier
	Tokens     *token.Coordinator
	Images     *profileimage.Pipeline
	Session    *session.Manager

	log *zap.Logger
}

// New construye el contenedor. No toca la red: la sesión queda Anonymous
// hasta que el caller invoque Session.Reinitialize.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("app: config requerida")
	}
	c := &Container{Config: cfg, log: logger.Named("app")}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		m, err := metrics.New(reg)
		if err != nil {
			return nil, fmt.Errorf("app: metrics: %w", err)
		}
		c.Registry, c.Metrics = reg, m
	}

	client, err := api.New(api.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.APITimeout(),
		CAFile:  cfg.API.CAFile,
		Metrics: c.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: api: %w", err)
	}
	c.API = client

	kv, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Kind,
		Path:     cfg.Cache.File,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("app: cache: %w", err)
	}
	if err := kv.Ping(ctx); err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("app: cache %s: %w", cfg.Cache.Kind, err)
	}
	c.Cache = kv
	c.Store = credstore.NewStore(kv)

	secrets, err := newSecretStore(cfg)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	c.Secrets = secrets

	c.Center = notify.NewCenter(ctx, c.Store)
	c.Classifier = apperr.NewClassifier(c.Center, cfg.API.CertificateURL, c.Metrics)
	c.Tokens = token.NewCoordinator(client, token.Options{Metrics: c.Metrics})

	images, err := profileimage.New(client, c.Tokens, profileimage.Options{
		Dir:      cfg.Images.Dir,
		MaxBytes: cfg.Images.MaxBytes,
		Metrics:  c.Metrics,
	})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	c.Images = images

	c.Session = session.New(session.Deps{
		Remote:   client,
		Tokens:   c.Tokens,
		Secrets:  secrets,
		Store:    c.Store,
		Images:   images,
		Reporter: c.Classifier,
		Notifier: c.Center,
		Metrics:  c.Metrics,
	}, session.Options{
		UnavailableTTL:      cfg.UnavailableTTL(),
		PrefetchConcurrency: cfg.Images.PrefetchConcurrency,
		RefreshAfter:        cfg.RefreshAfter(),
	})
	// el clasificador refresca la identidad cuando el server lo pide
	c.Classifier.SetRefresher(c.Session)

	c.log.Debug("contenedor listo",
		zap.String("base_url", cfg.API.BaseURL),
		zap.String("cache", cfg.Cache.Kind),
		zap.String("secrets", cfg.Secrets.Backend),
	)
	return c, nil
}

func newSecretStore(cfg *config.Config) (credstore.SecretStore, error) {
	switch cfg.Secrets.Backend {
	case "memory":
		return credstore.NewMemorySecretStore(), nil
	case "env":
		return credstore.NewEnvSecretStore(cfg.Secrets.EnvVar), nil
	case "file":
		s, err := credstore.NewFileSecretStore(cfg.Secrets.File, cfg.Secrets.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("app: secrets: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("app: secrets.backend desconocido %q", cfg.Secrets.Backend)
	}
}

// Wait espera los trabajos en background de la sesión y del clasificador.
func (c *Container) Wait() {
	c.Session.Wait()
	c.Classifier.Wait()
}

// Close espera el trabajo pendiente y libera el cache.
func (c *Container) Close() error {
	c.Wait()
	if c.Cache != nil {
		return c.Cache.Close()
	}
	return nil
}
