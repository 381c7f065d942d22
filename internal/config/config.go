// Package config carga la configuración del cliente: un YAML opcional con
// defaults sanos, pisado por variables de entorno.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | prod
		Env string `yaml:"app_env"`
		// Directorio base de los datos locales (secreto, registros, imágenes).
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Log struct {
		Level  string   `yaml:"level"`
		Output []string `yaml:"output"`
	} `yaml:"log"`

	API struct {
		// BaseURL incluye el prefijo del API.
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
		// CAFile agrega el certificado del server al pool de confianza.
		CAFile string `yaml:"ca_file"`
		// CertificateURL es el link de descarga que se ofrece ante un certificado no confiable.
		CertificateURL string `yaml:"certificate_url"`
	} `yaml:"api"`

	Secrets struct {
		// file | env | memory
		Backend    string `yaml:"backend"`
		File       string `yaml:"file"`
		Passphrase string `yaml:"passphrase"`
		EnvVar     string `yaml:"env_var"`
	} `yaml:"secrets"`

	Cache struct {
		// memory | file | redis
		Kind  string `yaml:"kind"`
		File  string `yaml:"file"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Tokens struct {
		// Edad del auth token a partir de la cual se refresca al arrancar.
		RefreshAfter string `yaml:"refresh_after"`
	} `yaml:"tokens"`

	Images struct {
		Dir                 string `yaml:"dir"`
		MaxBytes            int    `yaml:"max_bytes"`
		PrefetchConcurrency int    `yaml:"prefetch_concurrency"`
	} `yaml:"images"`

	Register struct {
		// Cuánto se recuerda un username/email tomado.
		UnavailableTTL string `yaml:"unavailable_ttl"`
	} `yaml:"register"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`

	MockAPI struct {
		Addr       string `yaml:"addr"`
		AutoVerify bool   `yaml:"auto_verify"`
		// SigningKey HS256 de los tokens; vacío = aleatoria por proceso.
		SigningKey    string `yaml:"signing_key"`
		MaxImageBytes int    `yaml:"max_image_bytes"`

		// Intentos de login por email y ventana; 0 = sin límite.
		LoginMaxAttempts int    `yaml:"login_max_attempts"`
		LoginWindow      string `yaml:"login_window"`
	} `yaml:"mockapi"`
}

// Default devuelve la configuración por defecto (con overrides de entorno).
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	c.applyEnvOverrides()
	c.resolvePaths()
	return c
}

// Load lee path. Un path vacío o inexistente no es error: se usan los
// defaults. Las duraciones inválidas sí lo son.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config: %s: %w", path, err)
			}
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()
	c.resolvePaths()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.DataDir == "" {
		c.App.DataDir = defaultDataDir()
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://127.0.0.1:8090"
	}
	if c.API.Timeout == "" {
		c.API.Timeout = "15s"
	}
	if c.Secrets.Backend == "" {
		c.Secrets.Backend = "file"
	}
	if c.Secrets.EnvVar == "" {
		c.Secrets.EnvVar = "VOCI_AUTH_TOKEN"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "file"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "voci:"
	}
	if c.Tokens.RefreshAfter == "" {
		c.Tokens.RefreshAfter = "24h"
	}
	if c.Images.MaxBytes == 0 {
		c.Images.MaxBytes = 10 << 20
	}
	if c.Images.PrefetchConcurrency == 0 {
		c.Images.PrefetchConcurrency = 4
	}
	if c.Register.UnavailableTTL == "" {
		c.Register.UnavailableTTL = "1h"
	}
	if c.MockAPI.Addr == "" {
		c.MockAPI.Addr = ":8090"
	}
	if c.MockAPI.MaxImageBytes == 0 {
		c.MockAPI.MaxImageBytes = 10 << 20
	}
	if c.MockAPI.LoginWindow == "" {
		c.MockAPI.LoginWindow = "1m"
	}
}

func defaultDataDir() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "voci")
	}
	return ".voci"
}

// resolvePaths completa las rutas relativas al directorio de datos.
func (c *Config) resolvePaths() {
	if c.Secrets.File == "" {
		c.Secrets.File = filepath.Join(c.App.DataDir, "secret.json")
	}
	if c.Cache.File == "" {
		c.Cache.File = filepath.Join(c.App.DataDir, "store.json")
	}
	if c.Images.Dir == "" {
		c.Images.Dir = filepath.Join(c.App.DataDir, "images")
	}
	if c.API.CertificateURL == "" {
		c.API.CertificateURL = strings.TrimRight(c.API.BaseURL, "/") + "/downloads/certificates"
	}
}

// Validate verifica valores críticos.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"api.timeout":              c.API.Timeout,
		"tokens.refresh_after":     c.Tokens.RefreshAfter,
		"register.unavailable_ttl": c.Register.UnavailableTTL,
		"mockapi.login_window":     c.MockAPI.LoginWindow,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("config: %s inválido: %q", name, v)
		}
	}
	switch c.Secrets.Backend {
	case "file", "env", "memory":
	default:
		return fmt.Errorf("config: secrets.backend desconocido %q", c.Secrets.Backend)
	}
	switch c.Cache.Kind {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("config: cache.kind desconocido %q", c.Cache.Kind)
	}
	if c.Images.MaxBytes < 0 {
		return fmt.Errorf("config: images.max_bytes negativo")
	}
	return nil
}

// APITimeout, RefreshAfter, UnavailableTTL y LoginWindow devuelven las duraciones ya
// validadas por Load.

func (c *Config) APITimeout() time.Duration     { return mustDur(c.API.Timeout) }
func (c *Config) RefreshAfter() time.Duration   { return mustDur(c.Tokens.RefreshAfter) }
func (c *Config) UnavailableTTL() time.Duration { return mustDur(c.Register.UnavailableTTL) }
func (c *Config) LoginWindow() time.Duration    { return mustDur(c.MockAPI.LoginWindow) }

func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa el YAML con variables de entorno VOCI_*.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("VOCI_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("VOCI_DATA_DIR"); ok {
		c.App.DataDir = v
	}

	// LOG
	if v, ok := getEnvStr("VOCI_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvCSV("VOCI_LOG_OUTPUT"); ok {
		c.Log.Output = v
	}

	// API
	if v, ok := getEnvStr("VOCI_API_BASE_URL"); ok {
		c.API.BaseURL = v
	}
	if v, ok := getEnvStr("VOCI_API_TIMEOUT"); ok {
		c.API.Timeout = v
	}
	if v, ok := getEnvStr("VOCI_API_CA_FILE"); ok {
		c.API.CAFile = v
	}
	if v, ok := getEnvStr("VOCI_API_CERTIFICATE_URL"); ok {
		c.API.CertificateURL = v
	}

	// SECRETS
	if v, ok := getEnvStr("VOCI_SECRETS_BACKEND"); ok {
		c.Secrets.Backend = strings.ToLower(v)
	}
	if v, ok := getEnvStr("VOCI_SECRETS_FILE"); ok {
		c.Secrets.File = v
	}
	if v, ok := getEnvStr("VOCI_SECRETS_PASSPHRASE"); ok {
		c.Secrets.Passphrase = v
	}
	if v, ok := getEnvStr("VOCI_SECRETS_ENV_VAR"); ok {
		c.Secrets.EnvVar = v
	}

	// CACHE
	if v, ok := getEnvStr("VOCI_CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("VOCI_CACHE_FILE"); ok {
		c.Cache.File = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// TOKENS / IMAGES / REGISTER
	if v, ok := getEnvStr("VOCI_TOKENS_REFRESH_AFTER"); ok {
		c.Tokens.RefreshAfter = v
	}
	if v, ok := getEnvStr("VOCI_IMAGES_DIR"); ok {
		c.Images.Dir = v
	}
	if v, ok := getEnvInt("VOCI_IMAGES_MAX_BYTES"); ok {
		c.Images.MaxBytes = v
	}
	if v, ok := getEnvInt("VOCI_IMAGES_PREFETCH_CONCURRENCY"); ok {
		c.Images.PrefetchConcurrency = v
	}
	if v, ok := getEnvStr("VOCI_REGISTER_UNAVAILABLE_TTL"); ok {
		c.Register.UnavailableTTL = v
	}

	// METRICS
	if v, ok := getEnvBool("VOCI_METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}

	// MOCKAPI
	if v, ok := getEnvStr("VOCI_MOCKAPI_ADDR"); ok {
		c.MockAPI.Addr = v
	}
	if v, ok := getEnvBool("VOCI_MOCKAPI_AUTO_VERIFY"); ok {
		c.MockAPI.AutoVerify = v
	}
	if v, ok := getEnvStr("VOCI_MOCKAPI_SIGNING_KEY"); ok {
		c.MockAPI.SigningKey = v
	}
	if v, ok := getEnvInt("VOCI_MOCKAPI_MAX_IMAGE_BYTES"); ok {
		c.MockAPI.MaxImageBytes = v
	}
	if v, ok := getEnvInt("VOCI_MOCKAPI_LOGIN_MAX_ATTEMPTS"); ok {
		c.MockAPI.LoginMaxAttempts = v
	}
	if v, ok := getEnvStr("VOCI_MOCKAPI_LOGIN_WINDOW"); ok {
		c.MockAPI.LoginWindow = v
	}
}
