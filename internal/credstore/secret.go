// Package credstore persiste el estado local del cliente: el secreto de
// larga vida (auth token) detrás de SecretStore y los registros no secretos
// (identidad, tab, preferencias) sobre un cache.Client.
package credstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/observability/logger"
	"github.com/dropDatabas3/voci/internal/security/secretbox"
	"github.com/dropDatabas3/voci/internal/util/atomicwrite"
)

// SecretStore guarda un único secreto. LoadSecret nunca falla: si no hay
// nada guardado o el blob no se puede leer devuelve ok=false.
type SecretStore interface {
	SaveSecret(ctx context.Context, value string) error
	LoadSecret(ctx context.Context) (string, bool)
	DeleteSecret(ctx context.Context) error
}

// =================================================================================
// FILE
// =================================================================================

// secretFile es el formato en disco.
type secretFile struct {
	Salt    string    `json:"salt"`   // base64, para argon2id
	Secret  string    `json:"secret"` // secretbox: nonce|ciphertext
	SavedAt time.Time `json:"saved_at"`
}

// FileSecretStore cifra el secreto con una clave derivada de passphrase y lo
// escribe con reemplazo atómico: nunca quedan dos secretos en disco.
type FileSecretStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
	log        *zap.Logger
}

// NewFileSecretStore crea el store en path. La passphrase no puede ser vacía.
func NewFileSecretStore(path, passphrase string) (*FileSecretStore, error) {
	if passphrase == "" {
		return nil, errors.New("credstore: passphrase requerida para el secret store en archivo")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("credstore: crear directorio: %w", err)
	}
	return &FileSecretStore{path: path, passphrase: passphrase, log: logger.Named("credstore")}, nil
}

// SaveSecret cifra y reemplaza el secreto anterior en un solo paso.
func (s *FileSecretStore) SaveSecret(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	salt, err := secretbox.NewSalt()
	if err != nil {
		return apperr.CredentialSaveFailure("token").WithCause(err)
	}
	box, err := secretbox.New(secretbox.DeriveKey(s.passphrase, salt))
	if err != nil {
		return apperr.CredentialSaveFailure("token").WithCause(err)
	}
	sealed, err := box.Seal([]byte(value))
	if err != nil {
		return apperr.CredentialSaveFailure("token").WithCause(err)
	}
	data, err := json.Marshal(secretFile{
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Secret:  sealed,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return apperr.CredentialSaveFailure("token").WithCause(err)
	}
	if err := atomicwrite.WriteFile(s.path, data, 0o600); err != nil {
		return apperr.CredentialSaveFailure("token").WithCause(err)
	}
	return nil
}

// LoadSecret descifra el secreto; cualquier problema de lectura es "ausente".
func (s *FileSecretStore) LoadSecret(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("no se pudo leer el secreto", logger.Path(s.path), logger.Err(err))
		}
		return "", false
	}
	var f secretFile
	if err := json.Unmarshal(data, &f); err != nil {
		s.log.Warn("secreto ilegible", logger.Path(s.path), logger.Err(err))
		return "", false
	}
	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil || len(salt) != secretbox.SaltLength {
		s.log.Warn("salt inválido", logger.Path(s.path))
		return "", false
	}
	box, err := secretbox.New(secretbox.DeriveKey(s.passphrase, salt))
	if err != nil {
		return "", false
	}
	pt, err := box.Open(f.Secret)
	if err != nil {
		s.log.Warn("no se pudo descifrar el secreto", logger.Path(s.path), logger.Err(err))
		return "", false
	}
	if len(pt) == 0 {
		return "", false
	}
	return string(pt), true
}

// DeleteSecret borra el archivo; no falla si no existe.
func (s *FileSecretStore) DeleteSecret(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := atomicwrite.Remove(s.path); err != nil {
		return fmt.Errorf("credstore: borrar secreto: %w", err)
	}
	return nil
}

// =================================================================================
// ENV
// =================================================================================

// EnvSecretStore lee el secreto de una variable de entorno (contextos de
// servidor). Guardar o borrar sólo afecta al proceso actual.
type EnvSecretStore struct {
	Var string

	mu       sync.RWMutex
	override *string
}

// NewEnvSecretStore crea el store sobre la variable name.
func NewEnvSecretStore(name string) *EnvSecretStore {
	return &EnvSecretStore{Var: name}
}

func (s *EnvSecretStore) SaveSecret(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = &value
	return nil
}

func (s *EnvSecretStore) LoadSecret(ctx context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := os.Getenv(s.Var)
	if s.override != nil {
		v = *s.override
	}
	return v, v != ""
}

func (s *EnvSecretStore) DeleteSecret(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	empty := ""
	s.override = &empty
	return nil
}

// =================================================================================
// MEMORY
// =================================================================================

// MemorySecretStore guarda el secreto en memoria (tests). FailSave fuerza
// que SaveSecret falle.
type MemorySecretStore struct {
	mu       sync.Mutex
	value    string
	FailSave error
}

func NewMemorySecretStore() *MemorySecretStore { return &MemorySecretStore{} }

func (s *MemorySecretStore) SaveSecret(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSave != nil {
		return apperr.CredentialSaveFailure("token").WithCause(s.FailSave)
	}
	s.value = value
	return nil
}

func (s *MemorySecretStore) LoadSecret(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.value != ""
}

func (s *MemorySecretStore) DeleteSecret(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = ""
	return nil
}
