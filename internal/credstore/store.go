package credstore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/cache"
	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/observability/logger"
)

// Key identifica un registro persistido. Cada key se borra por separado.
type Key string

const (
	KeyMainUser           Key = "MainUser"
	KeyTab                Key = "Tab"
	KeyNotificationActive Key = "IsNotificationActive"
	KeyPostPicker         Key = "PostPicker"
)

// SessionKeys son las keys que pertenecen a la sesión y se borran en logout.
var SessionKeys = []Key{KeyMainUser, KeyTab}

// Store guarda registros JSON no secretos sobre un cache.Client.
type Store struct {
	c   cache.Client
	log *zap.Logger
}

// NewStore crea el store.
func NewStore(c cache.Client) *Store {
	return &Store{c: c, log: logger.Named("credstore")}
}

// Save serializa v en key, sin expiración.
func (s *Store) Save(ctx context.Context, key Key, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return apperr.MalformedData(err.Error()).WithCause(err)
	}
	if err := s.c.Set(ctx, string(key), b, 0); err != nil {
		return apperr.CredentialSaveFailure(string(key)).WithCause(err)
	}
	return nil
}

// Load decodifica key en v. Un registro ausente o ilegible devuelve false sin error;
// sólo los fallos del backend se propagan.
func (s *Store) Load(ctx context.Context, key Key, v any) (bool, error) {
	b, err := s.c.Get(ctx, string(key))
	if err != nil {
		if cache.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("credstore: leer %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.log.Warn("registro ilegible, se ignora", logger.Key(string(key)), logger.Err(err))
		return false, nil
	}
	return true, nil
}

// Delete borra key; no falla si no existe.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := s.c.Delete(ctx, string(key)); err != nil {
		return fmt.Errorf("credstore: borrar %s: %w", key, err)
	}
	return nil
}

// DeleteAll borra las keys indicadas y devuelve el primer error.
func (s *Store) DeleteAll(ctx context.Context, keys ...Key) error {
	var first error
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SaveIdentity persiste el snapshot de la identidad activa.
func (s *Store) SaveIdentity(ctx context.Context, id *domain.Identity) error {
	if id == nil {
		return s.Delete(ctx, KeyMainUser)
	}
	return s.Save(ctx, KeyMainUser, id)
}

// LoadIdentity devuelve el último snapshot guardado, o nil.
func (s *Store) LoadIdentity(ctx context.Context) (*domain.Identity, error) {
	var id domain.Identity
	ok, err := s.Load(ctx, KeyMainUser, &id)
	if err != nil || !ok {
		return nil, err
	}
	return &id, nil
}

// DeleteIdentity borra el snapshot.
func (s *Store) DeleteIdentity(ctx context.Context) error {
	return s.Delete(ctx, KeyMainUser)
}

// SaveTab persiste la pestaña seleccionada.
func (s *Store) SaveTab(ctx context.Context, tab int) error {
	return s.Save(ctx, KeyTab, tab)
}

// LoadTab devuelve la pestaña guardada (0 si no hay).
func (s *Store) LoadTab(ctx context.Context) (int, error) {
	var tab int
	if _, err := s.Load(ctx, KeyTab, &tab); err != nil {
		return 0, err
	}
	return tab, nil
}
