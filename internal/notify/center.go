// Package notify mantiene las colas de notificaciones (toasts y alertas)
// que la capa de UI consume, y las preferencias persistidas que las habilitan.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/credstore"
	"github.com/dropDatabas3/voci/internal/observability/logger"
)

// Flags son las preferencias del usuario sobre notificaciones.
type Flags struct {
	AlertsEnabled bool `json:"alerts"`
	ToastsEnabled bool `json:"toasts"`
}

// DefaultFlags: todo habilitado.
func DefaultFlags() Flags { return Flags{AlertsEnabled: true, ToastsEnabled: true} }

// FlagStore persiste las Flags (credstore.Store lo implementa).
type FlagStore interface {
	Save(ctx context.Context, key credstore.Key, v any) error
	Load(ctx context.Context, key credstore.Key, v any) (bool, error)
	Delete(ctx context.Context, key credstore.Key) error
}

// Item es lo que reciben los suscriptores: un toast o una alerta.
type Item struct {
	Toast *apperr.Notification
	Alert *apperr.Alert
}

const subscriberBuffer = 16

// Center implementa apperr.Sink.
type Center struct {
	store FlagStore
	log   *zap.Logger

	mu     sync.Mutex
	flags  Flags
	toasts []apperr.Notification
	alerts []apperr.Alert
	subs   map[int]chan Item
	nextID int
}

// NewCenter crea el centro y carga las flags persistidas (store puede ser nil).
func NewCenter(ctx context.Context, store FlagStore) *Center {
	c := &Center{
		store: store,
		log:   logger.Named("notify"),
		flags: DefaultFlags(),
		subs:  map[int]chan Item{},
	}
	if store != nil {
		var f Flags
		ok, err := store.Load(ctx, credstore.KeyNotificationActive, &f)
		if err != nil {
			c.log.Warn("no se pudieron cargar las preferencias", logger.Err(err))
		} else if ok {
			c.flags = f
		}
	}
	return c
}

// Toast encola un toast si están habilitados.
func (c *Center) Toast(n apperr.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.flags.ToastsEnabled {
		return
	}
	c.toasts = append(c.toasts, n)
	c.broadcastLocked(Item{Toast: &n})
}

// Alert encola una alerta si están habilitadas.
func (c *Center) Alert(a apperr.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.flags.AlertsEnabled {
		return
	}
	c.alerts = append(c.alerts, a)
	c.broadcastLocked(Item{Alert: &a})
}

// NextToast saca el primer toast de la cola.
func (c *Center) NextToast() (apperr.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toasts) == 0 {
		return apperr.Notification{}, false
	}
	n := c.toasts[0]
	c.toasts = c.toasts[1:]
	return n, true
}

// NextAlert saca la primera alerta de la cola.
func (c *Center) NextAlert() (apperr.Alert, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.alerts) == 0 {
		return apperr.Alert{}, false
	}
	a := c.alerts[0]
	c.alerts = c.alerts[1:]
	return a, true
}

// Pending devuelve cuántos toasts y alertas hay en cola.
func (c *Center) Pending() (toasts, alerts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.toasts), len(c.alerts)
}

// Drain vacía la cola de toasts y los devuelve en orden.
func (c *Center) Drain() []apperr.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.toasts
	c.toasts = nil
	return out
}

// Flags devuelve las preferencias actuales.
func (c *Center) Flags() Flags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags
}

// SetFlags cambia y persiste las preferencias.
func (c *Center) SetFlags(ctx context.Context, f Flags) error {
	c.mu.Lock()
	c.flags = f
	c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	return c.store.Save(ctx, credstore.KeyNotificationActive, f)
}

// Subscribe devuelve un canal con cada item encolado. Un suscriptor lento
// pierde items (el canal tiene buffer fijo). cancel cierra el canal.
func (c *Center) Subscribe() (<-chan Item, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan Item, subscriberBuffer)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

func (c *Center) broadcastLocked(it Item) {
	for _, ch := range c.subs {
		select {
		case ch <- it:
		default:
		}
	}
}

// Reset vacía ambas colas, vuelve las flags a default y borra las persistidas.
func (c *Center) Reset(ctx context.Context) {
	c.mu.Lock()
	c.toasts = nil
	c.alerts = nil
	c.flags = DefaultFlags()
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, credstore.KeyNotificationActive); err != nil {
		c.log.Warn("no se pudieron borrar las preferencias", logger.Err(err))
	}
}
