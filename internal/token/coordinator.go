package token

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/voci/internal/api"
	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/metrics"
	"github.com/dropDatabas3/voci/internal/observability/logger"
)

// Kind es el tipo de token: api.ScopeAuth o api.ScopeUser.
type Kind = api.Scope

const (
	Auth = api.ScopeAuth
	User = api.ScopeUser
)

// DefaultRefreshAfter es la edad a partir de la cual el auth token se refresca.
const DefaultRefreshAfter = 24 * time.Hour

// Remote es la parte del API que usa el coordinador (*api.Client lo implementa).
type Remote interface {
	ValidateToken(ctx context.Context, s api.Scope, secret string) (bool, error)
	RefreshToken(ctx context.Context, s api.Scope, secret string) (string, error)
}

// Options configura el coordinador.
type Options struct {
	Metrics *metrics.Metrics

	// OnAuthRefreshed se llama (con el gate tomado) cuando un auth token
	// refrescado queda comprometido en el slot. El session manager lo usa para
	// persistir el secreto nuevo.
	OnAuthRefreshed func(ctx context.Context, s Secret)
}

// State es una foto de los slots y los refrescos en curso.
type State struct {
	HasAuth        bool
	HasUser        bool
	AuthLoading    bool
	AuthRefreshing bool
	UserRefreshing bool
}

// Coordinator es el dueño de los dos slots de token.
type Coordinator struct {
	remote  Remote
	metrics *metrics.Metrics
	onAuth  func(ctx context.Context, s Secret)
	log     *zap.Logger

	mu   sync.RWMutex
	auth Secret
	user Secret

	authGate Gate
	userGate Gate
	loading  Latch

	validations singleflight.Group
}

// NewCoordinator crea el coordinador con slots vacíos.
func NewCoordinator(remote Remote, opts Options) *Coordinator {
	return &Coordinator{
		remote:  remote,
		metrics: opts.Metrics,
		onAuth:  opts.OnAuthRefreshed,
		log:     logger.Named("token"),
	}
}

// OnAuthRefreshed reemplaza el hook de Options.OnAuthRefreshed.
func (c *Coordinator) OnAuthRefreshed(fn func(ctx context.Context, s Secret)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuth = fn
}

// =================================================================================
// SLOTS
// =================================================================================

func (c *Coordinator) AuthToken() Secret {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth
}

func (c *Coordinator) UserToken() Secret {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// SetAuth reemplaza el auth token. Un auth token distinto invalida el user token.
func (c *Coordinator) SetAuth(s Secret) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s != c.auth {
		c.user = ""
	}
	c.auth = s
}

// SetUser guarda el user token; requiere un auth token presente.
func (c *Coordinator) SetUser(s Secret) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auth == "" {
		return apperr.MissingToken(string(Auth))
	}
	c.user = s
	return nil
}

// Clear vacía ambos slots.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = ""
	c.user = ""
}

// State devuelve una foto del estado.
func (c *Coordinator) State() State {
	c.mu.RLock()
	st := State{HasAuth: c.auth != "", HasUser: c.user != ""}
	c.mu.RUnlock()
	st.AuthLoading = c.loading.Active()
	st.AuthRefreshing = c.authGate.Held()
	st.UserRefreshing = c.userGate.Held()
	return st
}

// commit guarda next en el slot de k sólo si todavía contiene used. Evita que
// la respuesta de un refresh viejo pise un token más nuevo.
func (c *Coordinator) commit(k Kind, used, next Secret) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch k {
	case Auth:
		if c.auth != used {
			return false
		}
		c.auth = next
	default:
		if c.user != used || c.auth == "" {
			return false
		}
		c.user = next
	}
	return true
}

// =================================================================================
// AUTH LOADING
// =================================================================================

// BeginAuthLoading inicia un ciclo de re-autenticación. ok=false si ya hay uno.
func (c *Coordinator) BeginAuthLoading() (end func(), ok bool) { return c.loading.Begin() }

// IsAuthLoading reporta si hay un ciclo en curso.
func (c *Coordinator) IsAuthLoading() bool { return c.loading.Active() }

// WaitAuthLoading bloquea hasta que termine el ciclo en curso (cancelable).
func (c *Coordinator) WaitAuthLoading(ctx context.Context) error { return c.loading.Wait(ctx) }

// FreshUserToken espera auth loading y cualquier refresh de user en curso, y
// devuelve el user token vigente.
func (c *Coordinator) FreshUserToken(ctx context.Context) (Secret, error) {
	if err := c.loading.Wait(ctx); err != nil {
		return "", err
	}
	if err := c.userGate.Wait(ctx); err != nil {
		return "", err
	}
	s := c.UserToken()
	if s == "" {
		return "", apperr.MissingToken(string(User))
	}
	return s, nil
}

// =================================================================================
// VALIDACIÓN / REFRESCO
// =================================================================================

// Validate consulta la validez remota de secret. No toca los slots.
// Validaciones concurrentes del mismo token comparten un solo request.
func (c *Coordinator) Validate(ctx context.Context, k Kind, s Secret) (bool, error) {
	if s == "" {
		return false, apperr.MissingToken(string(k))
	}
	ch := c.validations.DoChan(string(k)+":"+string(s), func() (any, error) {
		return c.remote.ValidateToken(context.WithoutCancel(ctx), k, string(s))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// RefreshAuth refresca el auth token. Si ya hay un refresh en curso vuelve
// enseguida sin error.
func (c *Coordinator) RefreshAuth(ctx context.Context) error {
	return c.refresh(ctx, Auth, &c.authGate)
}

// RefreshUser espera cualquier auth loading en curso y refresca el user token
// con la misma política que RefreshAuth.
func (c *Coordinator) RefreshUser(ctx context.Context) error {
	if err := c.loading.Wait(ctx); err != nil {
		return err
	}
	return c.refresh(ctx, User, &c.userGate)
}

// RefreshIfStale refresca el auth token si fue emitido hace más de maxAge.
// Devuelve si se intentó el refresh.
func (c *Coordinator) RefreshIfStale(ctx context.Context, maxAge time.Duration) (bool, error) {
	if maxAge <= 0 {
		maxAge = DefaultRefreshAfter
	}
	if !c.AuthToken().OlderThan(maxAge, time.Now()) {
		return false, nil
	}
	return true, c.RefreshAuth(ctx)
}

func (c *Coordinator) refresh(ctx context.Context, k Kind, g *Gate) error {
	if !g.TryAcquire() {
		c.metrics.RefreshResult(string(k), "skipped")
		c.log.Debug("refresh ya en curso", logger.TokenKind(string(k)))
		return nil
	}
	defer g.Release()

	var used Secret
	if k == Auth {
		used = c.AuthToken()
	} else {
		used = c.UserToken()
	}
	if used == "" {
		c.metrics.RefreshResult(string(k), "failed")
		return apperr.MissingToken(string(k))
	}

	next, err := c.remote.RefreshToken(ctx, k, string(used))
	if err != nil {
		c.metrics.RefreshResult(string(k), "failed")
		c.log.Info("refresh falló", logger.TokenKind(string(k)), logger.Err(err))
		return err
	}
	ok, err := c.Validate(ctx, k, Secret(next))
	if err != nil {
		c.metrics.RefreshResult(string(k), "failed")
		return err
	}
	if !ok {
		c.metrics.RefreshResult(string(k), "failed")
		return apperr.Unauthorized("token non valido")
	}

	if !c.commit(k, used, Secret(next)) {
		c.metrics.RefreshResult(string(k), "stale")
		c.log.Info("refresh descartado: el slot cambió mientras tanto", logger.TokenKind(string(k)))
		return nil
	}
	c.metrics.RefreshResult(string(k), "committed")
	c.log.Debug("token refrescado", logger.TokenKind(string(k)), zap.String("token", Secret(next).Redacted()))

	c.mu.RLock()
	hook := c.onAuth
	c.mu.RUnlock()
	if k == Auth && hook != nil {
		hook(ctx, Secret(next))
	}
	return nil
}
