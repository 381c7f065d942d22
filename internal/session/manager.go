// Package session es el dueño del ciclo de vida de la sesión:
// Anonymous → AuthLoading → Authenticated y Authenticated → Anonymous.
//
// Orquesta el coordinador de tokens, el almacenamiento persistido y el
// pipeline de imágenes de perfil. No formatea texto para el usuario: los
// errores de trabajos en background van al Reporter (el clasificador).
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/dropDatabas3/voci/internal/api"
	"github.com/dropDatabas3/voci/internal/credstore"
	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/metrics"
	"github.com/dropDatabas3/voci/internal/observability/logger"
	"github.com/dropDatabas3/voci/internal/token"
)

// Remote es la parte del API que usa el manager (*api.Client lo implementa).
type Remote interface {
	Register(ctx context.Context, data domain.RegistrationData) (*api.RegisterResult, error)
	CheckUsername(ctx context.Context, username string) (*api.UsernameCheck, error)
	AvailableClasses(ctx context.Context) ([]domain.ClassGroup, error)
	Login(ctx context.Context, email, password string) (*api.LoginResult, error)
	GetTokenAndUser(ctx context.Context, authSecret string, id uuid.UUID) (*api.TokenAndUser, error)
	Timetable(ctx context.Context, userSecret string) (*domain.Timetable, error)
}

// Images es el pipeline de imágenes (*profileimage.Pipeline lo implementa).
type Images interface {
	Fetch(ctx context.Context, identity *domain.Identity, scope api.Scope) error
	Upload(ctx context.Context, identity *domain.Identity, data []byte) (bool, error)
	Delete(ctx context.Context, identity *domain.Identity) (bool, error)
	Clear(id uuid.UUID) error
	IsModifying(id uuid.UUID) bool
}

// Reporter recibe los errores de los trabajos en background (*apperr.Classifier).
type Reporter interface {
	Report(err error)
	Reset()
}

// Notifier es el subsistema de notificaciones que logout reinicia (*notify.Center).
type Notifier interface {
	Reset(ctx context.Context)
}

// Deps son las dependencias del manager. Reporter y Notifier son opcionales.
type Deps struct {
	Remote   Remote
	Tokens   *token.Coordinator
	Secrets  credstore.SecretStore
	Store    *credstore.Store
	Images   Images
	Reporter Reporter
	Notifier Notifier
	Metrics  *metrics.Metrics
}

// Options ajusta el comportamiento.
type Options struct {
	// UnavailableTTL es cuánto se recuerda un username/email ya tomado.
	UnavailableTTL time.Duration
	// PrefetchConcurrency limita las descargas de imágenes después del login.
	PrefetchConcurrency int
	// RefreshAfter es la edad del auth token a partir de la cual reinit lo refresca.
	RefreshAfter time.Duration
}

const (
	defaultUnavailableTTL      = time.Hour
	defaultPrefetchConcurrency = 4
)

// State es una foto del estado de la sesión.
type State struct {
	IsAuthenticated bool             `json:"is_authenticated"`
	IsAuthLoading   bool             `json:"is_auth_loading"`
	Identity        *domain.Identity `json:"identity,omitempty"`
	HasAuthToken    bool             `json:"has_auth_token"`
	HasUserToken    bool             `json:"has_user_token"`
}

// Manager es seguro para uso concurrente.
type Manager struct {
	remote   Remote
	tokens   *token.Coordinator
	secrets  credstore.SecretStore
	store    *credstore.Store
	images   Images
	reporter Reporter
	notifier Notifier
	metrics  *metrics.Metrics
	opts     Options
	log      *zap.Logger

	// usernames/emails que el server ya declaró tomados
	unavailable *gocache.Cache

	mu            sync.RWMutex
	authenticated bool
	identity      *domain.Identity

	// lifecycle serializa Logout con las escrituras de sesión que siguen a
	// una llamada remota. epoch cambia en cada logout.
	lifecycle sync.Mutex
	epoch     uint64

	events *broadcaster
	wg     sync.WaitGroup
}

// New crea el manager en estado Anonymous y engancha la persistencia de los
// auth tokens refrescados.
func New(d Deps, opts Options) *Manager {
	if opts.UnavailableTTL <= 0 {
		opts.UnavailableTTL = defaultUnavailableTTL
	}
	if opts.PrefetchConcurrency <= 0 {
		opts.PrefetchConcurrency = defaultPrefetchConcurrency
	}
	if opts.RefreshAfter <= 0 {
		opts.RefreshAfter = token.DefaultRefreshAfter
	}
	if d.Reporter == nil {
		d.Reporter = logReporter{logger.Named("session")}
	}
	m := &Manager{
		remote:      d.Remote,
		tokens:      d.Tokens,
		secrets:     d.Secrets,
		store:       d.Store,
		images:      d.Images,
		reporter:    d.Reporter,
		notifier:    d.Notifier,
		metrics:     d.Metrics,
		opts:        opts,
		log:         logger.Named("session"),
		unavailable: gocache.New(opts.UnavailableTTL, 2*opts.UnavailableTTL),
		events:      newBroadcaster(),
	}
	m.tokens.OnAuthRefreshed(m.persistRefreshedAuth)
	return m
}

type logReporter struct{ log *zap.Logger }

func (r logReporter) Report(err error) { r.log.Warn("error en background", logger.Err(err)) }
func (r logReporter) Reset()           {}

// State devuelve una foto del estado actual.
func (m *Manager) State() State {
	m.mu.RLock()
	st := State{IsAuthenticated: m.authenticated, Identity: m.identity.Clone()}
	m.mu.RUnlock()
	ts := m.tokens.State()
	st.IsAuthLoading = ts.AuthLoading
	st.HasAuthToken = ts.HasAuth
	st.HasUserToken = ts.HasUser
	return st
}

// IsAuthenticated reporta si hay una identidad seleccionada con user token.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authenticated
}

// Identity devuelve una copia de la identidad actual (nil si no hay).
func (m *Manager) Identity() *domain.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity.Clone()
}

// Subscribe devuelve un canal con los eventos de la sesión. cancel lo cierra.
func (m *Manager) Subscribe() (<-chan Event, func()) { return m.events.subscribe() }

// Wait espera los trabajos en background (prefetch, reinit, fetch de imagen).
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) setAuthenticated(v bool) {
	m.mu.Lock()
	changed := m.authenticated != v
	m.authenticated = v
	m.mu.Unlock()
	if changed {
		m.emit(EventStateChanged)
	}
}

func (m *Manager) emit(t EventType) {
	m.events.publish(Event{Type: t, State: m.State()})
}

// background corre fn fuera de la cancelación del caller. Los errores van al Reporter.
func (m *Manager) background(ctx context.Context, name string, fn func(ctx context.Context) error) {
	bg := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := fn(bg); err != nil {
			m.log.Info("trabajo en background falló", logger.Op(name), logger.Err(err))
			m.reporter.Report(err)
		}
	}()
}

// snapshot devuelve el epoch actual y el auth token en memoria, leídos juntos.
func (m *Manager) snapshot() (uint64, token.Secret) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.epoch, m.tokens.AuthToken()
}

// persistRefreshedAuth guarda el auth token refrescado si hay sesión confirmada
// y s sigue siendo el token vigente.
func (m *Manager) persistRefreshedAuth(ctx context.Context, s token.Secret) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if !m.IsAuthenticated() || m.tokens.AuthToken() != s {
		return
	}
	if err := m.secrets.SaveSecret(ctx, string(s)); err != nil {
		m.reporter.Report(err)
	}
}
