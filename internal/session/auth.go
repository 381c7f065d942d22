package session

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/voci/internal/api"
	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/credstore"
	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/observability/logger"
	"github.com/dropDatabas3/voci/internal/token"
)

// RegistrationOutcome es el resultado de Register. Un username o email tomado
// no es un error: vuelve acá para que la UI marque el campo.
type RegistrationOutcome struct {
	Username      string `json:"username,omitempty"`
	UsernameTaken bool   `json:"username_taken,omitempty"`
	EmailTaken    bool   `json:"email_taken,omitempty"`
	// Rejected: se rechazó localmente sin llamar al server.
	Rejected bool `json:"rejected,omitempty"`
}

// Created reporta si la cuenta se creó.
func (o RegistrationOutcome) Created() bool { return !o.UsernameTaken && !o.EmailTaken }

// SelectedIdentityOutcome es el resultado de SelectIdentity.
type SelectedIdentityOutcome struct {
	Identity *domain.Identity `json:"identity"`
}

// LoginOutcome es el resultado de Login. Selected != nil cuando la cuenta
// tenía una sola identidad y se seleccionó automáticamente.
type LoginOutcome struct {
	RoleGroups []domain.RoleGroup       `json:"role_groups"`
	Selected   *SelectedIdentityOutcome `json:"selected,omitempty"`
}

// Identities devuelve las identidades candidatas de todos los grupos.
func (o LoginOutcome) Identities() []*domain.Identity { return domain.Flatten(o.RoleGroups) }

// errSessionChanged: la sesión cambió mientras la operación esperaba al server.
func errSessionChanged() error { return apperr.MissingToken(string(token.Auth)) }

// =================================================================================
// REINIT
// =================================================================================

// Reinitialize restaura la sesión persistida al arrancar. Si hay secreto e
// identidad guardados, los carga en memoria de forma optimista (autenticada)
// y revalida en background. Un fallo de la revalidación se reporta pero no
// desloguea. Devuelve si se inició la restauración.
func (m *Manager) Reinitialize(ctx context.Context) bool {
	secret, found := m.secrets.LoadSecret(ctx)
	if !found {
		return false
	}
	ident, err := m.store.LoadIdentity(ctx)
	if err != nil {
		m.log.Warn("no se pudo leer la identidad persistida", logger.Err(err))
		return false
	}
	if ident == nil {
		return false
	}
	end, started := m.tokens.BeginAuthLoading()
	if !started {
		return false
	}

	m.tokens.SetAuth(token.Secret(secret))
	m.mu.Lock()
	m.identity = ident
	m.authenticated = true
	m.mu.Unlock()
	m.metrics.SessionEvent("reinit")
	m.emit(EventStateChanged)
	m.log.Info("sesión restaurada", logger.IdentityID(ident.ID.String()), logger.Username(ident.Username))

	m.background(ctx, "reinit", func(ctx context.Context) error {
		defer func() {
			end()
			m.emit(EventStateChanged)
		}()
		return m.revalidate(ctx, token.Secret(secret), ident.ID)
	})
	return true
}

func (m *Manager) revalidate(ctx context.Context, secret token.Secret, id uuid.UUID) error {
	valid, err := m.tokens.Validate(ctx, token.Auth, secret)
	if err != nil {
		return err
	}
	if !valid {
		return apperr.Unauthorized("token non valido")
	}
	if _, err := m.tokens.RefreshIfStale(ctx, m.opts.RefreshAfter); err != nil {
		m.reporter.Report(err)
	}
	_, err = m.SelectIdentity(ctx, id)
	return err
}

// =================================================================================
// REGISTER
// =================================================================================

func usernameKey(s string) string { return "u:" + strings.ToLower(strings.TrimSpace(s)) }
func emailKey(s string) string    { return "e:" + strings.ToLower(strings.TrimSpace(s)) }

func (m *Manager) isUnavailable(key string) bool {
	_, found := m.unavailable.Get(key)
	return found
}

func (m *Manager) markUnavailable(key string) {
	m.unavailable.SetDefault(key, struct{}{})
}

// Register crea una cuenta. Un username o email que el server ya declaró
// tomado se rechaza sin llamar al server.
func (m *Manager) Register(ctx context.Context, data domain.RegistrationData) (RegistrationOutcome, error) {
	data = data.Normalize()
	out := RegistrationOutcome{
		UsernameTaken: m.isUnavailable(usernameKey(data.Username)),
		EmailTaken:    m.isUnavailable(emailKey(data.Email)),
	}
	if !out.Created() {
		out.Rejected = true
		m.metrics.SessionEvent("register_rejected")
		return out, nil
	}

	res, err := m.remote.Register(ctx, data)
	if err != nil {
		return out, err
	}
	if c := res.Conflict; c != nil {
		if c.Username != "" {
			out.UsernameTaken = true
			m.markUnavailable(usernameKey(data.Username))
		}
		if c.Email != "" {
			out.EmailTaken = true
			m.markUnavailable(emailKey(data.Email))
		}
		m.metrics.SessionEvent("register_conflict")
		return out, nil
	}
	out.Username = res.Username
	m.metrics.SessionEvent("register")
	return out, nil
}

// =================================================================================
// LOGIN / SELECT
// =================================================================================

// Login autentica el dispositivo. Guarda el auth token en memoria (se
// persiste recién en SelectIdentity), lanza el prefetch de imágenes de todas
// las identidades candidatas y, si hay una sola, la selecciona.
func (m *Manager) Login(ctx context.Context, email, password string) (LoginOutcome, error) {
	epoch, _ := m.snapshot()
	res, err := m.remote.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return LoginOutcome{}, err
	}
	ids := domain.Flatten(res.RoleGroups)
	if len(ids) == 0 {
		return LoginOutcome{}, apperr.UserNotFound()
	}

	secret := token.Secret(res.AuthToken)
	valid, err := m.tokens.Validate(ctx, token.Auth, secret)
	if err != nil {
		return LoginOutcome{}, err
	}
	if !valid {
		return LoginOutcome{}, apperr.Unauthorized("token non valido")
	}

	m.lifecycle.Lock()
	if m.epoch != epoch {
		m.lifecycle.Unlock()
		return LoginOutcome{}, errSessionChanged()
	}
	// un auth token nuevo invalida el user token: la sesión previa deja de estar autenticada
	if m.tokens.AuthToken() != secret {
		m.setAuthenticated(false)
	}
	m.tokens.SetAuth(secret)
	m.lifecycle.Unlock()
	m.metrics.SessionEvent("login")
	m.prefetch(ctx, ids)

	out := LoginOutcome{RoleGroups: res.RoleGroups}
	if len(ids) == 1 {
		sel, err := m.SelectIdentity(ctx, ids[0].ID)
		if err != nil {
			return out, err
		}
		out.Selected = sel
	}
	return out, nil
}

// prefetch descarga en background las imágenes de las identidades candidatas
// con el auth token. Se reporta sólo el primer error.
func (m *Manager) prefetch(ctx context.Context, ids []*domain.Identity) {
	m.background(ctx, "prefetch", func(ctx context.Context) error {
		var g errgroup.Group
		g.SetLimit(m.opts.PrefetchConcurrency)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				return m.images.Fetch(ctx, id, api.ScopeAuth)
			})
		}
		return g.Wait()
	})
}

// SelectIdentity elige la identidad con la que actuará el dispositivo.
// Persiste el auth token (recién acá hay una identidad confirmada), guarda el
// user token, aplica la regla de reemplazo de identidad y marca la sesión
// como autenticada, en ese orden.
func (m *Manager) SelectIdentity(ctx context.Context, id uuid.UUID) (*SelectedIdentityOutcome, error) {
	epoch, auth := m.snapshot()
	if auth == "" {
		return nil, apperr.MissingToken(string(token.Auth))
	}
	res, err := m.remote.GetTokenAndUser(ctx, string(auth), id)
	if err != nil {
		return nil, err
	}

	user := token.Secret(res.UserToken)
	valid, err := m.tokens.Validate(ctx, token.User, user)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, apperr.Unauthorized("token non valido")
	}

	// un logout o un login nuevo durante la llamada remota descarta el resultado
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.epoch != epoch || m.tokens.AuthToken() != auth {
		return nil, errSessionChanged()
	}
	if err := m.secrets.SaveSecret(ctx, string(auth)); err != nil {
		return nil, err
	}
	if err := m.tokens.SetUser(user); err != nil {
		return nil, err
	}
	m.applyIdentity(ctx, res.Identity)
	m.setAuthenticated(true)
	m.metrics.SessionEvent("select")

	return &SelectedIdentityOutcome{Identity: res.Identity.Clone()}, nil
}

// RefreshCurrentIdentity vuelve a pedir token e identidad para la identidad
// actual y aplica la regla de reemplazo. Es el refresco que dispara el
// clasificador ante reauth_requested.
func (m *Manager) RefreshCurrentIdentity(ctx context.Context) error {
	cur := m.Identity()
	if cur == nil {
		return nil
	}
	_, err := m.SelectIdentity(ctx, cur.ID)
	return err
}

// =================================================================================
// LOGOUT
// =================================================================================

// Logout cierra la sesión localmente. Nunca falla ni llama al server. Los
// login/select en vuelo no vuelven a escribir la sesión.
func (m *Manager) Logout(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.epoch++

	m.mu.Lock()
	cur := m.identity
	m.authenticated = false
	m.identity = nil
	m.mu.Unlock()

	if err := m.secrets.DeleteSecret(ctx); err != nil {
		m.log.Warn("no se pudo borrar el secreto", logger.Err(err))
	}
	if err := m.store.DeleteAll(ctx, credstore.SessionKeys...); err != nil {
		m.log.Warn("no se pudo borrar el estado de sesión", logger.Err(err))
	}
	if m.notifier != nil {
		m.notifier.Reset(ctx)
	}
	m.reporter.Reset()
	if cur != nil {
		if err := m.images.Clear(cur.ID); err != nil {
			m.log.Warn("no se pudo borrar la imagen local", logger.Err(err))
		}
	}
	m.tokens.Clear()

	m.metrics.SessionEvent("logout")
	m.log.Info("logout")
	m.emit(EventLoggedOut)
}
