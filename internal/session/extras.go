package session

import (
	"context"
	"strings"

	"github.com/dropDatabas3/voci/internal/api"
	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/token"
)

// Timetable devuelve el horario de la identidad actual. Ante unauthorized
// refresca el user token una vez y reintenta.
func (m *Manager) Timetable(ctx context.Context) (*domain.Timetable, error) {
	s, err := m.tokens.FreshUserToken(ctx)
	if err != nil {
		return nil, err
	}
	t, err := m.remote.Timetable(ctx, string(s))
	if !apperr.Is(err, apperr.KindUnauthorized) {
		return t, err
	}

	if err := m.tokens.RefreshUser(ctx); err != nil {
		return nil, err
	}
	if s, err = m.tokens.FreshUserToken(ctx); err != nil {
		return nil, err
	}
	return m.remote.Timetable(ctx, string(s))
}

// CheckUsername consulta si el username existe. Los ya conocidos como
// tomados se responden sin llamar al server.
func (m *Manager) CheckUsername(ctx context.Context, username string) (*api.UsernameCheck, error) {
	username = strings.TrimSpace(username)
	if m.isUnavailable(usernameKey(username)) {
		return &api.UsernameCheck{Exists: true, Username: username}, nil
	}
	res, err := m.remote.CheckUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if res.Exists {
		m.markUnavailable(usernameKey(username))
	}
	return res, nil
}

// AvailableClasses lista las clases seleccionables en el registro.
func (m *Manager) AvailableClasses(ctx context.Context) ([]domain.ClassGroup, error) {
	return m.remote.AvailableClasses(ctx)
}

func (m *Manager) current() (*domain.Identity, error) {
	cur := m.Identity()
	if cur == nil {
		return nil, apperr.MissingToken(string(token.User))
	}
	return cur, nil
}

// FetchProfileImage vuelve a descargar la imagen de la identidad actual.
func (m *Manager) FetchProfileImage(ctx context.Context) error {
	cur, err := m.current()
	if err != nil {
		return err
	}
	return m.images.Fetch(ctx, cur, api.ScopeUser)
}

// SetProfileImage sube data como imagen de la identidad actual y refresca la
// identidad en background. false sin error: ya había una modificación en curso.
func (m *Manager) SetProfileImage(ctx context.Context, data []byte) (bool, error) {
	cur, err := m.current()
	if err != nil {
		return false, err
	}
	applied, err := m.images.Upload(ctx, cur, data)
	if err != nil || !applied {
		return applied, err
	}
	m.background(ctx, "refresh-identity", m.RefreshCurrentIdentity)
	return true, nil
}

// RemoveProfileImage borra la imagen de la identidad actual.
func (m *Manager) RemoveProfileImage(ctx context.Context) (bool, error) {
	cur, err := m.current()
	if err != nil {
		return false, err
	}
	applied, err := m.images.Delete(ctx, cur)
	if err != nil || !applied {
		return applied, err
	}
	m.background(ctx, "refresh-identity", m.RefreshCurrentIdentity)
	return true, nil
}

// IsModifyingProfileImage reporta si hay un upload o delete en curso.
func (m *Manager) IsModifyingProfileImage() bool {
	cur := m.Identity()
	return cur != nil && m.images.IsModifying(cur.ID)
}

// Tab devuelve la pestaña seleccionada persistida.
func (m *Manager) Tab(ctx context.Context) (int, error) { return m.store.LoadTab(ctx) }

// SetTab persiste la pestaña seleccionada.
func (m *Manager) SetTab(ctx context.Context, tab int) error { return m.store.SaveTab(ctx, tab) }
