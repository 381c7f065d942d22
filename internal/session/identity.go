package session

import (
	"context"

	"github.com/dropDatabas3/voci/internal/api"
	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/observability/logger"
)

type mergeAction int

const (
	mergeIgnore mergeAction = iota
	// adopta sin tocar la imagen
	mergeAdopt
	// imagen nueva o primera identidad
	mergeAdoptAndFetch
	// la imagen desapareció
	mergeAdoptAndClear
)

// decideMerge es la regla de reemplazo de la identidad de sesión.
func decideMerge(cur, next *domain.Identity) mergeAction {
	switch {
	case cur == nil:
		return mergeAdoptAndFetch
	case cur.Equal(next):
		return mergeIgnore
	case cur.HasProfileImage() && !next.HasProfileImage():
		return mergeAdoptAndClear
	case !cur.SameImage(next):
		return mergeAdoptAndFetch
	default:
		return mergeAdopt
	}
}

// applyIdentity aplica la regla de reemplazo con un snapshot nuevo. Toda
// adopción se persiste.
func (m *Manager) applyIdentity(ctx context.Context, next *domain.Identity) {
	next = next.Clone()

	m.mu.Lock()
	cur := m.identity
	action := decideMerge(cur, next)
	if action != mergeIgnore {
		m.identity = next
	}
	m.mu.Unlock()

	if action == mergeIgnore {
		return
	}
	if err := m.store.SaveIdentity(ctx, next); err != nil {
		m.reporter.Report(err)
	}

	switch action {
	case mergeAdoptAndClear:
		if err := m.images.Clear(cur.ID); err != nil {
			m.log.Warn("no se pudo borrar la imagen local", logger.Err(err))
		}
	case mergeAdoptAndFetch:
		m.background(ctx, "fetch-image", func(ctx context.Context) error {
			return m.images.Fetch(ctx, next, api.ScopeUser)
		})
	}
	m.emit(EventIdentityChanged)
}
