// Package profileimage descarga, cachea en disco, sube y borra la imagen de
// perfil de cada identidad. Las tres operaciones son excluyentes por
// identidad mediante flags en vuelo.
package profileimage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/voci/internal/api"
	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/metrics"
	"github.com/dropDatabas3/voci/internal/observability/logger"
	"github.com/dropDatabas3/voci/internal/token"
	"github.com/dropDatabas3/voci/internal/util/atomicwrite"
)

// DefaultMaxBytes es el tamaño máximo de una imagen subida.
const DefaultMaxBytes = 10 << 20

// Remote es la parte del API que usa el pipeline (*api.Client lo implementa).
type Remote interface {
	ProfileImage(ctx context.Context, s api.Scope, secret string, id uuid.UUID) ([]byte, error)
	UploadProfileImage(ctx context.Context, userSecret string, jpeg []byte) error
	DeleteProfileImage(ctx context.Context, userSecret string) error
}

// Tokens provee los secretos (*token.Coordinator lo implementa).
type Tokens interface {
	AuthToken() token.Secret
	FreshUserToken(ctx context.Context) (token.Secret, error)
}

// Options configura el pipeline.
type Options struct {
	Dir      string // directorio de cache local
	MaxBytes int
	Metrics  *metrics.Metrics
}

type pending struct {
	fetching  bool
	uploading bool
	deleting  bool
}

func (p pending) idle() bool { return !p.fetching && !p.uploading && !p.deleting }

// Pipeline es seguro para uso concurrente.
type Pipeline struct {
	remote   Remote
	tokens   Tokens
	dir      string
	maxBytes int
	metrics  *metrics.Metrics
	log      *zap.Logger

	mu    sync.Mutex
	flags map[uuid.UUID]pending
}

// New crea el pipeline y el directorio de cache.
func New(remote Remote, tokens Tokens, opts Options) (*Pipeline, error) {
	if opts.Dir == "" {
		return nil, errors.New("profileimage: directorio requerido")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("profileimage: crear %s: %w", opts.Dir, err)
	}
	max := opts.MaxBytes
	if max <= 0 {
		max = DefaultMaxBytes
	}
	return &Pipeline{
		remote:   remote,
		tokens:   tokens,
		dir:      opts.Dir,
		maxBytes: max,
		metrics:  opts.Metrics,
		log:      logger.Named("profileimage"),
		flags:    map[uuid.UUID]pending{},
	}, nil
}

// =================================================================================
// FLAGS
// =================================================================================

func (p *Pipeline) get(id uuid.UUID) pending {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags[id]
}

// mark aplica set si check lo permite; devuelve false si no.
func (p *Pipeline) mark(id uuid.UUID, check func(pending) bool, set func(*pending)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.flags[id]
	if !check(f) {
		return false
	}
	set(&f)
	p.flags[id] = f
	return true
}

func (p *Pipeline) unmark(id uuid.UUID, set func(*pending)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.flags[id]
	set(&f)
	if f.idle() {
		delete(p.flags, id)
	} else {
		p.flags[id] = f
	}
}

func (p *Pipeline) IsFetching(id uuid.UUID) bool  { return p.get(id).fetching }
func (p *Pipeline) IsUploading(id uuid.UUID) bool { return p.get(id).uploading }
func (p *Pipeline) IsDeleting(id uuid.UUID) bool  { return p.get(id).deleting }

// IsModifying reporta si hay un upload o delete en curso para id.
func (p *Pipeline) IsModifying(id uuid.UUID) bool {
	f := p.get(id)
	return f.uploading || f.deleting
}

// =================================================================================
// CACHE LOCAL
// =================================================================================

// Path es el archivo de cache de la identidad id.
func (p *Pipeline) Path(id uuid.UUID) string {
	return filepath.Join(p.dir, id.String()+".jpg")
}

// Load lee la imagen cacheada de id.
func (p *Pipeline) Load(id uuid.UUID) ([]byte, bool) {
	b, err := os.ReadFile(p.Path(id))
	if err != nil {
		return nil, false
	}
	return b, true
}

// Clear borra la imagen cacheada de id.
func (p *Pipeline) Clear(id uuid.UUID) error {
	if _, err := atomicwrite.Remove(p.Path(id)); err != nil {
		return fmt.Errorf("profileimage: borrar cache: %w", err)
	}
	return nil
}

// =================================================================================
// OPERACIONES
// =================================================================================

// Fetch descarga la imagen de identity. Las llamadas reentrantes para la misma
// identidad vuelven enseguida. Sin imagen declarada borra la cache y no llama
// al server. scope elige el token: api.ScopeUser (sesión propia) o
// api.ScopeAuth (preview antes de seleccionar identidad).
func (p *Pipeline) Fetch(ctx context.Context, identity *domain.Identity, scope api.Scope) error {
	if identity == nil {
		return nil
	}
	id := identity.ID
	if !p.mark(id, func(f pending) bool { return !f.fetching }, func(f *pending) { f.fetching = true }) {
		p.metrics.ImageOp("fetch", "skipped")
		return nil
	}
	defer p.unmark(id, func(f *pending) { f.fetching = false })

	if !identity.HasProfileImage() {
		p.metrics.ImageOp("fetch", "cleared")
		return p.Clear(id)
	}

	secret, err := p.secretFor(ctx, scope)
	if err != nil {
		p.metrics.ImageOp("fetch", "failed")
		return err
	}
	data, err := p.remote.ProfileImage(ctx, scope, string(secret), id)
	if err != nil {
		p.metrics.ImageOp("fetch", "failed")
		return err
	}
	changed, err := atomicwrite.WriteIfChanged(p.Path(id), data, 0o644)
	if err != nil {
		p.metrics.ImageOp("fetch", "failed")
		return fmt.Errorf("profileimage: escribir cache: %w", err)
	}
	p.metrics.ImageOp("fetch", "ok")
	p.log.Debug("imagen descargada",
		logger.IdentityID(id.String()), logger.Bytes(len(data)), zap.Bool("changed", changed))
	return nil
}

func (p *Pipeline) secretFor(ctx context.Context, scope api.Scope) (token.Secret, error) {
	if scope == api.ScopeUser {
		return p.tokens.FreshUserToken(ctx)
	}
	s := p.tokens.AuthToken()
	if s == "" {
		return "", apperr.MissingToken(string(api.ScopeAuth))
	}
	return s, nil
}

// Upload comprime (si supera el máximo), cachea y sube data como imagen de
// identity. Devuelve false sin error si ya hay una modificación en curso.
func (p *Pipeline) Upload(ctx context.Context, identity *domain.Identity, data []byte) (bool, error) {
	if identity == nil {
		return false, nil
	}
	id := identity.ID
	if !p.mark(id, func(f pending) bool { return !f.uploading && !f.deleting }, func(f *pending) { f.uploading = true }) {
		p.metrics.ImageOp("upload", "skipped")
		return false, nil
	}
	defer p.unmark(id, func(f *pending) { f.uploading = false })

	if len(data) > p.maxBytes {
		res, err := Compress(data, p.maxBytes)
		if err != nil {
			p.metrics.ImageOp("upload", "failed")
			return false, apperr.MalformedData(err.Error()).WithCause(err)
		}
		p.log.Info("imagen comprimida",
			logger.IdentityID(id.String()), logger.Bytes(len(res.Data)),
			zap.Int("quality", res.Quality), zap.Int("iterations", res.Iterations),
			zap.Bool("within_limit", res.WithinLimit))
		data = res.Data
	}

	secret, err := p.tokens.FreshUserToken(ctx)
	if err != nil {
		p.metrics.ImageOp("upload", "failed")
		return false, err
	}

	prev, hadPrev := p.Load(id)
	if _, err := atomicwrite.WriteIfChanged(p.Path(id), data, 0o644); err != nil {
		p.metrics.ImageOp("upload", "failed")
		return false, fmt.Errorf("profileimage: escribir cache: %w", err)
	}
	if err := p.remote.UploadProfileImage(ctx, string(secret), data); err != nil {
		p.restore(id, prev, hadPrev)
		p.metrics.ImageOp("upload", "failed")
		return false, err
	}
	p.metrics.ImageOp("upload", "ok")
	return true, nil
}

// restore vuelve la cache local al estado anterior a un upload fallido.
func (p *Pipeline) restore(id uuid.UUID, prev []byte, hadPrev bool) {
	var err error
	if hadPrev {
		err = atomicwrite.WriteFile(p.Path(id), prev, 0o644)
	} else {
		err = p.Clear(id)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.log.Warn("no se pudo restaurar la cache", logger.IdentityID(id.String()), logger.Err(err))
	}
}

// Delete borra la imagen remota y la local. Devuelve false sin error si ya
// hay una modificación en curso. Una imagen que el server ya no tiene cuenta
// como borrada.
func (p *Pipeline) Delete(ctx context.Context, identity *domain.Identity) (bool, error) {
	if identity == nil {
		return false, nil
	}
	id := identity.ID
	if !p.mark(id, func(f pending) bool { return !f.uploading && !f.deleting }, func(f *pending) { f.deleting = true }) {
		p.metrics.ImageOp("delete", "skipped")
		return false, nil
	}
	defer p.unmark(id, func(f *pending) { f.deleting = false })

	secret, err := p.tokens.FreshUserToken(ctx)
	if err != nil {
		p.metrics.ImageOp("delete", "failed")
		return false, err
	}
	if err := p.remote.DeleteProfileImage(ctx, string(secret)); err != nil && !apperr.Is(err, apperr.KindImageNotFound) {
		p.metrics.ImageOp("delete", "failed")
		return false, err
	}
	if err := p.Clear(id); err != nil {
		p.metrics.ImageOp("delete", "failed")
		return false, err
	}
	p.metrics.ImageOp("delete", "ok")
	return true, nil
}
