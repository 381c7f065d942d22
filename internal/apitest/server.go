// Package apitest es un server en memoria que implementa la superficie HTTP
// completa del API de Voci di Corridoio. Lo usan los tests de integración y
// cmd/mockapi para desarrollo local.
//
// Además del comportamiento normal permite contar requests por path, inyectar
// fallas (status + cuerpo crudo) y retener los refresh de token hasta que el
// test los libere.
package apitest

import (
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/rate"
)

// Options configura el server.
type Options struct {
	SigningKey    []byte // HS256; vacío = aleatoria
	AuthTTL       time.Duration
	UserTTL       time.Duration
	MaxImageBytes int
	AutoVerify    bool // las cuentas registradas quedan verificadas
	Password      PasswordParams
	Policy        PasswordPolicy
	Now           func() time.Time

	// Registerer recibe las métricas del server; nil = sin métricas.
	Registerer prometheus.Registerer

	// LoginLimiter frena los intentos de login por email; nil = sin límite.
	LoginLimiter rate.Limiter
}

func (o *Options) defaults() {
	if len(o.SigningKey) == 0 {
		o.SigningKey = make([]byte, 32)
		_, _ = rand.Read(o.SigningKey)
	}
	if o.AuthTTL <= 0 {
		o.AuthTTL = 30 * 24 * time.Hour
	}
	if o.UserTTL <= 0 {
		o.UserTTL = time.Hour
	}
	if o.MaxImageBytes <= 0 {
		o.MaxImageBytes = 10 << 20
	}
	if o.Password == (PasswordParams{}) {
		o.Password = FastPasswordParams
	}
	if o.Policy.MinLength == 0 {
		o.Policy.MinLength = 8
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type account struct {
	email      string
	passHash   string
	verified   bool
	identities []*domain.Identity
}

type failure struct {
	status int
	body   string
	times  int // <= 0: hasta ClearFailures
}

// Server es seguro para uso concurrente.
type Server struct {
	opts   Options
	tokens *issuer

	mu         sync.Mutex
	accounts   map[string]*account // por email
	usernames  map[string]uuid.UUID
	classes    map[uuid.UUID]string
	timetables map[uuid.UUID]*domain.Timetable
	images     map[uuid.UUID][]byte // por identidad
	hits       map[string]int
	failures   map[string]*failure
	hold       chan struct{}
}

// New crea un server vacío.
func New(opts Options) *Server {
	opts.defaults()
	return &Server{
		opts:       opts,
		tokens:     &issuer{key: opts.SigningKey, authTTL: opts.AuthTTL, userTTL: opts.UserTTL, now: opts.Now},
		accounts:   map[string]*account{},
		usernames:  map[string]uuid.UUID{},
		classes:    map[uuid.UUID]string{},
		timetables: map[uuid.UUID]*domain.Timetable{},
		images:     map[uuid.UUID][]byte{},
		hits:       map[string]int{},
		failures:   map[string]*failure{},
	}
}

// Start levanta el server en un puerto local. El caller debe cerrarlo.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s.Router())
}

// Router arma las rutas.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID, withRecover, withLogging)
	if s.opts.Registerer != nil {
		reg := s.opts.Registerer
		r.Use(func(next http.Handler) http.Handler { return instrument(reg, next) })
	}
	r.Use(s.countHits, s.injectFailures)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Get("/check/username", s.handleCheckUsername)
	r.Get("/classes/registration", s.handleClasses)
	r.Get("/downloads/certificates", s.handleCertificate)

	r.Route("/auth", func(r chi.Router) {
		r.Use(s.bearer(scopeAuth))
		r.Get("/isAuthTokenValid", s.handleValid)
		r.Get("/refreshAuthToken", s.handleRefreshAuth)
		r.Post("/getTokenAndUser", s.handleTokenAndUser)
		r.Get("/{id}/profileImage", s.handleGetImage)
	})

	r.Route("/user", func(r chi.Router) {
		r.Use(s.bearer(scopeUser))
		r.Get("/isUserTokenValid", s.handleValid)
		r.Get("/refreshUserToken", s.handleRefreshUser)
		r.Get("/getTimetable", s.handleTimetable)
		r.Get("/{id}/profileImage", s.handleGetImage)
		r.Post("/profileImage", s.handleUploadImage)
		r.Delete("/profileImage", s.handleDeleteImage)
	})

	return r
}

// =================================================================================
// SEED
// =================================================================================

// AddAccount crea una cuenta con las identidades dadas.
func (s *Server) AddAccount(email, password string, verified bool, identities ...*domain.Identity) error {
	hash, err := hashPassword(s.opts.Password, password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &account{email: strings.ToLower(email), passHash: hash, verified: verified}
	for _, id := range identities {
		cp := id.Clone()
		a.identities = append(a.identities, cp)
		s.usernames[strings.ToLower(cp.Username)] = cp.ID
	}
	s.accounts[a.email] = a
	return nil
}

// Verify marca como verificado el email de una cuenta.
func (s *Server) Verify(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[strings.ToLower(email)]; ok {
		a.verified = true
	}
}

// AddClass agrega una clase seleccionable en el registro.
func (s *Server) AddClass(id uuid.UUID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[id] = name
}

// SetTimetable fija el horario de una identidad.
func (s *Server) SetTimetable(identityID uuid.UUID, t *domain.Timetable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timetables[identityID] = t
}

// SetImage fija la imagen de una identidad y le asigna un id de imagen nuevo.
func (s *Server) SetImage(identityID uuid.UUID, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setImageLocked(identityID, data)
}

func (s *Server) setImageLocked(identityID uuid.UUID, data []byte) {
	id := s.identityLocked(identityID)
	if id == nil {
		return
	}
	if data == nil {
		delete(s.images, identityID)
		id.ProfileImageID = nil
		return
	}
	img := uuid.New()
	id.ProfileImageID = &img
	s.images[identityID] = append([]byte(nil), data...)
}

// Image devuelve la imagen guardada de una identidad.
func (s *Server) Image(identityID uuid.UUID) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.images[identityID]
	return b, ok
}

// Identity devuelve una copia de la identidad tal como la ve el server.
func (s *Server) Identity(identityID uuid.UUID) *domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identityLocked(identityID).Clone()
}

// UpdateIdentity aplica fn sobre la identidad guardada (para simular cambios del lado server).
func (s *Server) UpdateIdentity(identityID uuid.UUID, fn func(*domain.Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id := s.identityLocked(identityID); id != nil {
		fn(id)
	}
}

func (s *Server) identityLocked(id uuid.UUID) *domain.Identity {
	for _, a := range s.accounts {
		for _, i := range a.identities {
			if i.ID == id {
				return i
			}
		}
	}
	return nil
}

// MintAuth emite un auth token para la cuenta email con el iat dado.
func (s *Server) MintAuth(email string, iat time.Time) (string, error) {
	return s.tokens.mint(scopeAuth, strings.ToLower(email), "", iat)
}

// MintUser emite un user token para la identidad id de la cuenta email.
func (s *Server) MintUser(email string, id uuid.UUID, iat time.Time) (string, error) {
	return s.tokens.mint(scopeUser, id.String(), strings.ToLower(email), iat)
}

// =================================================================================
// INSTRUMENTACIÓN
// =================================================================================

// Hits devuelve cuántos requests llegaron a path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Paths lista los paths con al menos un request, ordenados.
func (s *Server) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.hits))
	for p := range s.hits {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Fail hace que los próximos times requests a path respondan status con body
// crudo. times <= 0 mantiene la falla hasta ClearFailures.
func (s *Server) Fail(path string, status int, body string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = &failure{status: status, body: body, times: times}
}

// ClearFailures quita todas las fallas inyectadas.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]*failure{}
}

// HoldRefreshes retiene todos los refresh de token hasta llamar release.
func (s *Server) HoldRefreshes() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.hold == ch {
				s.hold = nil
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Server) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, ok := s.failures[r.URL.Path]
		if ok && f.times > 0 {
			f.times--
			if f.times == 0 {
				delete(s.failures, r.URL.Path)
			}
		}
		s.mu.Unlock()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(strings.TrimSpace(f.body), "<") {
			w.Header().Set("Content-Type", "text/html")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	})
}
