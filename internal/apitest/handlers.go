package apitest

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/validation"
)

// envelope es el sobre de todas las respuestas JSON.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Auth    any    `json:"auth,omitempty"`
	User    any    `json:"user,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Message: http.StatusText(status), Data: data})
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// =================================================================================
// AUTH MIDDLEWARE
// =================================================================================

type claimsKey struct{}

func claimsFrom(r *http.Request) *Claims {
	c, _ := r.Context().Value(claimsKey{}).(*Claims)
	return c
}

func (s *Server) bearer(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				fail(w, http.StatusBadRequest, "token mancante")
				return
			}
			c, err := s.tokens.parse(strings.TrimPrefix(h, "Bearer "), scope)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Message: "token non valido"})
				return
			}
			if s.accountFor(c) == nil {
				writeJSON(w, http.StatusForbidden, envelope{Success: false, Message: "account non trovato"})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, c)))
		})
	}
}

func (s *Server) accountFor(c *Claims) *account {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := c.Subject
	if c.Scope == scopeUser {
		email = c.Account
	}
	return s.accounts[email]
}

// =================================================================================
// PUBLIC
// =================================================================================

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegistrationData
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "payload non valido")
		return
	}
	req = req.Normalize()
	if req.Username == "" || req.Email == "" || req.Name == "" || req.Surname == "" {
		fail(w, http.StatusBadRequest, "campi obbligatori mancanti")
		return
	}
	if err := validation.Registration(req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if reasons := s.opts.Policy.Validate(req.Password); len(reasons) > 0 {
		fail(w, http.StatusBadRequest, "password debole: "+strings.Join(reasons, ","))
		return
	}

	s.mu.Lock()
	var conflict struct {
		Username string `json:"username,omitempty"`
		Email    string `json:"email,omitempty"`
	}
	if _, taken := s.usernames[strings.ToLower(req.Username)]; taken {
		conflict.Username = req.Username
	}
	if _, taken := s.accounts[req.Email]; taken {
		conflict.Email = req.Email
	}
	var className string
	if req.ClassID != nil {
		className = s.classes[*req.ClassID]
	}
	s.mu.Unlock()

	if conflict.Username != "" || conflict.Email != "" {
		writeJSON(w, http.StatusConflict, envelope{Success: false, Message: "conflitto", Data: conflict})
		return
	}
	if req.ClassID != nil && className == "" {
		fail(w, http.StatusBadRequest, "classe sconosciuta")
		return
	}

	var id *domain.Identity
	if req.ClassID != nil {
		id = domain.NewStudent(uuid.New(), req.Name, req.Surname, req.Username, domain.StudentDetails{
			Class: domain.ClassGroup{ID: *req.ClassID, Name: className},
		})
	} else {
		id = domain.NewIdentity(domain.RoleUser, uuid.New(), req.Name, req.Surname, req.Username)
	}
	if err := s.AddAccount(req.Email, req.Password, s.opts.AutoVerify, id); err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, http.StatusCreated, map[string]string{"username": req.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
		fail(w, http.StatusBadRequest, "credenziali mancanti")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if l := s.opts.LoginLimiter; l != nil {
		res, err := l.Allow(r.Context(), "login:"+email)
		if err == nil && !res.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			fail(w, http.StatusTooManyRequests, "troppi tentativi, riprova più tardi")
			return
		}
	}

	s.mu.Lock()
	a := s.accounts[email]
	s.mu.Unlock()
	if a == nil {
		// success=true: la cuenta no existe, no es un recurso faltante
		writeJSON(w, http.StatusNotFound, envelope{Success: true, Message: "utente non trovato"})
		return
	}
	if !verifyPassword(req.Password, a.passHash) {
		fail(w, http.StatusUnauthorized, "credenziali non valide")
		return
	}
	if !a.verified {
		fail(w, http.StatusForbidden, "email non verificata")
		return
	}

	tok, err := s.tokens.mint(scopeAuth, a.email, "", s.opts.Now())
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"authToken":  tok,
		"roleGroups": s.roleGroups(a),
	})
}

func (s *Server) roleGroups(a *account) []domain.RoleGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRole := map[domain.Role][]*domain.Identity{}
	for _, id := range a.identities {
		byRole[id.Role()] = append(byRole[id.Role()], id.Clone())
	}
	out := make([]domain.RoleGroup, 0, len(byRole))
	for role, ids := range byRole {
		out = append(out, domain.RoleGroup{Role: role, Identities: ids})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

func (s *Server) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("username"))
	if name == "" {
		fail(w, http.StatusBadRequest, "username mancante")
		return
	}
	s.mu.Lock()
	_, exists := s.usernames[strings.ToLower(name)]
	s.mu.Unlock()
	ok(w, http.StatusOK, map[string]any{"exists": exists, "username": name})
}

func (s *Server) handleClasses(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make(map[string]string, len(s.classes))
	for id, name := range s.classes {
		out[id.String()] = name
	}
	s.mu.Unlock()
	ok(w, http.StatusOK, map[string]any{"classes": out})
}

func (s *Server) handleCertificate(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	_, _ = w.Write([]byte("-----BEGIN CERTIFICATE-----\n-----END CERTIFICATE-----\n"))
}

// =================================================================================
// TOKENS
// =================================================================================

func (s *Server) handleValid(w http.ResponseWriter, _ *http.Request) {
	ok(w, http.StatusOK, nil)
}

func (s *Server) waitHold(ctx context.Context) {
	s.mu.Lock()
	ch := s.hold
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-ctx.Done():
	}
}

func (s *Server) handleRefreshAuth(w http.ResponseWriter, r *http.Request) {
	s.waitHold(r.Context())
	c := claimsFrom(r)
	tok, err := s.tokens.mint(scopeAuth, c.Subject, "", s.opts.Now())
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, http.StatusOK, map[string]string{"token": tok})
}

func (s *Server) handleRefreshUser(w http.ResponseWriter, r *http.Request) {
	s.waitHold(r.Context())
	c := claimsFrom(r)
	tok, err := s.tokens.mint(scopeUser, c.Subject, c.Account, s.opts.Now())
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, http.StatusOK, map[string]string{"token": tok})
}

func (s *Server) handleTokenAndUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == uuid.Nil {
		fail(w, http.StatusBadRequest, "userId mancante")
		return
	}
	c := claimsFrom(r)
	a := s.accountFor(c)

	s.mu.Lock()
	var id *domain.Identity
	for _, i := range a.identities {
		if i.ID == req.UserID {
			id = i.Clone()
		}
	}
	s.mu.Unlock()
	if id == nil {
		writeJSON(w, http.StatusNotFound, envelope{Success: true, Message: "utente non trovato"})
		return
	}

	tok, err := s.tokens.mint(scopeUser, id.ID.String(), a.email, s.opts.Now())
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, http.StatusOK, map[string]any{"userToken": tok, "mainUser": id})
}

// =================================================================================
// USER
// =================================================================================

func userID(c *Claims) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Subject)
	return id, err == nil
}

func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	id, valid := userID(claimsFrom(r))
	if !valid {
		fail(w, http.StatusBadRequest, "utente non valido")
		return
	}
	s.mu.Lock()
	t := s.timetables[id]
	s.mu.Unlock()
	if t == nil {
		t = &domain.Timetable{Entries: []domain.TimetableEntry{}}
	}
	ok(w, http.StatusOK, t)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusBadRequest, "id non valido")
		return
	}
	b, found := s.Image(id)
	if !found {
		fail(w, http.StatusNotFound, "immagine non trovata")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	id, valid := userID(claimsFrom(r))
	if !valid {
		fail(w, http.StatusBadRequest, "utente non valido")
		return
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, int64(s.opts.MaxImageBytes)+1))
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(b) == 0 {
		fail(w, http.StatusBadRequest, "immagine vuota")
		return
	}
	if len(b) > s.opts.MaxImageBytes {
		fail(w, http.StatusRequestEntityTooLarge, "immagine troppo grande")
		return
	}
	s.SetImage(id, b)
	ok(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id, valid := userID(claimsFrom(r))
	if !valid {
		fail(w, http.StatusBadRequest, "utente non valido")
		return
	}
	if _, found := s.Image(id); !found {
		fail(w, http.StatusNotFound, "immagine non trovata")
		return
	}
	s.SetImage(id, nil)
	ok(w, http.StatusOK, nil)
}
