package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"

	"github.com/google/uuid"

	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/domain"
)

// Paths del API (relativos a BaseURL).
const (
	PathRegister       = "/register"
	PathLogin          = "/login"
	PathCheckUsername  = "/check/username"
	PathClasses        = "/classes/registration"
	PathCertificates   = "/downloads/certificates"
	PathAuthValid      = "/auth/isAuthTokenValid"
	PathAuthRefresh    = "/auth/refreshAuthToken"
	PathTokenAndUser   = "/auth/getTokenAndUser"
	PathUserValid      = "/user/isUserTokenValid"
	PathUserRefresh    = "/user/refreshUserToken"
	PathTimetable      = "/user/getTimetable"
	PathProfileImage   = "/user/profileImage"
	profileImageSuffix = "profileImage"
)

// Scope es el alcance de un token: auth (dispositivo) o user (identidad).
type Scope string

const (
	ScopeAuth Scope = "auth"
	ScopeUser Scope = "user"
)

func (s Scope) validPath() string {
	if s == ScopeUser {
		return PathUserValid
	}
	return PathAuthValid
}

func (s Scope) refreshPath() string {
	if s == ScopeUser {
		return PathUserRefresh
	}
	return PathAuthRefresh
}

// ProfileImagePath es /user/{id}/profileImage o /auth/{id}/profileImage.
func ProfileImagePath(s Scope, id uuid.UUID) string {
	return "/" + string(s) + "/" + id.String() + "/" + profileImageSuffix
}

// =================================================================================
// STATUS MAPPING
// =================================================================================

// tokenStatusError: 400/401/403 con semántica propia, 500 server, resto unknown.
func tokenStatusError(status int, msg string) error {
	switch status {
	case http.StatusBadRequest:
		return apperr.BadRequest(msg)
	case http.StatusUnauthorized:
		return apperr.Unauthorized(msg)
	case http.StatusForbidden:
		return apperr.Forbidden(msg)
	case http.StatusInternalServerError:
		return apperr.ServerError(msg)
	default:
		e := apperr.Unknown(msg)
		e.Status = status
		return e
	}
}

// identityStatusError agrega 404 con flag success (usuario inexistente vs recurso).
func identityStatusError(status int, success bool, msg string) error {
	if status == http.StatusNotFound {
		if success {
			return apperr.UserNotFound()
		}
		return apperr.NotFound(msg)
	}
	return tokenStatusError(status, msg)
}

func marshalBody(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.MalformedData(err.Error()).WithCause(err)
	}
	return b, nil
}

// =================================================================================
// REGISTRO
// =================================================================================

// RegisterConflict lista los campos ya tomados (vacío = no tomado).
type RegisterConflict struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// RegisterResult: Conflict != nil cuando el server respondió 409 estructurado.
type RegisterResult struct {
	Username string
	Conflict *RegisterConflict
}

// Register crea una cuenta. 409 con username/email no es error: vuelve en Conflict.
func (c *Client) Register(ctx context.Context, data domain.RegistrationData) (*RegisterResult, error) {
	body, err := marshalBody(data)
	if err != nil {
		return nil, err
	}
	r, err := c.do(ctx, request{method: http.MethodPost, path: PathRegister, body: body})
	if err != nil {
		return nil, err
	}
	env, err := decode[RegisterConflict](r)
	if err != nil {
		return nil, err
	}

	switch r.status {
	case http.StatusCreated:
		name := data.Username
		if env.Data != nil && env.Data.Username != "" {
			name = env.Data.Username
		}
		return &RegisterResult{Username: name}, nil
	case http.StatusBadRequest:
		return nil, apperr.BadRequest(env.Message)
	case http.StatusConflict:
		if env.Data == nil || (env.Data.Username == "" && env.Data.Email == "") {
			return nil, apperr.Conflict(env.Message)
		}
		return &RegisterResult{Conflict: env.Data}, nil
	case http.StatusInternalServerError:
		return nil, apperr.ServerError(env.Message)
	default:
		e := apperr.Unknown(env.Message)
		e.Status = r.status
		return nil, e
	}
}

// UsernameCheck es la respuesta de /check/username.
type UsernameCheck struct {
	Exists   bool   `json:"exists"`
	Username string `json:"username"`
}

// CheckUsername consulta si el handle ya existe.
func (c *Client) CheckUsername(ctx context.Context, username string) (*UsernameCheck, error) {
	r, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   PathCheckUsername,
		query:  url.Values{"username": {username}},
	})
	if err != nil {
		return nil, err
	}
	env, err := decode[UsernameCheck](r)
	if err != nil {
		return nil, err
	}
	if r.status != http.StatusOK {
		return nil, apperr.FromStatus(r.status, env.Message)
	}
	out, err := requireData(env)
	if err != nil {
		return nil, err
	}
	if out.Username == "" {
		out.Username = username
	}
	return out, nil
}

// AvailableClasses devuelve las clases seleccionables en el registro, por nombre.
func (c *Client) AvailableClasses(ctx context.Context) ([]domain.ClassGroup, error) {
	r, err := c.do(ctx, request{method: http.MethodGet, path: PathClasses})
	if err != nil {
		return nil, err
	}
	env, err := decode[struct {
		Classes map[string]string `json:"classes"`
	}](r)
	if err != nil {
		return nil, err
	}
	if r.status != http.StatusOK {
		return nil, apperr.ServerError(env.Message)
	}
	if env.Data == nil || len(env.Data.Classes) == 0 {
		return nil, apperr.EmptyResultSet()
	}

	out := make([]domain.ClassGroup, 0, len(env.Data.Classes))
	for k, name := range env.Data.Classes {
		id, err := uuid.Parse(k)
		if err != nil {
			continue
		}
		out = append(out, domain.ClassGroup{ID: id, Name: name})
	}
	if len(out) == 0 {
		return nil, apperr.EmptyResultSet()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =================================================================================
// LOGIN / TOKENS
// =================================================================================

// LoginResult es la respuesta 200 de /login.
type LoginResult struct {
	AuthToken  string             `json:"authToken"`
	RoleGroups []domain.RoleGroup `json:"roleGroups"`
}

// Login envía credenciales. 404 distingue usuario inexistente por el flag success.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body, err := marshalBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	r, err := c.do(ctx, request{method: http.MethodPost, path: PathLogin, body: body})
	if err != nil {
		return nil, err
	}
	env, err := decode[LoginResult](r)
	if err != nil {
		return nil, err
	}

	switch r.status {
	case http.StatusOK:
		out, err := requireData(env)
		if err != nil {
			return nil, err
		}
		if out.AuthToken == "" {
			return nil, apperr.MalformedData("authToken mancante")
		}
		return out, nil
	case http.StatusUnauthorized:
		return nil, apperr.InvalidCredentials()
	case http.StatusForbidden:
		return nil, apperr.EmailUnverified()
	default:
		return nil, identityStatusError(r.status, env.Success, env.Message)
	}
}

// ValidateToken consulta el endpoint de validez del scope. 200 → true.
func (c *Client) ValidateToken(ctx context.Context, s Scope, secret string) (bool, error) {
	r, err := c.do(ctx, request{method: http.MethodGet, path: s.validPath(), bearer: secret})
	if err != nil {
		return false, err
	}
	env, err := decode[json.RawMessage](r)
	if err != nil {
		return false, err
	}
	if r.status == http.StatusOK {
		return true, nil
	}
	return false, tokenStatusError(r.status, env.Message)
}

// RefreshToken pide un token nuevo del scope usando el actual.
func (c *Client) RefreshToken(ctx context.Context, s Scope, secret string) (string, error) {
	r, err := c.do(ctx, request{method: http.MethodGet, path: s.refreshPath(), bearer: secret})
	if err != nil {
		return "", err
	}
	env, err := decode[struct {
		Token string `json:"token"`
	}](r)
	if err != nil {
		return "", err
	}
	if r.status != http.StatusOK {
		return "", tokenStatusError(r.status, env.Message)
	}
	if env.Data == nil || env.Data.Token == "" {
		return "", apperr.MalformedData("token mancante")
	}
	return env.Data.Token, nil
}

// TokenAndUser es la respuesta de /auth/getTokenAndUser.
type TokenAndUser struct {
	UserToken string           `json:"userToken"`
	Identity  *domain.Identity `json:"mainUser"`
}

// GetTokenAndUser selecciona la identidad id con el auth token.
func (c *Client) GetTokenAndUser(ctx context.Context, authSecret string, id uuid.UUID) (*TokenAndUser, error) {
	body, err := marshalBody(map[string]string{"userId": id.String()})
	if err != nil {
		return nil, err
	}
	r, err := c.do(ctx, request{method: http.MethodPost, path: PathTokenAndUser, bearer: authSecret, body: body})
	if err != nil {
		return nil, err
	}
	env, err := decode[TokenAndUser](r)
	if err != nil {
		return nil, err
	}
	if r.status != http.StatusOK {
		return nil, identityStatusError(r.status, env.Success, env.Message)
	}
	out, err := requireData(env)
	if err != nil {
		return nil, err
	}
	if out.UserToken == "" || out.Identity == nil {
		return nil, apperr.MalformedData("userToken o mainUser mancante")
	}
	return out, nil
}

// =================================================================================
// USER
// =================================================================================

// Timetable devuelve el horario de la identidad activa.
func (c *Client) Timetable(ctx context.Context, userSecret string) (*domain.Timetable, error) {
	r, err := c.do(ctx, request{method: http.MethodGet, path: PathTimetable, bearer: userSecret})
	if err != nil {
		return nil, err
	}
	env, err := decode[domain.Timetable](r)
	if err != nil {
		return nil, err
	}
	if r.status != http.StatusOK {
		return nil, tokenStatusError(r.status, env.Message)
	}
	return requireData(env)
}

// imageStatusError agrega 404 (imagen inexistente) y 413.
func imageStatusError(status int, msg string) error {
	switch status {
	case http.StatusNotFound:
		return apperr.ImageNotFound()
	case http.StatusRequestEntityTooLarge:
		return apperr.PayloadTooLarge(msg)
	default:
		return tokenStatusError(status, msg)
	}
}

// ProfileImage descarga la imagen de la identidad id. Con ScopeUser usa el
// user token (sesión propia); con ScopeAuth el auth token (preview en login).
func (c *Client) ProfileImage(ctx context.Context, s Scope, secret string, id uuid.UUID) ([]byte, error) {
	r, err := c.do(ctx, request{method: http.MethodGet, path: ProfileImagePath(s, id), bearer: secret})
	if err != nil {
		return nil, err
	}
	if r.status == http.StatusOK {
		if len(r.body) == 0 {
			return nil, apperr.MalformedData("immagine vuota")
		}
		return r.body, nil
	}
	env, err := decode[json.RawMessage](r)
	if err != nil {
		return nil, err
	}
	return nil, imageStatusError(r.status, env.Message)
}

// UploadProfileImage sube un JPEG como imagen de la identidad activa.
func (c *Client) UploadProfileImage(ctx context.Context, userSecret string, jpeg []byte) error {
	r, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        PathProfileImage,
		bearer:      userSecret,
		body:        jpeg,
		contentType: "image/jpeg",
	})
	if err != nil {
		return err
	}
	env, err := decode[json.RawMessage](r)
	if err != nil {
		return err
	}
	if r.ok() {
		return nil
	}
	return imageStatusError(r.status, env.Message)
}

// DeleteProfileImage borra la imagen remota de la identidad activa.
func (c *Client) DeleteProfileImage(ctx context.Context, userSecret string) error {
	r, err := c.do(ctx, request{method: http.MethodDelete, path: PathProfileImage, bearer: userSecret})
	if err != nil {
		return err
	}
	env, err := decode[json.RawMessage](r)
	if err != nil {
		return err
	}
	if r.ok() {
		return nil
	}
	return imageStatusError(r.status, env.Message)
}
