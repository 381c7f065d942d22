package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/voci/internal/apperr"
)

// Envelope es el sobre de todas las respuestas JSON del API.
type Envelope[T any] struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    *T         `json:"data,omitempty"`
	Auth    *AuthFlags `json:"auth,omitempty"`
	User    *UserFlags `json:"user,omitempty"`
}

// AuthFlags vienen en respuestas de endpoints /auth.
type AuthFlags struct {
	LogOut bool `json:"logOut"`
}

// UserFlags vienen en respuestas de endpoints /user.
type UserFlags struct {
	LogOut      bool `json:"logOut"`
	UpdateToken bool `json:"updateToken"`
}

// Fingerprints de la página HTML que devuelve el proxy cuando el backend está caído.
var unavailableFingerprints = [][]byte{
	[]byte("<title>503 Service Unavailable</title>"),
	[]byte("Service Temporarily Unavailable"),
}

// IsUnavailablePage reporta si body es la página HTML de 503 del proxy.
func IsUnavailablePage(body []byte) bool {
	for _, fp := range unavailableFingerprints {
		if bytes.Contains(body, fp) {
			return true
		}
	}
	return false
}

// decode interpreta la respuesta como Envelope[T].
//
// Orden: 503 con página HTML conocida, cuerpo JSON, y para respuestas no 2xx
// los flags de sesión (logOut gana sobre updateToken).
func decode[T any](r *response) (*Envelope[T], error) {
	if r.status == http.StatusServiceUnavailable && IsUnavailablePage(r.body) {
		return nil, apperr.ServiceUnavailable()
	}

	env := &Envelope[T]{}
	if len(bytes.TrimSpace(r.body)) == 0 {
		env.Success = r.ok()
		env.Message = http.StatusText(r.status)
	} else if err := json.Unmarshal(r.body, env); err != nil {
		return nil, apperr.MalformedData(err.Error()).WithCause(err)
	}

	if !r.ok() {
		if err := flagsError(env.Message, env.Auth, env.User); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func flagsError(msg string, a *AuthFlags, u *UserFlags) error {
	if (a != nil && a.LogOut) || (u != nil && u.LogOut) {
		return apperr.Unauthorized(msg)
	}
	if u != nil && u.UpdateToken {
		return apperr.ReauthRequested(msg)
	}
	return nil
}

// requireData falla con malformed_data si un 2xx no trae data.
func requireData[T any](env *Envelope[T]) (*T, error) {
	if env.Data == nil {
		return nil, apperr.MalformedData("campo data mancante")
	}
	return env.Data, nil
}
