// Package apperr define la taxonomía cerrada de errores del cliente y el
// clasificador que los convierte en notificaciones para el usuario.
//
// Ningún otro componente formatea texto para el usuario: todos devuelven
// *Error (o errores crudos de red/decodificación) y Classifier decide.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind es la categoría cerrada de un error.
type Kind string

const (
	KindMalformedData        Kind = "malformed_data"
	KindUntrustedCertificate Kind = "untrusted_certificate"
	KindBadRequest           Kind = "bad_request"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindPayloadTooLarge      Kind = "payload_too_large"
	KindServerError          Kind = "server_error"
	KindUnauthorized         Kind = "unauthorized"
	KindForbidden            Kind = "forbidden"
	KindInvalidURL           Kind = "invalid_url"
	KindServiceUnavailable   Kind = "service_unavailable"
	KindEmptyResultSet       Kind = "empty_result_set"
	KindCredentialSave       Kind = "credential_save_failure"
	KindInvalidCredentials   Kind = "invalid_credentials"
	KindEmailUnverified      Kind = "email_unverified"
	KindUserNotFound         Kind = "user_not_found"
	KindUnknown              Kind = "unknown"

	// Transporte
	KindNoConnectivity  Kind = "no_connectivity"
	KindTimeout         Kind = "timeout"
	KindHostUnreachable Kind = "host_unreachable"

	// Locales
	KindMissingToken    Kind = "missing_token"
	KindReauthRequested Kind = "reauth_requested"
	KindImageNotFound   Kind = "image_not_found"
)

// Error es el error de dominio del cliente.
type Error struct {
	Kind    Kind
	Message string // detalle (mensaje del server, URL, qué no se pudo guardar)
	Status  int    // status HTTP que lo originó, 0 si es local
	Err     error  // causa, sólo para logs
}

// Error implementa la interfaz error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap permite acceder al error original.
func (e *Error) Unwrap() error { return e.Err }

// WithCause devuelve una COPIA con la causa seteada.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// Notification devuelve la notificación asociada 1:1 a la categoría.
func (e *Error) Notification() Notification {
	return notificationFor(e.Kind, e.Message)
}

// KindOf extrae la categoría de err; KindUnknown si no es *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Is reporta si err (o alguno de los que envuelve) es un *Error de la categoría k.
func Is(err error, k Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == k
}

func newErr(k Kind, status int, msg string) *Error {
	return &Error{Kind: k, Status: status, Message: msg}
}

// =================================================================================
// CONSTRUCTORES
// =================================================================================

func MalformedData(msg string) *Error { return newErr(KindMalformedData, 0, msg) }
func UntrustedCertificate(msg string) *Error {
	return newErr(KindUntrustedCertificate, 0, msg)
}
func BadRequest(msg string) *Error { return newErr(KindBadRequest, http.StatusBadRequest, msg) }
func NotFound(msg string) *Error   { return newErr(KindNotFound, http.StatusNotFound, msg) }
func Conflict(msg string) *Error   { return newErr(KindConflict, http.StatusConflict, msg) }
func PayloadTooLarge(msg string) *Error {
	return newErr(KindPayloadTooLarge, http.StatusRequestEntityTooLarge, msg)
}
func ServerError(msg string) *Error {
	return newErr(KindServerError, http.StatusInternalServerError, msg)
}
func Unauthorized(msg string) *Error {
	return newErr(KindUnauthorized, http.StatusUnauthorized, msg)
}
func Forbidden(msg string) *Error { return newErr(KindForbidden, http.StatusForbidden, msg) }
func InvalidURL(url string) *Error { return newErr(KindInvalidURL, 0, url) }
func ServiceUnavailable() *Error {
	return newErr(KindServiceUnavailable, http.StatusServiceUnavailable, "")
}
func EmptyResultSet() *Error               { return newErr(KindEmptyResultSet, 0, "") }
func CredentialSaveFailure(what string) *Error { return newErr(KindCredentialSave, 0, what) }
func InvalidCredentials() *Error {
	return newErr(KindInvalidCredentials, http.StatusUnauthorized, "")
}
func EmailUnverified() *Error { return newErr(KindEmailUnverified, http.StatusForbidden, "") }
func UserNotFound() *Error    { return newErr(KindUserNotFound, http.StatusNotFound, "") }
func Unknown(msg string) *Error { return newErr(KindUnknown, 0, msg) }

func NoConnectivity(msg string) *Error  { return newErr(KindNoConnectivity, 0, msg) }
func Timeout(msg string) *Error         { return newErr(KindTimeout, 0, msg) }
func HostUnreachable(msg string) *Error { return newErr(KindHostUnreachable, 0, msg) }

func MissingToken(which string) *Error { return newErr(KindMissingToken, 0, which) }
func ReauthRequested(msg string) *Error {
	return newErr(KindReauthRequested, 0, msg)
}
func ImageNotFound() *Error { return newErr(KindImageNotFound, 0, "") }

// FromStatus mapea un status HTTP genérico (sin semántica propia del endpoint).
func FromStatus(status int, msg string) *Error {
	switch status {
	case http.StatusBadRequest:
		return BadRequest(msg)
	case http.StatusUnauthorized:
		return Unauthorized(msg)
	case http.StatusForbidden:
		return Forbidden(msg)
	case http.StatusNotFound:
		return NotFound(msg)
	case http.StatusConflict:
		return Conflict(msg)
	case http.StatusRequestEntityTooLarge:
		return PayloadTooLarge(msg)
	case http.StatusInternalServerError:
		return ServerError(msg)
	case http.StatusServiceUnavailable:
		return ServiceUnavailable()
	default:
		e := Unknown(msg)
		e.Status = status
		return e
	}
}
