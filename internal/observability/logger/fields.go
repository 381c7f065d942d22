package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP (cliente)
// =================================================================================

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field { return zap.String("method", v) }

// Endpoint crea un campo para el path de la API consumida.
func Endpoint(v string) zap.Field { return zap.String("endpoint", v) }

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field { return zap.Int("status", v) }

// Duration crea un campo para la duración de la llamada.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Bytes crea un campo para tamaños de payload.
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

// RequestID crea un campo para el ID de request (lado server, cmd/mockapi).
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SESIÓN
// =================================================================================

// IdentityID crea un campo para el ID de la identidad.
func IdentityID(v string) zap.Field { return zap.String("identity_id", v) }

// Username crea un campo para el handle de la identidad.
func Username(v string) zap.Field { return zap.String("username", v) }

// TokenKind crea un campo para el tipo de token (auth | user).
func TokenKind(v string) zap.Field { return zap.String("token_kind", v) }

// Kind crea un campo para la categoría de error clasificada.
func Kind(v string) zap.Field { return zap.String("kind", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// Key crea un campo para una clave de persistencia.
func Key(v string) zap.Field { return zap.String("key", v) }

// Path crea un campo para una ruta local.
func Path(v string) zap.Field { return zap.String("path", v) }

// Count crea un campo para un conteo.
func Count(v int) zap.Field { return zap.Int("count", v) }

// Any crea un campo con un valor arbitrario.
func Any(key string, v any) zap.Field { return zap.Any(key, v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }
