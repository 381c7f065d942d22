// Package token coordina los dos tokens de la sesión (auth y user):
// slots en memoria, validación remota, refresco deduplicado por tipo y el
// latch de "auth loading" que ordena los refrescos de user detrás de una
// re-autenticación completa.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Secret es un bearer token opaco. El server emite JWT; el cliente sólo lee
// el iat sin verificar la firma.
type Secret string

// IssuedAt decodifica el claim iat. ok=false si el token no es un JWT o no lo trae.
func (s Secret) IssuedAt() (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(string(s), claims); err != nil {
		return time.Time{}, false
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return time.Time{}, false
	}
	return iat.Time, true
}

// OlderThan reporta si el token fue emitido hace al menos d. Un token sin iat
// legible no se considera viejo.
func (s Secret) OlderThan(d time.Duration, now time.Time) bool {
	iat, ok := s.IssuedAt()
	if !ok {
		return false
	}
	return now.Sub(iat) >= d
}

// Redacted es una versión segura para logs.
func (s Secret) Redacted() string {
	if len(s) <= 8 {
		return "***"
	}
	return string(s[:6]) + "…"
}
