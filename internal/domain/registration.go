package domain

import (
	"strings"

	"github.com/google/uuid"
)

// RegistrationData es el payload de alta de una cuenta nueva.
// ClassID sólo aplica a estudiantes.
type RegistrationData struct {
	Name     string     `json:"name"`
	Surname  string     `json:"surname"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	ClassID  *uuid.UUID `json:"classUUID,omitempty"`
}

// Normalize limpia espacios y pasa el email a minúsculas.
func (r RegistrationData) Normalize() RegistrationData {
	r.Name = strings.TrimSpace(r.Name)
	r.Surname = strings.TrimSpace(r.Surname)
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	return r
}
