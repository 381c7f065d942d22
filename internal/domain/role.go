// Package domain define el modelo de datos del cliente: roles, identidades
// (unión etiquetada por rol), grupos de identidades y horario.
package domain

import (
	"encoding/json"
	"fmt"
)

// Role es el rol de una identidad. Valores de wire fijos.
type Role int

const (
	RoleUser        Role = 0 // usuario anónimo / sin rol específico
	RoleAdmin       Role = 1
	RoleStudent     Role = 2
	RoleTeacher     Role = 3
	RolePrincipal   Role = 4
	RoleSecretariat Role = 5
)

// RoleFrom convierte un entero de wire; valores desconocidos caen en RoleUser.
func RoleFrom(v int) Role {
	r := Role(v)
	if !r.IsValid() {
		return RoleUser
	}
	return r
}

// IsValid retorna true si el rol es uno de los conocidos.
func (r Role) IsValid() bool {
	return r >= RoleUser && r <= RoleSecretariat
}

// Label es la etiqueta para mostrar (locale it).
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleStudent:
		return "studente"
	case RoleTeacher:
		return "professore"
	case RolePrincipal:
		return "preside"
	case RoleSecretariat:
		return "segreteria"
	default:
		return "user"
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleStudent:
		return "student"
	case RoleTeacher:
		return "teacher"
	case RolePrincipal:
		return "principal"
	case RoleSecretariat:
		return "secretariat"
	default:
		return "user"
	}
}

// UnmarshalJSON acepta el entero de wire.
func (r *Role) UnmarshalJSON(b []byte) error {
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("roleId: %w", err)
	}
	*r = RoleFrom(v)
	return nil
}
