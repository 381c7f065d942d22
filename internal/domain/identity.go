package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ClassGroup es una clase escolar.
type ClassGroup struct {
	ID   uuid.UUID `json:"classId"`
	Name string    `json:"name"`
}

// StudentDetails son los campos propios del rol estudiante.
type StudentDetails struct {
	Class      ClassGroup `json:"class"`
	StudyField string     `json:"studyFieldName"`
}

// Identity es una persona que usa el sistema. El rol es fijo después de
// construida; los campos propios del rol viven en el payload correspondiente
// (hoy sólo Student).
type Identity struct {
	ID             uuid.UUID
	Name           string
	Surname        string
	Username       string
	ProfileImageID *uuid.UUID

	role    Role
	Student *StudentDetails
}

// NewIdentity crea una identidad con rol. Para RoleStudent usar NewStudent.
func NewIdentity(role Role, id uuid.UUID, name, surname, username string) *Identity {
	return &Identity{ID: id, Name: name, Surname: surname, Username: username, role: RoleFrom(int(role))}
}

// NewStudent crea una identidad de rol estudiante.
func NewStudent(id uuid.UUID, name, surname, username string, details StudentDetails) *Identity {
	i := NewIdentity(RoleStudent, id, name, surname, username)
	i.Student = &details
	return i
}

// Role retorna el rol (inmutable).
func (i *Identity) Role() Role { return i.role }

// HasProfileImage indica si el server declaró una imagen de perfil.
func (i *Identity) HasProfileImage() bool { return i != nil && i.ProfileImageID != nil }

// DisplayName es "Nombre Apellido".
func (i *Identity) DisplayName() string { return i.Name + " " + i.Surname }

// Equal compara todos los campos base, rol y payload de rol.
func (i *Identity) Equal(o *Identity) bool {
	if i == nil || o == nil {
		return i == o
	}
	if i.ID != o.ID || i.Name != o.Name || i.Surname != o.Surname ||
		i.Username != o.Username || i.role != o.role {
		return false
	}
	if !sameImage(i.ProfileImageID, o.ProfileImageID) {
		return false
	}
	switch {
	case i.Student == nil && o.Student == nil:
		return true
	case i.Student == nil || o.Student == nil:
		return false
	default:
		return *i.Student == *o.Student
	}
}

// SameImage indica si ambas identidades apuntan a la misma imagen de perfil.
func (i *Identity) SameImage(o *Identity) bool {
	var a, b *uuid.UUID
	if i != nil {
		a = i.ProfileImageID
	}
	if o != nil {
		b = o.ProfileImageID
	}
	return sameImage(a, b)
}

func sameImage(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Clone devuelve una copia profunda.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	cp := *i
	if i.ProfileImageID != nil {
		id := *i.ProfileImageID
		cp.ProfileImageID = &id
	}
	if i.Student != nil {
		s := *i.Student
		cp.Student = &s
	}
	return &cp
}

// =================================================================================
// WIRE
// =================================================================================

// userWire es el objeto "user" del wire: base + campos opcionales de estudiante.
type userWire struct {
	ID             uuid.UUID  `json:"userId"`
	Name           string     `json:"firstName"`
	Surname        string     `json:"lastName"`
	Username       string     `json:"username"`
	ProfileImageID *uuid.UUID `json:"profileImageId,omitempty"`

	Class      *ClassGroup `json:"class,omitempty"`
	StudyField string      `json:"studyFieldName,omitempty"`
}

func (i *Identity) toWire() userWire {
	w := userWire{
		ID:             i.ID,
		Name:           i.Name,
		Surname:        i.Surname,
		Username:       i.Username,
		ProfileImageID: i.ProfileImageID,
	}
	if i.Student != nil {
		c := i.Student.Class
		w.Class = &c
		w.StudyField = i.Student.StudyField
	}
	return w
}

// fromWire despacha el objeto "user" según el rol ya leído.
func fromWire(role Role, w userWire) (*Identity, error) {
	i := &Identity{
		ID:             w.ID,
		Name:           w.Name,
		Surname:        w.Surname,
		Username:       w.Username,
		ProfileImageID: w.ProfileImageID,
		role:           role,
	}
	if role == RoleStudent {
		if w.Class == nil {
			return nil, fmt.Errorf("student %s: campo class requerido", w.ID)
		}
		i.Student = &StudentDetails{Class: *w.Class, StudyField: w.StudyField}
	}
	return i, nil
}

// snapshotWire es la forma persistida y la de getTokenAndUser: {"roleId":n,"user":{...}}.
type snapshotWire struct {
	Role Role            `json:"roleId"`
	User json.RawMessage `json:"user"`
}

// MarshalJSON serializa la identidad como snapshot {"roleId","user"}.
func (i Identity) MarshalJSON() ([]byte, error) {
	u, err := json.Marshal(i.toWire())
	if err != nil {
		return nil, err
	}
	return json.Marshal(snapshotWire{Role: i.role, User: u})
}

// UnmarshalJSON lee primero el discriminante roleId y después el "user".
func (i *Identity) UnmarshalJSON(b []byte) error {
	var s snapshotWire
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if len(s.User) == 0 {
		return fmt.Errorf("identity: campo user requerido")
	}
	var w userWire
	if err := json.Unmarshal(s.User, &w); err != nil {
		return err
	}
	id, err := fromWire(s.Role, w)
	if err != nil {
		return err
	}
	*i = *id
	return nil
}

// RoleGroup agrupa las identidades candidatas de una cuenta por rol.
type RoleGroup struct {
	Role       Role
	Identities []*Identity
}

type roleGroupWire struct {
	Role  Role              `json:"roleId"`
	Users []json.RawMessage `json:"users"`
}

// UnmarshalJSON decodifica {"roleId":n,"users":[...]}; cada usuario hereda el rol del grupo.
func (g *RoleGroup) UnmarshalJSON(b []byte) error {
	var w roleGroupWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := RoleGroup{Role: w.Role, Identities: make([]*Identity, 0, len(w.Users))}
	for _, raw := range w.Users {
		var u userWire
		if err := json.Unmarshal(raw, &u); err != nil {
			return err
		}
		id, err := fromWire(w.Role, u)
		if err != nil {
			return err
		}
		out.Identities = append(out.Identities, id)
	}
	*g = out
	return nil
}

// MarshalJSON serializa el grupo en la misma forma de wire.
func (g RoleGroup) MarshalJSON() ([]byte, error) {
	users := make([]userWire, 0, len(g.Identities))
	for _, id := range g.Identities {
		users = append(users, id.toWire())
	}
	return json.Marshal(struct {
		Role  Role       `json:"roleId"`
		Users []userWire `json:"users"`
	}{g.Role, users})
}

// Flatten devuelve todas las identidades de todos los grupos, en orden.
func Flatten(groups []RoleGroup) []*Identity {
	var out []*Identity
	for _, g := range groups {
		out = append(out, g.Identities...)
	}
	return out
}
