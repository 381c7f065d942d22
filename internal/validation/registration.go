// Package validation aplica las reglas de formato del alta de cuentas. El CLI
// las chequea antes de llamar al API y el mock API las vuelve a aplicar.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dropDatabas3/voci/internal/domain"
)

const (
	MinUsername = 2
	MaxUsername = 40
	MaxInput    = 128
)

// Username rules:
// - Sólo letras ASCII, dígitos, "." y "_".
// - Largo MinUsername..MaxUsername.
//
// Válidos: mrossi, m.rossi, anna_b2
// Inválidos: "", a, m rossi, mrossi!, àlex
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9._]+$`)

// Nombres y apellidos: letras de cualquier alfabeto, espacios y apóstrofos.
var nameRe = regexp.MustCompile(`^[\p{L}'‘’ ]+$`)

var emailRe = regexp.MustCompile(`^[a-z0-9._-]+@[a-z0-9.-]+\.[a-z]{2,}$`)

// FieldError indica qué campo del alta no pasa y por qué.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Reason }

func Username(v string) error {
	n := utf8.RuneCountInString(v)
	switch {
	case v == "":
		return &FieldError{"username", "è vuoto"}
	case !usernameRe.MatchString(v):
		return &FieldError{"username", fmt.Sprintf("%s non è valido, puoi usare solo lettere, numeri, . e _", v)}
	case n < MinUsername:
		return &FieldError{"username", fmt.Sprintf("%s è troppo corto", v)}
	case n > MaxUsername:
		return &FieldError{"username", fmt.Sprintf("%s è troppo lungo", v)}
	}
	return nil
}

// Name valida nombre o apellido. field sólo se usa en el mensaje.
func Name(field, v string) error {
	n := utf8.RuneCountInString(v)
	if n == 0 || n > MaxInput || !nameRe.MatchString(v) {
		return &FieldError{field, "contiene caratteri non validi"}
	}
	for _, a := range []string{"'", "‘", "’"} {
		if strings.HasPrefix(v, a) || strings.HasSuffix(v, a) || strings.Contains(v, a+a) || strings.Contains(v, " "+a+" ") {
			return &FieldError{field, "apostrofo non valido"}
		}
	}
	for _, pair := range []string{"‘’", "’‘", "‘'", "'‘", "’'", "'’"} {
		if strings.Contains(v, pair) {
			return &FieldError{field, "apostrofi non validi"}
		}
	}
	return nil
}

var badEmailParts = []string{"..", ".@", "@.", "__", "_@", "--", "-@", "@-"}

func Email(v string) error {
	v = strings.ToLower(v)
	n := utf8.RuneCountInString(v)
	invalid := &FieldError{"email", "l'email non è valida"}
	if n < MinUsername || n > MaxInput || strings.HasPrefix(v, ".") || strings.HasPrefix(v, "_") || strings.HasPrefix(v, "-") {
		return invalid
	}
	for _, p := range badEmailParts {
		if strings.Contains(v, p) {
			return invalid
		}
	}
	if !emailRe.MatchString(v) {
		return invalid
	}
	// el dominio sin TLD no puede terminar en guión
	host := v[strings.LastIndex(v, "@")+1:]
	if i := strings.LastIndex(host, "."); i > 0 && strings.HasSuffix(host[:i], "-") {
		return invalid
	}
	return nil
}

// Registration valida un alta ya normalizada. La contraseña la juzga la
// política del servidor.
func Registration(d domain.RegistrationData) error {
	if err := Name("nome", d.Name); err != nil {
		return err
	}
	if err := Name("cognome", d.Surname); err != nil {
		return err
	}
	if err := Username(d.Username); err != nil {
		return err
	}
	return Email(d.Email)
}
