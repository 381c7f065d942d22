package validation

import (
	"strings"
	"testing"

	"github.com/dropDatabas3/voci/internal/domain"
)

func TestUsername(t *testing.T) {
	valids := []string{
		"ab",
		"mrossi",
		"m.rossi",
		"anna_b2",
		strings.Repeat("a", MaxUsername),
	}
	for _, v := range valids {
		if err := Username(v); err != nil {
			t.Fatalf("expected valid %q: %v", v, err)
		}
	}

	invalids := []struct{ in, want string }{
		{"", "vuoto"},
		{"a", "corto"},
		{"m rossi", "non è valido"},
		{"mrossi!", "non è valido"},
		{"àlex", "non è valido"},
		{strings.Repeat("a", MaxUsername+1), "lungo"},
	}
	for _, tc := range invalids {
		err := Username(tc.in)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("Username(%q) = %v, want %q", tc.in, err, tc.want)
		}
	}
}

func TestName(t *testing.T) {
	for _, v := range []string{"Anna", "D'Angelo", "Maria Grazia", "Ñuñez", "Łukasz"} {
		if err := Name("nome", v); err != nil {
			t.Fatalf("expected valid %q: %v", v, err)
		}
	}
	for _, v := range []string{"", "Anna1", "'Anna", "D''Angelo", "D'’Angelo", "Anna ' B", strings.Repeat("a", MaxInput+1)} {
		if err := Name("nome", v); err == nil {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}

func TestEmail(t *testing.T) {
	for _, v := range []string{"mrossi@scuola.it", "M.Rossi@Scuola.it", "a-b_c@mail.example.com"} {
		if err := Email(v); err != nil {
			t.Fatalf("expected valid %q: %v", v, err)
		}
	}
	for _, v := range []string{
		"",
		"mrossi",
		".mrossi@scuola.it",
		"m..rossi@scuola.it",
		"mrossi.@scuola.it",
		"mrossi@-scuola.it",
		"mrossi@scuola-.it",
		"mrossi@scuola",
		"m rossi@scuola.it",
	} {
		if err := Email(v); err == nil {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}

func TestRegistration(t *testing.T) {
	ok := domain.RegistrationData{Name: "Sara", Surname: "Neri", Username: "sneri", Email: "sara@scuola.it"}
	if err := Registration(ok); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	bad := ok
	bad.Surname = "N3ri"
	err := Registration(bad)
	fe, isField := err.(*FieldError)
	if !isField || fe.Field != "cognome" {
		t.Fatalf("want cognome FieldError, got %v", err)
	}
}
