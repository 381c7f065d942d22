package apitest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/voci/internal/domain"
)

// Seed es el contenido de un archivo de datos iniciales para cmd/mockapi.
//
//	classes:
//	  - name: 5A
//	accounts:
//	  - email: prof@scuola.it
//	    password: Password1
//	    verified: true
//	    identities:
//	      - role: teacher
//	        name: Anna
//	        surname: Bianchi
//	        username: abianchi
//	        image: foto.jpg
type Seed struct {
	Classes  []SeedClass   `yaml:"classes"`
	Accounts []SeedAccount `yaml:"accounts"`
}

type SeedClass struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type SeedAccount struct {
	Email      string         `yaml:"email"`
	Password   string         `yaml:"password"`
	Verified   bool           `yaml:"verified"`
	Identities []SeedIdentity `yaml:"identities"`
}

type SeedIdentity struct {
	ID         string `yaml:"id"`
	Role       string `yaml:"role"`
	Name       string `yaml:"name"`
	Surname    string `yaml:"surname"`
	Username   string `yaml:"username"`
	Class      string `yaml:"class"` // nombre de una clase de classes
	StudyField string `yaml:"study_field"`
	// Image es un archivo JPEG, relativo al archivo de seed.
	Image string `yaml:"image"`
}

// LoadSeed lee y parsea un archivo de seed.
func LoadSeed(path string) (*Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Seed
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("seed: %s: %w", path, err)
	}
	return &s, nil
}

// ParseRole acepta el nombre del rol (student, teacher...).
func ParseRole(v string) (domain.Role, error) {
	for r := domain.RoleUser; r <= domain.RoleSecretariat; r++ {
		if strings.EqualFold(strings.TrimSpace(v), r.String()) {
			return r, nil
		}
	}
	return domain.RoleUser, fmt.Errorf("ruolo sconosciuto %q", v)
}

// ApplySeed carga el seed en el server. baseDir resuelve las rutas de imagen.
func (s *Server) ApplySeed(seed *Seed, baseDir string) error {
	classes := map[string]domain.ClassGroup{}
	for _, c := range seed.Classes {
		id, err := parseOrNew(c.ID)
		if err != nil {
			return fmt.Errorf("seed: classe %q: %w", c.Name, err)
		}
		s.AddClass(id, c.Name)
		classes[strings.ToLower(c.Name)] = domain.ClassGroup{ID: id, Name: c.Name}
	}

	images := map[uuid.UUID]string{}
	for _, a := range seed.Accounts {
		ids := make([]*domain.Identity, 0, len(a.Identities))
		for _, si := range a.Identities {
			ident, err := si.build(classes)
			if err != nil {
				return fmt.Errorf("seed: %s: %w", a.Email, err)
			}
			ids = append(ids, ident)
			if si.Image != "" {
				images[ident.ID] = si.Image
			}
		}
		if err := s.AddAccount(a.Email, a.Password, a.Verified, ids...); err != nil {
			return fmt.Errorf("seed: %s: %w", a.Email, err)
		}
	}

	for id, path := range images {
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("seed: immagine: %w", err)
		}
		s.SetImage(id, data)
	}
	return nil
}

func (si SeedIdentity) build(classes map[string]domain.ClassGroup) (*domain.Identity, error) {
	role, err := ParseRole(si.Role)
	if err != nil {
		return nil, err
	}
	id, err := parseOrNew(si.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", si.Username, err)
	}
	if role != domain.RoleStudent {
		return domain.NewIdentity(role, id, si.Name, si.Surname, si.Username), nil
	}
	class, ok := classes[strings.ToLower(si.Class)]
	if !ok {
		return nil, fmt.Errorf("%s: classe %q non definita", si.Username, si.Class)
	}
	return domain.NewStudent(id, si.Name, si.Surname, si.Username, domain.StudentDetails{
		Class:      class,
		StudyField: si.StudyField,
	}), nil
}

func parseOrNew(v string) (uuid.UUID, error) {
	if strings.TrimSpace(v) == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(v)
}
