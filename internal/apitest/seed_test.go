package apitest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/voci/internal/domain"
)

const seedYAML = `
classes:
  - id: 0b8f4c52-3f4e-4d8e-9b1a-2f1f6a6f0c11
    name: 5A
accounts:
  - email: Multi@Scuola.it
    password: Password1
    verified: true
    identities:
      - role: student
        name: Luca
        surname: Verdi
        username: lverdi
        class: 5a
        study_field: Informatica
        image: luca.jpg
      - role: admin
        name: Luca
        surname: Verdi
        username: lverdi-admin
  - email: nuovo@scuola.it
    password: Password1
`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "luca.jpg"), []byte("jpeg-luca"), 0o600))
	return path
}

func TestApplySeed(t *testing.T) {
	path := writeSeed(t, seedYAML)
	seed, err := LoadSeed(path)
	require.NoError(t, err)

	s := New(Options{})
	require.NoError(t, s.ApplySeed(seed, filepath.Dir(path)))

	c := newClient(t, s)
	classes, err := c.AvailableClasses(context.Background())
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "5A", classes[0].Name)

	res, err := c.Login(context.Background(), "multi@scuola.it", "Password1")
	require.NoError(t, err)
	ids := domain.Flatten(res.RoleGroups)
	require.Len(t, ids, 2)

	var student *domain.Identity
	for _, i := range ids {
		if i.Role() == domain.RoleStudent {
			student = i
		}
	}
	require.NotNil(t, student)
	require.NotNil(t, student.Student)
	assert.Equal(t, "5A", student.Student.Class.Name)
	assert.Equal(t, "Informatica", student.Student.StudyField)
	assert.True(t, student.HasProfileImage())

	img, ok := s.Image(student.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg-luca"), img)
}

func TestApplySeed_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown role": `
accounts:
  - email: a@b.it
    password: Password1
    identities:
      - {role: bidello, username: x}
`,
		"student without class": `
accounts:
  - email: a@b.it
    password: Password1
    identities:
      - {role: student, username: x, class: 9Z}
`,
		"bad id": `
classes:
  - {id: non-uuid, name: 5A}
`,
		"missing image": `
accounts:
  - email: a@b.it
    password: Password1
    identities:
      - {role: teacher, username: x, image: manca.jpg}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeSeed(t, body)
			seed, err := LoadSeed(path)
			require.NoError(t, err)
			assert.Error(t, New(Options{}).ApplySeed(seed, filepath.Dir(path)))
		})
	}
}

func TestLoadSeed_Malformed(t *testing.T) {
	path := writeSeed(t, "accounts: [")
	_, err := LoadSeed(path)
	assert.Error(t, err)
}

func TestParseRole(t *testing.T) {
	for _, r := range []domain.Role{domain.RoleUser, domain.RoleAdmin, domain.RoleStudent, domain.RoleTeacher, domain.RolePrincipal, domain.RoleSecretariat} {
		got, err := ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	got, err := ParseRole(" Teacher ")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeacher, got)
}

func TestMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(Options{Registerer: reg})
	h := s.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 32)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	// un segundo router sobre el mismo registry reutiliza los collectors
	_ = s.Router()

	for _, name := range []string{"voci_mockapi_requests_total", "voci_mockapi_request_duration_seconds"} {
		n, err := testutil.GatherAndCount(reg, name)
		require.NoError(t, err)
		assert.Equal(t, 1, n, name)
	}
}

func TestRecover(t *testing.T) {
	h := withRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}
