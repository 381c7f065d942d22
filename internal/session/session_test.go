package session

import (
	"context"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/voci/internal/api"
	"github.com/dropDatabas3/voci/internal/apitest"
	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/cache"
	"github.com/dropDatabas3/voci/internal/credstore"
	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/notify"
	"github.com/dropDatabas3/voci/internal/profileimage"
	"github.com/dropDatabas3/voci/internal/token"
)

const (
	soloEmail  = "solo@scuola.it"
	multiEmail = "multi@scuola.it"
	emptyEmail = "vuoto@scuola.it"
	password   = "Password1"
)

type harness struct {
	srv        *apitest.Server
	http       *httptest.Server
	client     *api.Client
	tokens     *token.Coordinator
	secrets    *credstore.MemorySecretStore
	store      *credstore.Store
	images     *profileimage.Pipeline
	center     *notify.Center
	classifier *apperr.Classifier
	m          *Manager

	teacher *domain.Identity // única identidad de soloEmail, con imagen
	student *domain.Identity // multiEmail
	admin   *domain.Identity // multiEmail
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{srv: apitest.New(apitest.Options{})}

	h.teacher = domain.NewIdentity(domain.RoleTeacher, uuid.New(), "Anna", "Bianchi", "abianchi")
	classID := uuid.New()
	h.student = domain.NewStudent(uuid.New(), "Luca", "Verdi", "lverdi", domain.StudentDetails{
		Class:      domain.ClassGroup{ID: classID, Name: "5A"},
		StudyField: "Informatica",
	})
	h.admin = domain.NewIdentity(domain.RoleAdmin, uuid.New(), "Luca", "Verdi", "lverdi-admin")

	require.NoError(t, h.srv.AddAccount(soloEmail, password, true, h.teacher))
	require.NoError(t, h.srv.AddAccount(multiEmail, password, true, h.student, h.admin))
	require.NoError(t, h.srv.AddAccount(emptyEmail, password, true))
	h.srv.SetImage(h.teacher.ID, []byte("teacher-jpeg"))
	h.teacher = h.srv.Identity(h.teacher.ID)
	h.srv.AddClass(classID, "5A")

	h.http = h.srv.Start()
	t.Cleanup(h.http.Close)

	var err error
	h.client, err = api.New(api.Options{BaseURL: h.http.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	h.secrets = credstore.NewMemorySecretStore()
	h.store = credstore.NewStore(cache.NewMemory("test:"))
	h.center = notify.NewCenter(ctx, h.store)
	h.classifier = apperr.NewClassifier(h.center, h.client.CertificateURL(), nil)
	h.tokens = token.NewCoordinator(h.client, token.Options{})
	h.images, err = profileimage.New(h.client, h.tokens, profileimage.Options{Dir: t.TempDir()})
	require.NoError(t, err)

	h.m = New(Deps{
		Remote:   h.client,
		Tokens:   h.tokens,
		Secrets:  h.secrets,
		Store:    h.store,
		Images:   h.images,
		Reporter: h.classifier,
		Notifier: h.center,
	}, Options{})
	h.classifier.SetRefresher(h.m)
	t.Cleanup(func() {
		h.m.Wait()
		h.classifier.Wait()
	})
	return h
}

func (h *harness) settle() {
	h.m.Wait()
	h.classifier.Wait()
	h.m.Wait()
}

// =================================================================================
// LOGIN / SELECT
// =================================================================================

func TestLogin_SingleIdentityAutoSelects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.m.Login(ctx, soloEmail, password)
	require.NoError(t, err)
	require.NotNil(t, out.Selected)
	assert.Equal(t, h.teacher.ID, out.Selected.Identity.ID)
	assert.Equal(t, 1, h.srv.Hits(api.PathTokenAndUser))

	st := h.m.State()
	assert.True(t, st.IsAuthenticated)
	assert.True(t, st.HasUserToken)

	saved, found := h.secrets.LoadSecret(ctx)
	require.True(t, found)
	assert.Equal(t, string(h.tokens.AuthToken()), saved)

	h.settle()
	img, found := h.images.Load(h.teacher.ID)
	require.True(t, found)
	assert.Equal(t, []byte("teacher-jpeg"), img)

	persisted, err := h.store.LoadIdentity(ctx)
	require.NoError(t, err)
	assert.True(t, persisted.Equal(h.teacher))
}

func TestLogin_MultipleIdentitiesWaitsForSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.m.Login(ctx, multiEmail, password)
	require.NoError(t, err)
	assert.Nil(t, out.Selected)
	assert.Len(t, out.Identities(), 2)
	assert.Equal(t, 0, h.srv.Hits(api.PathTokenAndUser))
	assert.False(t, h.m.IsAuthenticated())

	// el auth token sólo se persiste al seleccionar
	_, found := h.secrets.LoadSecret(ctx)
	assert.False(t, found)

	sel, err := h.m.SelectIdentity(ctx, h.student.ID)
	require.NoError(t, err)
	assert.True(t, sel.Identity.Equal(h.student))
	assert.Equal(t, domain.RoleStudent, h.m.Identity().Role())
	assert.True(t, h.m.IsAuthenticated())
}

func TestLogin_ZeroIdentitiesIsUserNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.m.Login(context.Background(), emptyEmail, password)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUserNotFound))
	assert.Empty(t, h.tokens.AuthToken())
	assert.False(t, h.m.IsAuthenticated())
}

func TestLogin_ErrorMapping(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.srv.AddAccount("nuovo@scuola.it", password, false, domain.NewIdentity(domain.RoleUser, uuid.New(), "N", "U", "nuovo")))

	cases := []struct {
		email, password string
		kind            apperr.Kind
	}{
		{soloEmail, "Sbagliata1", apperr.KindInvalidCredentials},
		{"nuovo@scuola.it", password, apperr.KindEmailUnverified},
		{"nessuno@scuola.it", password, apperr.KindUserNotFound},
		{"", "", apperr.KindBadRequest},
	}
	for _, tc := range cases {
		_, err := h.m.Login(ctx, tc.email, tc.password)
		assert.Truef(t, apperr.Is(err, tc.kind), "%s: got %v", tc.email, err)
	}
}

func TestSelectIdentity_NeverAuthenticatedWithoutUserToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	events, cancel := h.m.Subscribe()
	defer cancel()

	var bad atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			if e.State.IsAuthenticated && !e.State.HasUserToken {
				bad.Add(1)
			}
		}
	}()

	_, err := h.m.Login(ctx, multiEmail, password)
	require.NoError(t, err)
	for _, id := range []uuid.UUID{h.student.ID, h.admin.ID, h.student.ID} {
		_, err := h.m.SelectIdentity(ctx, id)
		require.NoError(t, err)
		st := h.m.State()
		assert.True(t, st.IsAuthenticated)
		assert.True(t, st.HasUserToken)
	}
	h.settle()
	cancel()
	<-done
	assert.Zero(t, bad.Load())
}

func TestSelectIdentity_FailureKeepsAnonymous(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.m.Login(ctx, multiEmail, password)
	require.NoError(t, err)
	h.srv.Fail(api.PathTokenAndUser, 500, `{"success":false,"message":"boom"}`, 1)

	_, err = h.m.SelectIdentity(ctx, h.student.ID)
	assert.True(t, apperr.Is(err, apperr.KindServerError))
	assert.False(t, h.m.IsAuthenticated())
	assert.Nil(t, h.m.Identity())
	_, found := h.secrets.LoadSecret(ctx)
	assert.False(t, found)

	_, err = h.m.SelectIdentity(ctx, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindUserNotFound))
}

func TestSelectIdentity_WithoutLogin(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.SelectIdentity(context.Background(), h.student.ID)
	assert.True(t, apperr.Is(err, apperr.KindMissingToken))
	assert.Equal(t, 0, h.srv.Hits(api.PathTokenAndUser))
}

// =================================================================================
// LOGOUT
// =================================================================================

func TestLogout_ClearsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.m.Login(ctx, soloEmail, password)
	require.NoError(t, err)
	h.settle()
	require.NoError(t, h.m.SetTab(ctx, 3))
	h.center.Toast(apperr.Notification{Title: "x"})

	events, cancel := h.m.Subscribe()
	defer cancel()

	hitsBefore := len(h.srv.Paths())
	h.m.Logout(ctx)

	_, found := h.secrets.LoadSecret(ctx)
	assert.False(t, found)
	id, err := h.store.LoadIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, id)
	tab, err := h.m.Tab(ctx)
	require.NoError(t, err)
	assert.Zero(t, tab)
	_, found = h.images.Load(h.teacher.ID)
	assert.False(t, found)

	st := h.m.State()
	assert.False(t, st.IsAuthenticated)
	assert.False(t, st.HasAuthToken)
	assert.False(t, st.HasUserToken)
	assert.Nil(t, st.Identity)

	toasts, alerts := h.center.Pending()
	assert.Zero(t, toasts)
	assert.Zero(t, alerts)
	assert.Equal(t, hitsBefore, len(h.srv.Paths()), "logout no llama al server")

	select {
	case e := <-events:
		assert.Equal(t, EventLoggedOut, e.Type)
	case <-time.After(time.Second):
		t.Fatal("sin evento de logout")
	}
}

func TestLogout_AnonymousIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.secrets.SaveSecret(ctx, "stale"))

	h.m.Logout(ctx)
	_, found := h.secrets.LoadSecret(ctx)
	assert.False(t, found)
}

// blockingRemote retiene GetTokenAndUser hasta que se cierra release.
type blockingRemote struct {
	*api.Client
	entered chan struct{}
	release chan struct{}
}

func (r *blockingRemote) GetTokenAndUser(ctx context.Context, authSecret string, id uuid.UUID) (*api.TokenAndUser, error) {
	r.entered <- struct{}{}
	<-r.release
	return r.Client.GetTokenAndUser(ctx, authSecret, id)
}

func TestLogout_DuringSelectLeavesNoSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	remote := &blockingRemote{Client: h.client, entered: make(chan struct{}, 1), release: make(chan struct{})}
	m := New(Deps{Remote: remote, Tokens: h.tokens, Secrets: h.secrets, Store: h.store, Images: h.images}, Options{})
	t.Cleanup(m.Wait)

	out, err := m.Login(ctx, multiEmail, password)
	require.NoError(t, err)
	require.Nil(t, out.Selected)

	errc := make(chan error, 1)
	go func() {
		_, err := m.SelectIdentity(ctx, h.student.ID)
		errc <- err
	}()
	<-remote.entered
	m.Logout(ctx)
	close(remote.release)

	err = <-errc
	assert.True(t, apperr.Is(err, apperr.KindMissingToken))
	m.Wait()

	_, found := h.secrets.LoadSecret(ctx)
	assert.False(t, found, "el select en vuelo no debe volver a guardar el secreto")
	ident, err := h.store.LoadIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, ident)
	st := m.State()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.Identity)
	assert.False(t, st.HasAuthToken)
	assert.False(t, st.HasUserToken)

	// el próximo arranque no restaura nada
	assert.False(t, m.Reinitialize(ctx))
}

func TestPersistRefreshedAuth_OnlyForCurrentSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.m.Login(ctx, soloEmail, password)
	require.NoError(t, err)
	h.settle()
	current, found := h.secrets.LoadSecret(ctx)
	require.True(t, found)

	// un token que ya no es el vigente no pisa el guardado
	h.m.persistRefreshedAuth(ctx, token.Secret("vecchio"))
	saved, _ := h.secrets.LoadSecret(ctx)
	assert.Equal(t, current, saved)

	h.m.Logout(ctx)
	h.m.persistRefreshedAuth(ctx, token.Secret(current))
	_, found = h.secrets.LoadSecret(ctx)
	assert.False(t, found)
}

// =================================================================================
// REGISTER
// =================================================================================

func TestRegister_Created(t *testing.T) {
	h := newHarness(t)
	out, err := h.m.Register(context.Background(), domain.RegistrationData{
		Name: "Marco", Surname: "Rossi", Username: "mrossi", Email: " MRossi@Scuola.it ", Password: password,
	})
	require.NoError(t, err)
	assert.True(t, out.Created())
	assert.Equal(t, "mrossi", out.Username)
}

func TestRegister_ConflictIsRememberedClientSide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	data := domain.RegistrationData{
		Name: "Anna", Surname: "Bianchi", Username: "abianchi", Email: "altro@scuola.it", Password: password,
	}

	out, err := h.m.Register(ctx, data)
	require.NoError(t, err)
	assert.True(t, out.UsernameTaken)
	assert.False(t, out.EmailTaken)
	assert.False(t, out.Rejected)
	assert.Equal(t, 1, h.srv.Hits(api.PathRegister))

	out, err = h.m.Register(ctx, data)
	require.NoError(t, err)
	assert.True(t, out.UsernameTaken)
	assert.True(t, out.Rejected)
	assert.Equal(t, 1, h.srv.Hits(api.PathRegister), "rechazo local, sin request")

	// el username conocido tampoco se consulta
	chk, err := h.m.CheckUsername(ctx, "ABianchi")
	require.NoError(t, err)
	assert.True(t, chk.Exists)
	assert.Equal(t, 0, h.srv.Hits(api.PathCheckUsername))
}

func TestRegister_EmailAndUsernameTaken(t *testing.T) {
	h := newHarness(t)
	out, err := h.m.Register(context.Background(), domain.RegistrationData{
		Name: "Anna", Surname: "Bianchi", Username: "abianchi", Email: soloEmail, Password: password,
	})
	require.NoError(t, err)
	assert.True(t, out.UsernameTaken)
	assert.True(t, out.EmailTaken)
}

func TestRegister_GenericConflictAndErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	data := domain.RegistrationData{Name: "A", Surname: "B", Username: "ab", Email: "ab@scuola.it", Password: password}

	h.srv.Fail(api.PathRegister, 409, `{"success":false,"message":"conflitto"}`, 1)
	_, err := h.m.Register(ctx, data)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	h.srv.Fail(api.PathRegister, 500, `{"success":false,"message":"boom"}`, 1)
	_, err = h.m.Register(ctx, data)
	assert.True(t, apperr.Is(err, apperr.KindServerError))

	weak := data
	weak.Password = "corta"
	_, err = h.m.Register(ctx, weak)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

// =================================================================================
// REINIT
// =================================================================================

func (h *harness) persistSession(t *testing.T, email string, id *domain.Identity, iat time.Time) string {
	t.Helper()
	ctx := context.Background()
	secret, err := h.srv.MintAuth(email, iat)
	require.NoError(t, err)
	require.NoError(t, h.secrets.SaveSecret(ctx, secret))
	require.NoError(t, h.store.SaveIdentity(ctx, id))
	return secret
}

func TestReinitialize_NothingPersisted(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.m.Reinitialize(context.Background()))
	assert.False(t, h.m.State().IsAuthLoading)
}

func TestReinitialize_ForbiddenKeepsOptimisticState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.persistSession(t, multiEmail, h.student, time.Now())
	h.srv.Fail(api.PathAuthValid, 403, `{"success":false,"message":"vietato"}`, 1)

	require.True(t, h.m.Reinitialize(ctx))
	st := h.m.State()
	assert.True(t, st.IsAuthenticated)
	assert.True(t, st.Identity.Equal(h.student))

	h.settle()
	st = h.m.State()
	assert.False(t, st.IsAuthLoading)
	assert.True(t, st.IsAuthenticated, "no se fuerza logout")
	assert.True(t, st.HasAuthToken)

	toasts := h.center.Drain()
	require.Len(t, toasts, 1)
	assert.Equal(t, apperr.Forbidden("vietato").Notification(), toasts[0])
	assert.Equal(t, 0, h.srv.Hits(api.PathTokenAndUser))
}

func TestReinitialize_RefreshesIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	outdated := h.student.Clone()
	outdated.Name = "Vecchio"
	h.persistSession(t, multiEmail, outdated, time.Now())

	require.True(t, h.m.Reinitialize(ctx))
	h.settle()

	st := h.m.State()
	assert.False(t, st.IsAuthLoading)
	assert.True(t, st.IsAuthenticated)
	assert.True(t, st.HasUserToken)
	assert.Equal(t, "Luca", st.Identity.Name)

	persisted, err := h.store.LoadIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Luca", persisted.Name)
	assert.Empty(t, h.center.Drain())
}

func TestReinitialize_StaleAuthTokenIsRefreshedAndPersisted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := h.persistSession(t, multiEmail, h.student, time.Now().Add(-48*time.Hour))

	require.True(t, h.m.Reinitialize(ctx))
	h.settle()

	assert.Equal(t, 1, h.srv.Hits(api.PathAuthRefresh))
	saved, found := h.secrets.LoadSecret(ctx)
	require.True(t, found)
	assert.NotEqual(t, old, saved)
	assert.Equal(t, string(h.tokens.AuthToken()), saved)
}

func TestReinitialize_FreshUserTokenWaitsForAuthLoading(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.persistSession(t, multiEmail, h.student, time.Now())

	require.True(t, h.m.Reinitialize(ctx))

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s, err := h.tokens.FreshUserToken(ctx2)
	require.NoError(t, err)
	assert.NotEmpty(t, s)
	assert.False(t, h.tokens.IsAuthLoading())
}

// =================================================================================
// TOKENS
// =================================================================================

func TestRefreshAuth_ConcurrentCallsIssueOneRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.m.Login(ctx, soloEmail, password)
	require.NoError(t, err)
	before := h.tokens.AuthToken()

	release := h.srv.HoldRefreshes()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.tokens.RefreshAuth(ctx))
		}()
	}
	require.Eventually(t, func() bool { return h.srv.Hits(api.PathAuthRefresh) == 1 }, 2*time.Second, time.Millisecond)
	release()
	wg.Wait()

	assert.Equal(t, 1, h.srv.Hits(api.PathAuthRefresh))
	after := h.tokens.AuthToken()
	assert.NotEqual(t, before, after)

	// el auth token refrescado se persiste porque la sesión está confirmada
	saved, _ := h.secrets.LoadSecret(ctx)
	assert.Equal(t, string(after), saved)
}

func TestTimetable_RetriesOnceAfterUnauthorized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.m.Login(ctx, soloEmail, password)
	require.NoError(t, err)

	h.srv.SetTimetable(h.teacher.ID, &domain.Timetable{
		Entries: []domain.TimetableEntry{{ID: uuid.New(), WeekDay: time.Monday, Subjects: []domain.Subject{{ID: 1, Name: "Matematica"}}}},
	})
	h.srv.Fail(api.PathTimetable, 401, `{"success":false,"message":"scaduto"}`, 1)

	tt, err := h.m.Timetable(ctx)
	require.NoError(t, err)
	require.Len(t, tt.Entries, 1)
	assert.Equal(t, 2, h.srv.Hits(api.PathTimetable))
	assert.Equal(t, 1, h.srv.Hits(api.PathUserRefresh))
}

func TestReauthRequested_RefreshesIdentityInBackground(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.m.Login(ctx, soloEmail, password)
	require.NoError(t, err)
	h.settle()

	h.srv.UpdateIdentity(h.teacher.ID, func(i *domain.Identity) { i.Surname = "Neri" })
	h.srv.Fail(api.PathTimetable, 403, `{"success":false,"message":"aggiorna","user":{"updateToken":true}}`, 1)

	_, err = h.m.Timetable(ctx)
	require.True(t, apperr.Is(err, apperr.KindReauthRequested))
	h.classifier.Report(err)
	h.settle()

	assert.Equal(t, 2, h.srv.Hits(api.PathTokenAndUser))
	assert.Equal(t, "Neri", h.m.Identity().Surname)
}

// =================================================================================
// IMMAGINI
// =================================================================================

func TestMergeRule_ImageRemovedClearsLocal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.m.Login(ctx, soloEmail, password)
	require.NoError(t, err)
	h.settle()
	_, found := h.images.Load(h.teacher.ID)
	require.True(t, found)

	h.srv.SetImage(h.teacher.ID, nil)
	require.NoError(t, h.m.RefreshCurrentIdentity(ctx))
	h.settle()

	assert.False(t, h.m.Identity().HasProfileImage())
	_, err = os.Stat(h.images.Path(h.teacher.ID))
	assert.True(t, os.IsNotExist(err))
}

func TestSetProfileImage_UploadsAndRefreshesIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.m.Login(ctx, multiEmail, password)
	require.NoError(t, err)
	_, err = h.m.SelectIdentity(ctx, h.admin.ID)
	require.NoError(t, err)
	h.settle()
	require.False(t, h.m.Identity().HasProfileImage())

	applied, err := h.m.SetProfileImage(ctx, []byte("nuova-immagine"))
	require.NoError(t, err)
	assert.True(t, applied)
	h.settle()

	stored, found := h.srv.Image(h.admin.ID)
	require.True(t, found)
	assert.Equal(t, []byte("nuova-immagine"), stored)
	assert.True(t, h.m.Identity().HasProfileImage())
	local, found := h.images.Load(h.admin.ID)
	require.True(t, found)
	assert.Equal(t, stored, local)

	applied, err = h.m.RemoveProfileImage(ctx)
	require.NoError(t, err)
	assert.True(t, applied)
	h.settle()
	assert.False(t, h.m.Identity().HasProfileImage())
	_, found = h.srv.Image(h.admin.ID)
	assert.False(t, found)
}

func TestProfileImage_RequiresIdentity(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.SetProfileImage(context.Background(), []byte("x"))
	assert.True(t, apperr.Is(err, apperr.KindMissingToken))
	assert.False(t, h.m.IsModifyingProfileImage())
}

func TestAvailableClasses(t *testing.T) {
	h := newHarness(t)
	classes, err := h.m.AvailableClasses(context.Background())
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "5A", classes[0].Name)
}
