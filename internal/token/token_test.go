package token

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/voci/internal/api"
	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/metrics"
)

type fakeRemote struct {
	refreshCalls  atomic.Int32
	validateCalls atomic.Int32

	release chan struct{} // si no es nil, RefreshToken espera a que se cierre
	started chan struct{} // se cierra al entrar el primer RefreshToken
	once    sync.Once

	refreshErr  error
	validateErr error
}

func (f *fakeRemote) ValidateToken(ctx context.Context, s api.Scope, secret string) (bool, error) {
	f.validateCalls.Add(1)
	if f.validateErr != nil {
		return false, f.validateErr
	}
	return true, nil
}

func (f *fakeRemote) RefreshToken(ctx context.Context, s api.Scope, secret string) (string, error) {
	n := f.refreshCalls.Add(1)
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.release != nil {
		<-f.release
	}
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return fmt.Sprintf("%s-%s-%d", s, secret, n), nil
}

func newCoordinator(t *testing.T, r Remote) *Coordinator {
	t.Helper()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	return NewCoordinator(r, Options{Metrics: m})
}

func signed(t *testing.T, iat time.Time) Secret {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iat": iat.Unix(), "sub": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	return Secret(s)
}

func TestSecretIssuedAt(t *testing.T) {
	iat := time.Now().Add(-25 * time.Hour).Truncate(time.Second)
	s := signed(t, iat)

	got, ok := s.IssuedAt()
	require.True(t, ok)
	assert.True(t, got.Equal(iat))
	assert.True(t, s.OlderThan(24*time.Hour, time.Now()))
	assert.False(t, signed(t, time.Now()).OlderThan(24*time.Hour, time.Now()))

	_, ok = Secret("not-a-jwt").IssuedAt()
	assert.False(t, ok)
	assert.False(t, Secret("").OlderThan(time.Hour, time.Now()))
	assert.Equal(t, "***", Secret("short").Redacted())
}

func TestConcurrentRefreshAuthIssuesOneRequest(t *testing.T) {
	r := &fakeRemote{release: make(chan struct{}), started: make(chan struct{})}
	c := newCoordinator(t, r)
	c.SetAuth("a0")

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- c.RefreshAuth(context.Background())
	}()
	<-r.started

	for i := 0; i < 19; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.RefreshAuth(context.Background())
		}()
	}
	// los que llegan con el gate tomado vuelven sin esperar
	require.Eventually(t, func() bool { return len(errs) == 19 }, time.Second, 5*time.Millisecond)
	close(r.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), r.refreshCalls.Load())
	assert.Equal(t, Secret("auth-a0-1"), c.AuthToken())
	assert.False(t, c.State().AuthRefreshing)
}

func TestStaleRefreshDoesNotOverwriteNewerToken(t *testing.T) {
	r := &fakeRemote{release: make(chan struct{}), started: make(chan struct{})}
	c := newCoordinator(t, r)
	c.SetAuth("a0")

	done := make(chan error)
	go func() { done <- c.RefreshAuth(context.Background()) }()
	<-r.started

	// un login nuevo reemplaza el token mientras el refresh está en vuelo
	c.SetAuth("fresh-login")
	close(r.release)
	require.NoError(t, <-done)

	assert.Equal(t, Secret("fresh-login"), c.AuthToken())
}

func TestRefreshFailureReleasesGate(t *testing.T) {
	r := &fakeRemote{refreshErr: apperr.Forbidden("no")}
	c := newCoordinator(t, r)
	c.SetAuth("a0")

	err := c.RefreshAuth(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.False(t, c.State().AuthRefreshing)
	assert.Equal(t, Secret("a0"), c.AuthToken())

	// el gate quedó libre: un segundo intento sí sale
	_ = c.RefreshAuth(context.Background())
	assert.Equal(t, int32(2), r.refreshCalls.Load())
}

func TestRefreshValidationFailureDoesNotCommit(t *testing.T) {
	r := &fakeRemote{validateErr: apperr.Unauthorized("nope")}
	c := newCoordinator(t, r)
	c.SetAuth("a0")

	err := c.RefreshAuth(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.Equal(t, Secret("a0"), c.AuthToken())
}

func TestRefreshWithoutTokenIsMissingToken(t *testing.T) {
	c := newCoordinator(t, &fakeRemote{})
	assert.True(t, apperr.Is(c.RefreshAuth(context.Background()), apperr.KindMissingToken))
	assert.True(t, apperr.Is(c.RefreshUser(context.Background()), apperr.KindMissingToken))
}

func TestRefreshUserWaitsForAuthLoading(t *testing.T) {
	r := &fakeRemote{}
	c := newCoordinator(t, r)
	c.SetAuth("a0")
	require.NoError(t, c.SetUser("u0"))

	end, ok := c.BeginAuthLoading()
	require.True(t, ok)
	_, again := c.BeginAuthLoading()
	assert.False(t, again)

	done := make(chan error)
	go func() { done <- c.RefreshUser(context.Background()) }()

	select {
	case <-done:
		t.Fatal("RefreshUser no esperó el auth loading")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(0), r.refreshCalls.Load())

	end()
	end() // idempotente
	require.NoError(t, <-done)
	assert.Equal(t, Secret("user-u0-1"), c.UserToken())
}

func TestWaitAuthLoadingIsCancellable(t *testing.T) {
	c := newCoordinator(t, &fakeRemote{})
	end, _ := c.BeginAuthLoading()
	defer end()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitAuthLoading(ctx), context.DeadlineExceeded)
}

func TestSlotsInvariant(t *testing.T) {
	c := newCoordinator(t, &fakeRemote{})
	assert.True(t, apperr.Is(c.SetUser("u"), apperr.KindMissingToken))

	c.SetAuth("a")
	require.NoError(t, c.SetUser("u"))
	c.SetAuth("a") // mismo token: conserva el user
	assert.Equal(t, Secret("u"), c.UserToken())

	c.SetAuth("b")
	assert.Empty(t, c.UserToken())

	require.NoError(t, c.SetUser("u"))
	c.Clear()
	st := c.State()
	assert.False(t, st.HasAuth)
	assert.False(t, st.HasUser)
}

func TestFreshUserToken(t *testing.T) {
	c := newCoordinator(t, &fakeRemote{})
	_, err := c.FreshUserToken(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindMissingToken))

	c.SetAuth("a")
	require.NoError(t, c.SetUser("u"))
	end, _ := c.BeginAuthLoading()
	go func() {
		time.Sleep(20 * time.Millisecond)
		end()
	}()
	s, err := c.FreshUserToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Secret("u"), s)
}

func TestValidateDeduplicatesConcurrentChecks(t *testing.T) {
	r := &slowValidator{release: make(chan struct{})}
	c := newCoordinator(t, r)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Validate(context.Background(), Auth, "same")
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(r.release)
	wg.Wait()
	assert.Equal(t, int32(1), r.calls.Load())
}

type slowValidator struct {
	fakeRemote
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowValidator) ValidateToken(ctx context.Context, sc api.Scope, secret string) (bool, error) {
	s.calls.Add(1)
	<-s.release
	return true, nil
}

func TestRefreshIfStale(t *testing.T) {
	r := &fakeRemote{}
	c := newCoordinator(t, r)

	c.SetAuth(signed(t, time.Now()))
	tried, err := c.RefreshIfStale(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, tried)

	var persisted Secret
	c.onAuth = func(ctx context.Context, s Secret) { persisted = s }
	c.SetAuth(signed(t, time.Now().Add(-48*time.Hour)))
	tried, err = c.RefreshIfStale(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, tried)
	assert.Equal(t, int32(1), r.refreshCalls.Load())
	assert.Equal(t, c.AuthToken(), persisted)
}
