package profileimage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/voci/internal/api"
	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/token"
)

type fakeRemote struct {
	mu       sync.Mutex
	gets     int32
	uploaded []byte
	deletes  int32
	image    []byte
	scopes   []api.Scope
	secrets  []string

	uploadErr error
	deleteErr error
	block     chan struct{}
}

func (f *fakeRemote) ProfileImage(ctx context.Context, s api.Scope, secret string, id uuid.UUID) ([]byte, error) {
	atomic.AddInt32(&f.gets, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, s)
	f.secrets = append(f.secrets, secret)
	return f.image, nil
}

func (f *fakeRemote) UploadProfileImage(ctx context.Context, userSecret string, jpeg []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded = append([]byte(nil), jpeg...)
	return nil
}

func (f *fakeRemote) DeleteProfileImage(ctx context.Context, userSecret string) error {
	atomic.AddInt32(&f.deletes, 1)
	return f.deleteErr
}

type fakeTokens struct {
	auth token.Secret
	user token.Secret
}

func (t fakeTokens) AuthToken() token.Secret { return t.auth }
func (t fakeTokens) FreshUserToken(context.Context) (token.Secret, error) {
	if t.user == "" {
		return "", apperr.MissingToken("user")
	}
	return t.user, nil
}

func newPipeline(t *testing.T, r *fakeRemote, max int) *Pipeline {
	t.Helper()
	p, err := New(r, fakeTokens{auth: "auth-secret", user: "user-secret"}, Options{Dir: t.TempDir(), MaxBytes: max})
	require.NoError(t, err)
	return p
}

func identityWithImage() *domain.Identity {
	id := domain.NewIdentity(domain.RoleTeacher, uuid.New(), "Anna", "Bianchi", "abianchi")
	img := uuid.New()
	id.ProfileImageID = &img
	return id
}

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFetch_NoImageMakesNoCallAndClearsLocal(t *testing.T) {
	r := &fakeRemote{}
	p := newPipeline(t, r, 0)
	id := domain.NewIdentity(domain.RoleStudent, uuid.New(), "Luca", "Verdi", "lverdi")

	require.NoError(t, os.WriteFile(p.Path(id.ID), []byte("old"), 0o644))

	assert.False(t, p.IsFetching(id.ID))
	require.NoError(t, p.Fetch(context.Background(), id, api.ScopeUser))
	assert.False(t, p.IsFetching(id.ID))

	assert.Equal(t, int32(0), atomic.LoadInt32(&r.gets))
	_, ok := p.Load(id.ID)
	assert.False(t, ok)
}

func TestFetch_ScopeChoosesSecret(t *testing.T) {
	r := &fakeRemote{image: []byte("jpeg-bytes")}
	p := newPipeline(t, r, 0)
	id := identityWithImage()

	require.NoError(t, p.Fetch(context.Background(), id, api.ScopeAuth))
	require.NoError(t, p.Fetch(context.Background(), id, api.ScopeUser))

	assert.Equal(t, []api.Scope{api.ScopeAuth, api.ScopeUser}, r.scopes)
	assert.Equal(t, []string{"auth-secret", "user-secret"}, r.secrets)

	b, ok := p.Load(id.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg-bytes"), b)
}

func TestFetch_ReentrantCallReturnsImmediately(t *testing.T) {
	r := &fakeRemote{image: []byte("x"), block: make(chan struct{})}
	p := newPipeline(t, r, 0)
	id := identityWithImage()

	done := make(chan error, 1)
	go func() { done <- p.Fetch(context.Background(), id, api.ScopeUser) }()

	require.Eventually(t, func() bool { return p.IsFetching(id.ID) }, time.Second, time.Millisecond)
	require.NoError(t, p.Fetch(context.Background(), id, api.ScopeUser))

	close(r.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.gets))
	assert.False(t, p.IsFetching(id.ID))
}

func TestFetch_MissingUserToken(t *testing.T) {
	r := &fakeRemote{image: []byte("x")}
	p, err := New(r, fakeTokens{auth: "a"}, Options{Dir: t.TempDir()})
	require.NoError(t, err)

	err = p.Fetch(context.Background(), identityWithImage(), api.ScopeUser)
	assert.True(t, apperr.Is(err, apperr.KindMissingToken))
	assert.Equal(t, int32(0), atomic.LoadInt32(&r.gets))
}

func TestUpload_CompressesOversizedImage(t *testing.T) {
	const max = 16 << 10
	r := &fakeRemote{}
	p := newPipeline(t, r, max)
	id := identityWithImage()

	src := noisePNG(t, 256, 256)
	require.Greater(t, len(src), max)

	ok, err := p.Upload(context.Background(), id, src)
	require.NoError(t, err)
	require.True(t, ok)

	assert.LessOrEqual(t, len(r.uploaded), max)
	local, found := p.Load(id.ID)
	require.True(t, found)
	assert.Equal(t, r.uploaded, local)
	assert.False(t, p.IsUploading(id.ID))
}

func TestUpload_SmallImageUntouched(t *testing.T) {
	r := &fakeRemote{}
	p := newPipeline(t, r, 1<<20)
	id := identityWithImage()

	ok, err := p.Upload(context.Background(), id, []byte("tiny"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("tiny"), r.uploaded)
}

func TestUpload_FailureRestoresPreviousCache(t *testing.T) {
	r := &fakeRemote{uploadErr: apperr.PayloadTooLarge("")}
	p := newPipeline(t, r, 1<<20)
	id := identityWithImage()
	require.NoError(t, os.WriteFile(p.Path(id.ID), []byte("previous"), 0o644))

	ok, err := p.Upload(context.Background(), id, []byte("new"))
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, apperr.Is(err, apperr.KindPayloadTooLarge))

	b, found := p.Load(id.ID)
	require.True(t, found)
	assert.Equal(t, []byte("previous"), b)
}

func TestUpload_RefusedWhileModifying(t *testing.T) {
	r := &fakeRemote{block: make(chan struct{})}
	p := newPipeline(t, r, 1<<20)
	id := identityWithImage()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Upload(context.Background(), id, []byte("a"))
	}()
	require.Eventually(t, func() bool { return p.IsModifying(id.ID) }, time.Second, time.Millisecond)

	ok, err := p.Upload(context.Background(), id, []byte("b"))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = p.Delete(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)

	close(r.block)
	<-done
	assert.False(t, p.IsModifying(id.ID))
	assert.Equal(t, int32(0), atomic.LoadInt32(&r.deletes))
}

func TestDelete_RemovesLocalEvenIfServerHasNoImage(t *testing.T) {
	r := &fakeRemote{deleteErr: apperr.ImageNotFound()}
	p := newPipeline(t, r, 0)
	id := identityWithImage()
	require.NoError(t, os.WriteFile(p.Path(id.ID), []byte("img"), 0o644))

	ok, err := p.Delete(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
	_, found := p.Load(id.ID)
	assert.False(t, found)
}

func TestDelete_ServerErrorKeepsLocal(t *testing.T) {
	r := &fakeRemote{deleteErr: apperr.ServerError("boom")}
	p := newPipeline(t, r, 0)
	id := identityWithImage()
	require.NoError(t, os.WriteFile(p.Path(id.ID), []byte("img"), 0o644))

	_, err := p.Delete(context.Background(), id)
	require.Error(t, err)
	_, found := p.Load(id.ID)
	assert.True(t, found)
}

func TestNilIdentityIsNoop(t *testing.T) {
	r := &fakeRemote{}
	p := newPipeline(t, r, 0)
	ctx := context.Background()

	require.NoError(t, p.Fetch(ctx, nil, api.ScopeUser))
	ok, err := p.Upload(ctx, nil, []byte("img"))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = p.Delete(ctx, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Zero(t, atomic.LoadInt32(&r.gets))
	assert.Zero(t, atomic.LoadInt32(&r.deletes))
	assert.Nil(t, r.uploaded)
}
