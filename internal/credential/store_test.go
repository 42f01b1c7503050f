package credential

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hmac-gateway/internal/common/cache"
	apperrors "hmac-gateway/internal/common/errors"
	"hmac-gateway/internal/common/logging"
	"hmac-gateway/internal/crypto"
)

type MockOrigin struct {
	mock.Mock
}

func (m *MockOrigin) Fetch(ctx context.Context, accessKey string) (*Credential, error) {
	args := m.Called(ctx, accessKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Credential), args.Error(1)
}

func testCredential() *Credential {
	return &Credential{
		ID:         7,
		ClientID:   "client-1",
		AccessKey:  "ak-1",
		Secret:     "super-secret-hmac-key",
		Status:     StatusActive,
		AllowedIPs: []string{"10.0.0.1"},
	}
}

func setupStore(t *testing.T, origin Origin) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sealer, err := crypto.NewSecretSealer("store-test-passphrase-123")
	require.NoError(t, err)

	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.ErrorLevel})
	require.NoError(t, err)

	c := cache.NewRedisCache(client, "credential:")
	return NewStore(c, origin, sealer, 5*time.Minute, logger), mr
}

func TestStore_MissPopulatesCache(t *testing.T) {
	origin := new(MockOrigin)
	origin.On("Fetch", mock.Anything, "ak-1").Return(testCredential(), nil).Once()
	store, mr := setupStore(t, origin)
	ctx := context.Background()

	cred, err := store.Resolve(ctx, "ak-1")
	require.NoError(t, err)
	assert.Equal(t, testCredential(), cred)

	require.True(t, mr.Exists("credential:ak-1"))
	assert.Equal(t, 5*time.Minute, mr.TTL("credential:ak-1"))

	// Second lookup is served by the cache.
	cred, err = store.Resolve(ctx, "ak-1")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-hmac-key", cred.Secret)
	origin.AssertExpectations(t)
}

func TestStore_SecretSealedAtRest(t *testing.T) {
	origin := new(MockOrigin)
	origin.On("Fetch", mock.Anything, "ak-1").Return(testCredential(), nil)
	store, mr := setupStore(t, origin)

	_, err := store.Resolve(context.Background(), "ak-1")
	require.NoError(t, err)

	raw, err := mr.Get("credential:ak-1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "super-secret-hmac-key")

	var cached cachedCredential
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Contains(t, cached.SealedSecret, "v1:")
	assert.Equal(t, "client-1", cached.ClientID)
}

func TestStore_TTLExpiryRefetches(t *testing.T) {
	origin := new(MockOrigin)
	origin.On("Fetch", mock.Anything, "ak-1").Return(testCredential(), nil).Twice()
	store, mr := setupStore(t, origin)
	ctx := context.Background()

	_, err := store.Resolve(ctx, "ak-1")
	require.NoError(t, err)
	mr.FastForward(6 * time.Minute)
	_, err = store.Resolve(ctx, "ak-1")
	require.NoError(t, err)

	origin.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestStore_NotFound(t *testing.T) {
	origin := new(MockOrigin)
	origin.On("Fetch", mock.Anything, "missing").Return(nil, ErrNotFound)
	store, mr := setupStore(t, origin)

	_, err := store.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("credential:missing"))
}

func TestStore_CacheFailureFailsClosed(t *testing.T) {
	origin := new(MockOrigin)
	store, mr := setupStore(t, origin)

	mr.SetError("LOADING")
	defer mr.SetError("")

	_, err := store.Resolve(context.Background(), "ak-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeUnavailable))
	origin.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestStore_OriginFailure(t *testing.T) {
	origin := new(MockOrigin)
	origin.On("Fetch", mock.Anything, "ak-1").Return(nil, apperrors.UnavailableError("down", errors.New("refused")))
	store, _ := setupStore(t, origin)

	_, err := store.Resolve(context.Background(), "ak-1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeUnavailable))
}

func TestStore_CorruptEntryIsRefetched(t *testing.T) {
	origin := new(MockOrigin)
	origin.On("Fetch", mock.Anything, "ak-1").Return(testCredential(), nil).Once()
	store, mr := setupStore(t, origin)

	require.NoError(t, mr.Set("credential:ak-1", `{"accessKey":"ak-1","sealedSecret":"v1:garbage"}`))

	cred, err := store.Resolve(context.Background(), "ak-1")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-hmac-key", cred.Secret)
	origin.AssertExpectations(t)
}

type countingOrigin struct {
	calls   int32
	release chan struct{}
}

func (o *countingOrigin) Fetch(ctx context.Context, accessKey string) (*Credential, error) {
	atomic.AddInt32(&o.calls, 1)
	<-o.release
	return testCredential(), nil
}

func TestStore_ConcurrentMissesCoalesce(t *testing.T) {
	origin := &countingOrigin{release: make(chan struct{})}
	store, _ := setupStore(t, origin)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := store.Resolve(context.Background(), "ak-1")
			assert.NoError(t, err)
			if cred != nil {
				cred.AllowedIPs[0] = "mutated"
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(origin.release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&origin.calls))
}

type blockingOrigin struct {
	started chan struct{}
	release chan struct{}
	calls   int32
}

func (o *blockingOrigin) Fetch(ctx context.Context, accessKey string) (*Credential, error) {
	if atomic.AddInt32(&o.calls, 1) == 1 {
		close(o.started)
	}
	select {
	case <-o.release:
	case <-ctx.Done():
		return nil, apperrors.UnavailableError("origin lookup aborted", ctx.Err())
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.UnavailableError("origin lookup aborted", err)
	}
	return testCredential(), nil
}

func TestStore_CallerCancellationDoesNotFailSharedLookup(t *testing.T) {
	origin := &blockingOrigin{started: make(chan struct{}), release: make(chan struct{})}
	store, mr := setupStore(t, origin)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := store.Resolve(firstCtx, "ak-1")
		firstErr <- err
	}()
	<-origin.started

	type result struct {
		cred *Credential
		err  error
	}
	second := make(chan result, 1)
	go func() {
		cred, err := store.Resolve(context.Background(), "ak-1")
		second <- result{cred, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(origin.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "super-secret-hmac-key", got.cred.Secret)
	assert.EqualValues(t, 1, atomic.LoadInt32(&origin.calls))
	assert.True(t, mr.Exists("credential:ak-1"))
}

func TestStore_OriginLookupTimesOut(t *testing.T) {
	origin := &blockingOrigin{started: make(chan struct{}), release: make(chan struct{})}
	store, _ := setupStore(t, origin)
	store.fetchTimeout = 20 * time.Millisecond

	_, err := store.Resolve(context.Background(), "ak-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeUnavailable))
}
