package weights

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/ceval/assets"
	"github.com/wippyai/ceval/errors"
)

const testWeights = "nn-5af11540bbfe.nnue"

type fakeFetcher struct {
	err   error
	urls  []string
	blob  []byte
	delay time.Duration
	calls atomic.Int32
	mu    sync.Mutex
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, onProgress assets.ProgressFunc) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if onProgress != nil {
		onProgress(assets.Progress{Loaded: int64(len(f.blob)), Total: int64(len(f.blob))})
		onProgress(assets.Progress{Loaded: int64(len(f.blob)), Total: int64(len(f.blob)), Done: true})
	}
	return f.blob, nil
}

type failingStore struct {
	*MemoryStore
	getErr error
	putErr error
}

func (s *failingStore) Get(ctx context.Context, version string) ([]byte, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	return s.MemoryStore.Get(ctx, version)
}

func (s *failingStore) Put(ctx context.Context, version string, blob []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryStore.Put(ctx, version, blob)
}

func bigBlob(b byte) []byte {
	return bytes.Repeat([]byte{b}, MinSize+16)
}

func newTestCache(store Store, f Fetcher, delay time.Duration) *Cache {
	return NewCache(CacheOptions{
		Store:      store,
		Fetcher:    f,
		Locator:    assets.Locator{BaseURL: "https://cdn.example.org/", Version: "sf16"},
		EvictDelay: delay,
	})
}

func TestVersion(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"nn-5af11540bbfe.nnue", "5af115"},
		{"nn-b1a57edbea57.nnue", "b1a57e"},
		{"short", "short"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Version(tt.filename), tt.filename)
	}
}

func TestCache_MissFetchesAndStores(t *testing.T) {
	store := NewMemoryStore()
	f := &fakeFetcher{blob: bigBlob(1)}
	c := newTestCache(store, f, 0)

	var progress []assets.Progress
	blob, err := c.Resolve(context.Background(), testWeights, func(p assets.Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, f.blob, blob)
	assert.NotEmpty(t, progress)
	assert.Equal(t, []string{"https://cdn.example.org/nnue/" + testWeights + "?v=5af115"}, f.urls)

	c.Flush()
	stored, ok, err := store.Get(context.Background(), "5af115")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.blob, stored)
}

func TestCache_HitSkipsFetch(t *testing.T) {
	store := NewMemoryStore()
	cached := bigBlob(7)
	require.NoError(t, store.Put(context.Background(), "5af115", cached))

	f := &fakeFetcher{blob: bigBlob(1)}
	c := newTestCache(store, f, 0)

	blob, err := c.Resolve(context.Background(), testWeights, nil)
	require.NoError(t, err)
	assert.Equal(t, cached, blob)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestCache_TruncatedEntryIsRefetched(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "5af115", make([]byte, MinSize-1)))

	f := &fakeFetcher{blob: bigBlob(3)}
	c := newTestCache(store, f, 0)

	blob, err := c.Resolve(context.Background(), testWeights, nil)
	require.NoError(t, err)
	assert.Equal(t, f.blob, blob)
	assert.Equal(t, int32(1), f.calls.Load())

	c.Flush()
	stored, _, _ := store.Get(context.Background(), "5af115")
	assert.Len(t, stored, len(f.blob))
}

func TestCache_ExactlyMinSizeIsTrusted(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "5af115", make([]byte, MinSize)))

	f := &fakeFetcher{blob: bigBlob(3)}
	c := newTestCache(store, f, 0)

	blob, err := c.Resolve(context.Background(), testWeights, nil)
	require.NoError(t, err)
	assert.Len(t, blob, MinSize)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestCache_StoreWriteFailureIsNotFatal(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), putErr: stderrors.New("disk full")}
	f := &fakeFetcher{blob: bigBlob(2)}
	c := newTestCache(store, f, 0)

	blob, err := c.Resolve(context.Background(), testWeights, nil)
	require.NoError(t, err)
	assert.Equal(t, f.blob, blob)
	c.Flush()
}

func TestCache_StoreReadFailureFallsBackToFetch(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), getErr: stderrors.New("locked")}
	f := &fakeFetcher{blob: bigBlob(2)}
	c := newTestCache(store, f, 0)

	blob, err := c.Resolve(context.Background(), testWeights, nil)
	require.NoError(t, err)
	assert.Equal(t, f.blob, blob)
	c.Flush()
}

func TestCache_FetchFailure(t *testing.T) {
	f := &fakeFetcher{err: errors.HTTPStatus("u", 404)}
	c := newTestCache(NewMemoryStore(), f, 0)

	_, err := c.Resolve(context.Background(), testWeights, nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseFetch, Kind: errors.KindHTTPStatus}))
}

func TestCache_DownloadTooSmall(t *testing.T) {
	store := NewMemoryStore()
	f := &fakeFetcher{blob: []byte("<html>not found</html>")}
	c := newTestCache(store, f, 0)

	_, err := c.Resolve(context.Background(), testWeights, nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseFetch, Kind: errors.KindTooSmall}))

	c.Flush()
	_, ok, _ := store.Get(context.Background(), "5af115")
	assert.False(t, ok, "a rejected download must not be stored")
}

func TestCache_EmptyFilename(t *testing.T) {
	c := newTestCache(NewMemoryStore(), &fakeFetcher{}, 0)
	_, err := c.Resolve(context.Background(), "", nil)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseCache, Kind: errors.KindInvalidInput}))
}

func TestCache_ConcurrentResolvesShareDownload(t *testing.T) {
	f := &fakeFetcher{blob: bigBlob(9), delay: 100 * time.Millisecond}
	c := newTestCache(NewMemoryStore(), f, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blob, err := c.Resolve(context.Background(), testWeights, nil)
			assert.NoError(t, err)
			assert.Len(t, blob, len(f.blob))
		}()
	}
	wg.Wait()
	c.Flush()

	assert.Equal(t, int32(1), f.calls.Load())
}

func TestCache_CanceledCallerDoesNotFailSharedDownload(t *testing.T) {
	f := &fakeFetcher{blob: bigBlob(4), delay: 200 * time.Millisecond}
	c := newTestCache(NewMemoryStore(), f, 0)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Resolve(ctxA, testWeights, func(assets.Progress) {})
		errA <- err
	}()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		blob []byte
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		blob, err := c.Resolve(context.Background(), testWeights, nil)
		resB <- result{blob, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelA()

	err := <-errA
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseCache, Kind: errors.KindCanceled}))

	b := <-resB
	require.NoError(t, b.err)
	assert.Len(t, b.blob, len(f.blob))
	assert.Equal(t, int32(1), f.calls.Load())
	c.Flush()
}

func TestCache_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	f := &fakeFetcher{blob: bigBlob(5)}
	c := newTestCache(store, f, 0)

	first, err := c.Resolve(context.Background(), testWeights, nil)
	require.NoError(t, err)
	c.Flush()

	second, err := c.Resolve(context.Background(), testWeights, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestCache_EvictLaterAfterDefaultDelay(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "5af115", bigBlob(1)))
	c := newTestCache(store, &fakeFetcher{}, 0)

	c.EvictLater("5af115")

	_, ok, _ := store.Get(context.Background(), "5af115")
	assert.True(t, ok, "entry must survive until the delay elapsed")

	assert.Eventually(t, func() bool {
		_, ok, _ := store.Get(context.Background(), "5af115")
		return !ok
	}, DefaultEvictDelay+time.Second, 20*time.Millisecond)
}

func TestCache_EvictLaterWaitsForPendingWrite(t *testing.T) {
	store := &slowStore{MemoryStore: NewMemoryStore(), putDelay: 80 * time.Millisecond}
	f := &fakeFetcher{blob: bigBlob(4)}
	c := newTestCache(store, f, 10*time.Millisecond)

	_, err := c.Resolve(context.Background(), testWeights, nil)
	require.NoError(t, err)
	c.EvictLater("5af115")

	time.Sleep(200 * time.Millisecond)
	_, ok, _ := store.Get(context.Background(), "5af115")
	assert.False(t, ok, "the late write must not resurrect the evicted entry")
}

type slowStore struct {
	*MemoryStore
	putDelay time.Duration
}

func (s *slowStore) Put(ctx context.Context, version string, blob []byte) error {
	time.Sleep(s.putDelay)
	return s.MemoryStore.Put(ctx, version, blob)
}
