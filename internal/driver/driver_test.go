package driver

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/MediaQueue/internal/queue"
	"github.com/PaulBabatuyi/MediaQueue/internal/remote"
)

// fakeStore is an in-memory Store whose reads can be gated for
// deterministic pause/cancel tests: each send on gate allows one chunk.
type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failures int
	gate     chan struct{}
	chunk    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: make(map[string][]byte),
		chunk:   1024,
	}
}

func (s *fakeStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (*remote.PutResult, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return nil, errors.New("backend unavailable")
	}
	s.mu.Unlock()

	var data []byte
	buf := make([]byte, s.chunk)
	for {
		if s.gate != nil {
			select {
			case <-s.gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		n, err := r.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.objects[path] = data
	s.mu.Unlock()
	return &remote.PutResult{Path: path, URL: "fake://" + path}, nil
}

func (s *fakeStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "fake://" + path, nil
}

func (s *fakeStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	delete(s.objects, path)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	return data, ok
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func writeTempFile(t *testing.T, name string, size int) queue.FileRef {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	content := strings.Repeat("a", size)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return queue.FileRef{
		Path:        path,
		Name:        name,
		Size:        int64(size),
		ContentType: "text/plain",
	}
}

func newTestDriver(store remote.Store, cfg Config) (*Driver, *queue.Manager) {
	q := queue.NewManager(50)
	if cfg.UserID == "" {
		cfg.UserID = "user-1"
	}
	d := New(q, store, nil, nil, zap.NewNop(), cfg)
	return d, q
}

func TestSequentialUploadLifecycle(t *testing.T) {
	store := newFakeStore()
	d, q := newTestDriver(store, Config{})

	files := []queue.FileRef{
		writeTempFile(t, "one.txt", 4096),
		writeTempFile(t, "two.txt", 2048),
	}
	_, _, err := q.Add(files)
	require.NoError(t, err)

	// Record per-item progress to check monotonicity end to end.
	progress := make(map[string][]int)
	q.SetOnChange(func(ev queue.Event) {
		if !ev.Removed {
			progress[ev.Item.ID] = append(progress[ev.Item.ID], ev.Item.Progress)
		}
	})

	require.NoError(t, d.Run(context.Background()))

	for _, item := range q.Items() {
		assert.Equal(t, queue.StatusCompleted, item.Status)
		assert.Equal(t, 100, item.Progress)
	}
	assert.Equal(t, 2, store.count())

	for id, seq := range progress {
		for i := 1; i < len(seq); i++ {
			assert.GreaterOrEqual(t, seq[i], seq[i-1], "item %s progress must not decrease", id)
		}
	}
}

func TestPreflightSizeLimit(t *testing.T) {
	store := newFakeStore()
	d, q := newTestDriver(store, Config{
		SizeLimits: map[queue.FileType]int64{queue.FileTypeOther: 10},
	})

	big := writeTempFile(t, "big.txt", 64)
	ok := writeTempFile(t, "ok.txt", 8)
	added, _, err := q.Add([]queue.FileRef{big, ok})
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))

	first, _ := q.Get(added[0].ID)
	assert.Equal(t, queue.StatusValidationError, first.Status)
	assert.Contains(t, first.Err, "file too large")

	// The rejected file never reached the store; the valid one did.
	second, _ := q.Get(added[1].ID)
	assert.Equal(t, queue.StatusCompleted, second.Status)
	assert.Equal(t, 1, store.count())
}

func TestPreflightContentTypeMismatch(t *testing.T) {
	store := newFakeStore()
	d, q := newTestDriver(store, Config{})

	path := filepath.Join(t.TempDir(), "fake.txt")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0o644))
	added, _, err := q.Add([]queue.FileRef{{
		Path: path, Name: "fake.txt", Size: 8, ContentType: "text/plain",
	}})
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))

	item, _ := q.Get(added[0].ID)
	assert.Equal(t, queue.StatusValidationError, item.Status)
	assert.Contains(t, item.Err, "content type mismatch")
}

func TestTransferErrorDoesNotHaltQueue(t *testing.T) {
	store := newFakeStore()
	store.failures = 1
	d, q := newTestDriver(store, Config{})

	added, _, err := q.Add([]queue.FileRef{
		writeTempFile(t, "first.txt", 128),
		writeTempFile(t, "second.txt", 128),
	})
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))

	first, _ := q.Get(added[0].ID)
	assert.Equal(t, queue.StatusError, first.Status)
	assert.Contains(t, first.Err, "backend unavailable")

	second, _ := q.Get(added[1].ID)
	assert.Equal(t, queue.StatusCompleted, second.Status)

	// The errored item stays queued; Retry re-runs it.
	require.NoError(t, d.Retry(added[0].ID))
	require.NoError(t, d.Run(context.Background()))
	first, _ = q.Get(added[0].ID)
	assert.Equal(t, queue.StatusCompleted, first.Status)
}

func TestTransientFailureIsRetried(t *testing.T) {
	store := newFakeStore()
	store.failures = 1
	d, q := newTestDriver(store, Config{
		MaxRetries: 2,
		RetryBase:  time.Millisecond,
	})

	added, _, err := q.Add([]queue.FileRef{writeTempFile(t, "flaky.txt", 128)})
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))

	item, _ := q.Get(added[0].ID)
	assert.Equal(t, queue.StatusCompleted, item.Status)
}

func TestPauseResume(t *testing.T) {
	store := newFakeStore()
	store.gate = make(chan struct{})
	d, q := newTestDriver(store, Config{})

	added, _, err := q.Add([]queue.FileRef{writeTempFile(t, "clip.txt", 4096)})
	require.NoError(t, err)
	id := added[0].ID

	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(context.Background()) }()

	// Let half the file through.
	store.gate <- struct{}{}
	store.gate <- struct{}{}
	require.Eventually(t, func() bool {
		item, ok := q.Get(id)
		return ok && item.Progress >= 50
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.Pause(id))
	item, _ := q.Get(id)
	assert.Equal(t, queue.StatusPaused, item.Status)
	pausedAt := item.Progress

	// Offer another chunk; the transfer must stay parked.
	go func() { store.gate <- struct{}{} }()
	time.Sleep(50 * time.Millisecond)
	item, _ = q.Get(id)
	assert.Equal(t, queue.StatusPaused, item.Status)
	assert.Equal(t, pausedAt, item.Progress)

	require.NoError(t, d.Resume(id))
	close(store.gate)

	require.NoError(t, <-runDone)
	item, _ = q.Get(id)
	assert.Equal(t, queue.StatusCompleted, item.Status)
	assert.Equal(t, 100, item.Progress)
}

func TestCancelMidTransfer(t *testing.T) {
	store := newFakeStore()
	store.gate = make(chan struct{})
	d, q := newTestDriver(store, Config{})

	added, _, err := q.Add([]queue.FileRef{writeTempFile(t, "doomed.txt", 4096)})
	require.NoError(t, err)
	id := added[0].ID

	var evMu sync.Mutex
	var afterRemoval []queue.Event
	removed := false
	q.SetOnChange(func(ev queue.Event) {
		evMu.Lock()
		defer evMu.Unlock()
		if removed && ev.Item.ID == id {
			afterRemoval = append(afterRemoval, ev)
		}
		if ev.Removed && ev.Item.ID == id {
			removed = true
		}
	})

	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(context.Background()) }()

	store.gate <- struct{}{}
	require.Eventually(t, func() bool {
		item, ok := q.Get(id)
		return ok && item.Progress >= 25
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.Cancel(id))

	// Cancellation is terminal and removes the item.
	_, ok := q.Get(id)
	assert.False(t, ok)

	// Unblock the in-flight transfer; its late completion must not
	// resurrect or mutate the item.
	close(store.gate)
	require.NoError(t, <-runDone)

	_, ok = q.Get(id)
	assert.False(t, ok)
	evMu.Lock()
	late := len(afterRemoval)
	evMu.Unlock()
	assert.Zero(t, late, "no state updates after cancellation")
	assert.Equal(t, 0, store.count())
}

func TestCancelPendingItem(t *testing.T) {
	store := newFakeStore()
	d, q := newTestDriver(store, Config{})

	added, _, err := q.Add([]queue.FileRef{writeTempFile(t, "waiting.txt", 64)})
	require.NoError(t, err)

	require.NoError(t, d.Cancel(added[0].ID))
	assert.Equal(t, 0, q.Len())
}

func TestExplicitBatchRunsConcurrently(t *testing.T) {
	store := newFakeStore()
	d, q := newTestDriver(store, Config{Concurrency: 3})

	_, _, err := q.Add([]queue.FileRef{
		writeTempFile(t, "a.txt", 512),
		writeTempFile(t, "b.txt", 512),
		writeTempFile(t, "c.txt", 512),
	})
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))
	for _, item := range q.Items() {
		assert.Equal(t, queue.StatusCompleted, item.Status)
	}
	assert.Equal(t, 3, store.count())
}

func TestPauseUnknownItem(t *testing.T) {
	store := newFakeStore()
	d, _ := newTestDriver(store, Config{})
	assert.ErrorIs(t, d.Pause("nope"), queue.ErrItemNotFound)
	assert.ErrorIs(t, d.Resume("nope"), queue.ErrItemNotFound)
}
