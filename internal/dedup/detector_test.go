package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulBabatuyi/MediaQueue/internal/queue"
)

type fakeChecker struct {
	known    map[string]bool
	batches  [][]string
	failWith error
}

func (f *fakeChecker) CheckExists(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.batches = append(f.batches, fingerprints)
	out := make(map[string]bool)
	for _, fp := range fingerprints {
		if f.known[fp] {
			out[fp] = true
		}
	}
	return out, nil
}

func ref(name string, size int64) queue.FileRef {
	return queue.FileRef{Name: name, Size: size}
}

func queuedItem(name string, size int64) *queue.Item {
	return &queue.Item{ID: "queued-" + name, File: ref(name, size)}
}

func TestCheckFlagsQueueCollisions(t *testing.T) {
	d := NewDetector(&fakeChecker{}, nil)

	queued := []*queue.Item{queuedItem("a.jpg", 100)}
	candidates := []queue.FileRef{ref("a.jpg", 100), ref("b.jpg", 200)}

	matches, err := d.Check(context.Background(), queued, candidates, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, MatchQueued, matches[0].Kind)
	assert.Equal(t, "queued-a.jpg", matches[0].QueuedID)
}

func TestCheckFlagsRemoteCollisions(t *testing.T) {
	remote := ref("stored.mp4", 9000)
	checker := &fakeChecker{known: map[string]bool{remote.Fingerprint(): true}}
	d := NewDetector(checker, nil)

	matches, err := d.Check(context.Background(), nil,
		[]queue.FileRef{remote, ref("fresh.mp4", 100)}, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, MatchRemote, matches[0].Kind)
	assert.Equal(t, "stored.mp4", matches[0].File.Name)
}

func TestCheckQueueMatchSkipsRemoteLookup(t *testing.T) {
	f := ref("a.jpg", 100)
	checker := &fakeChecker{known: map[string]bool{f.Fingerprint(): true}}
	d := NewDetector(checker, nil)

	matches, err := d.Check(context.Background(),
		[]*queue.Item{queuedItem("a.jpg", 100)},
		[]queue.FileRef{f}, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, MatchQueued, matches[0].Kind)
	assert.Empty(t, checker.batches, "no remote lookup for an in-queue match")
}

func TestCheckReportsProgressSteps(t *testing.T) {
	d := NewDetector(&fakeChecker{}, nil)

	type update struct {
		current, total int
		step           string
	}
	var updates []update
	progress := func(current, total int, step string) {
		updates = append(updates, update{current, total, step})
	}

	_, err := d.Check(context.Background(), nil,
		[]queue.FileRef{ref("a", 1), ref("b", 2)}, progress)
	require.NoError(t, err)

	require.NotEmpty(t, updates)
	assert.Equal(t, "comparing against queue", updates[0].step)
	last := updates[len(updates)-1]
	assert.Equal(t, "checking media library", last.step)
	assert.Equal(t, last.total, last.current)
}

func TestCheckBatchesRemoteLookups(t *testing.T) {
	checker := &fakeChecker{}
	d := NewDetector(checker, nil)
	d.batchSize = 2

	_, err := d.Check(context.Background(), nil, []queue.FileRef{
		ref("a", 1), ref("b", 2), ref("c", 3), ref("d", 4), ref("e", 5),
	}, nil)
	require.NoError(t, err)

	require.Len(t, checker.batches, 3)
	assert.Len(t, checker.batches[0], 2)
	assert.Len(t, checker.batches[2], 1)
}

func TestCheckPropagatesRemoteFailure(t *testing.T) {
	checker := &fakeChecker{failWith: errors.New("catalog down")}
	d := NewDetector(checker, nil)

	_, err := d.Check(context.Background(), nil, []queue.FileRef{ref("a", 1)}, nil)
	assert.ErrorContains(t, err, "catalog down")
}

func TestCheckWithoutChecker(t *testing.T) {
	d := NewDetector(nil, nil)
	matches, err := d.Check(context.Background(), nil, []queue.FileRef{ref("a", 1)}, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
