package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PaulBabatuyi/MediaQueue/internal/queue"
)

const mb = 1024 * 1024

func items(sizes ...int64) []*queue.Item {
	out := make([]*queue.Item, 0, len(sizes))
	for i, s := range sizes {
		out = append(out, &queue.Item{
			ID:   string(rune('a' + i)),
			File: queue.FileRef{Size: s},
		})
	}
	return out
}

func TestValidateFits(t *testing.T) {
	p := Validate(items(100*mb, 200*mb), 1000*mb)
	assert.True(t, p.Fits)
	assert.Len(t, p.Accept, 2)
	assert.Empty(t, p.Reject)
	assert.Equal(t, int64(300*mb), p.AcceptBytes)
}

func TestValidateGreedyOrderPreserving(t *testing.T) {
	// 1.2x the ceiling: accept the first two, reject the third.
	p := Validate(items(400*mb, 400*mb, 400*mb), 1000*mb)
	assert.False(t, p.Fits)
	assert.Len(t, p.Accept, 2)
	assert.Len(t, p.Reject, 1)
	assert.Equal(t, "a", p.Accept[0].ID)
	assert.Equal(t, "b", p.Accept[1].ID)
	assert.Equal(t, "c", p.Reject[0].ID)
	assert.Equal(t, int64(800*mb), p.AcceptBytes)
	assert.Equal(t, int64(1200*mb), p.TotalBytes)
}

func TestValidateEarlierFilesPreferred(t *testing.T) {
	// A large early file wins over a larger total of later files.
	p := Validate(items(900*mb, 600*mb, 50*mb), 1000*mb)
	assert.False(t, p.Fits)
	assert.Equal(t, []string{"a", "c"}, ids(p.Accept))
	assert.Equal(t, []string{"b"}, ids(p.Reject))
}

func TestValidateDeterministic(t *testing.T) {
	in := items(300*mb, 500*mb, 400*mb, 100*mb)
	first := Validate(in, 1000*mb)
	for i := 0; i < 5; i++ {
		again := Validate(in, 1000*mb)
		assert.Equal(t, ids(first.Accept), ids(again.Accept))
		assert.Equal(t, ids(first.Reject), ids(again.Reject))
	}
}

func TestValidateEmptyQueue(t *testing.T) {
	p := Validate(nil, 1000*mb)
	assert.True(t, p.Fits)
	assert.Empty(t, p.Accept)
	assert.Zero(t, p.TotalBytes)
}

func ids(items []*queue.Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}
