// Package quota checks an upload batch against the storage byte ceiling.
package quota

import "github.com/PaulBabatuyi/MediaQueue/internal/queue"

// Partition is the result of a quota check. When Fits is false, Accept
// holds the items that fit under the ceiling and Reject the rest. The
// split is greedy in queue order: earlier items win, no packing or
// reordering happens.
type Partition struct {
	Fits        bool
	Accept      []*queue.Item
	Reject      []*queue.Item
	AcceptBytes int64
	TotalBytes  int64
}

// Validate partitions items against ceilingBytes. It is deterministic:
// the same item order and ceiling always produce the same split.
func Validate(items []*queue.Item, ceilingBytes int64) Partition {
	p := Partition{}
	for _, item := range items {
		p.TotalBytes += item.File.Size
	}
	if p.TotalBytes <= ceilingBytes {
		p.Fits = true
		p.Accept = items
		p.AcceptBytes = p.TotalBytes
		return p
	}
	for _, item := range items {
		if p.AcceptBytes+item.File.Size <= ceilingBytes {
			p.Accept = append(p.Accept, item)
			p.AcceptBytes += item.File.Size
		} else {
			p.Reject = append(p.Reject, item)
		}
	}
	return p
}
