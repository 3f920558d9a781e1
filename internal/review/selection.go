// Package review maintains the selection set used for batch metadata
// edits over the upload queue.
package review

import "sync"

// Selection tracks selected queue item IDs. Toggle flips a single item
// and moves the range anchor; ShiftToggle selects the whole run between
// the anchor and the clicked index, matching shift-click behavior.
type Selection struct {
	mu     sync.Mutex
	ids    map[string]struct{}
	anchor int
}

func NewSelection() *Selection {
	return &Selection{
		ids:    make(map[string]struct{}),
		anchor: -1,
	}
}

// Toggle flips the item at index in the ordered id list and anchors
// future range selections there.
func (s *Selection) Toggle(ordered []string, index int) {
	if index < 0 || index >= len(ordered) {
		return
	}
	id := ordered[index]

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
	} else {
		s.ids[id] = struct{}{}
	}
	s.anchor = index
}

// ShiftToggle selects every item between the current anchor and index,
// inclusive. Without an anchor it behaves like Toggle.
func (s *Selection) ShiftToggle(ordered []string, index int) {
	if index < 0 || index >= len(ordered) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anchor < 0 || s.anchor >= len(ordered) {
		id := ordered[index]
		if _, ok := s.ids[id]; ok {
			delete(s.ids, id)
		} else {
			s.ids[id] = struct{}{}
		}
		s.anchor = index
		return
	}

	lo, hi := s.anchor, index
	if lo > hi {
		lo, hi = hi, lo
	}
	for i := lo; i <= hi; i++ {
		s.ids[ordered[i]] = struct{}{}
	}
	s.anchor = index
}

func (s *Selection) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Selected returns the selected IDs in the order given by ordered,
// skipping IDs that no longer exist in the queue.
func (s *Selection) Selected(ordered []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range ordered {
		if _, ok := s.ids[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Drop removes an id from the selection, for items removed from the
// queue.
func (s *Selection) Drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
	s.anchor = -1
}
