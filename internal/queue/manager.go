package queue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrQueueFull     = errors.New("queue is full")
	ErrItemActive    = errors.New("item is mid-transfer")
	ErrItemNotFound  = errors.New("item not found")
	ErrBadTransition = errors.New("invalid status transition")
)

// Event describes a queue mutation. Item is a snapshot; mutating it has
// no effect on the queue.
type Event struct {
	Item       *Item
	Removed    bool
	QueueLen   int
	TotalBytes int64
}

// Manager owns the upload queue. It is the single writer for item state:
// the driver and the UI layer mutate items only through its methods, which
// makes the late-event and monotone-progress guarantees enforceable in one
// place.
type Manager struct {
	mu       sync.Mutex
	items    []*Item
	index    map[string]*Item  // by ID
	keys     map[string]string // (name,size) key -> item ID
	maxItems int
	onChange func(Event)
}

func NewManager(maxItems int) *Manager {
	if maxItems <= 0 {
		maxItems = 100
	}
	return &Manager{
		index:    make(map[string]*Item),
		keys:     make(map[string]string),
		maxItems: maxItems,
	}
}

// SetOnChange registers a callback invoked after every mutation, outside
// the manager lock. Only one callback is supported; the pipeline fans out.
func (m *Manager) SetOnChange(fn func(Event)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Add appends new pending items for files whose (name, size) pair is not
// already represented. Colliding files are returned as diverted, to be
// routed through duplicate resolution, never silently admitted.
func (m *Manager) Add(files []FileRef) (added []*Item, diverted []FileRef, err error) {
	var events []Event

	m.mu.Lock()
	for _, f := range files {
		if _, exists := m.keys[f.Key()]; exists {
			diverted = append(diverted, f)
			continue
		}
		if len(m.items) >= m.maxItems {
			m.mu.Unlock()
			m.emit(events)
			return added, diverted, fmt.Errorf("%w: limit is %d files", ErrQueueFull, m.maxItems)
		}
		item := &Item{
			ID:     uuid.New().String(),
			File:   f,
			Status: StatusPending,
		}
		m.items = append(m.items, item)
		m.index[item.ID] = item
		m.keys[f.Key()] = item.ID
		added = append(added, item.clone())
		events = append(events, m.eventLocked(item, false))
	}
	m.mu.Unlock()

	m.emit(events)
	return added, diverted, nil
}

// Remove deletes an item that is not mid-transfer. Uploading and paused
// items must be cancelled instead.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	item, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return ErrItemNotFound
	}
	if item.Status == StatusUploading || item.Status == StatusPaused {
		m.mu.Unlock()
		return ErrItemActive
	}
	ev := m.removeLocked(item)
	m.mu.Unlock()

	m.emit([]Event{ev})
	return nil
}

// Drop deletes an item regardless of status. It backs cancellation, which
// is terminal and removes the item; general callers use Remove.
func (m *Manager) Drop(id string) error {
	m.mu.Lock()
	item, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return ErrItemNotFound
	}
	ev := m.removeLocked(item)
	m.mu.Unlock()

	m.emit([]Event{ev})
	return nil
}

// Clear resets the queue to empty. Fails if any item is mid-transfer.
func (m *Manager) Clear() error {
	m.mu.Lock()
	for _, item := range m.items {
		if item.Status == StatusUploading || item.Status == StatusPaused {
			m.mu.Unlock()
			return ErrItemActive
		}
	}
	var events []Event
	for _, item := range m.items {
		events = append(events, Event{Item: item.clone(), Removed: true})
	}
	m.items = nil
	m.index = make(map[string]*Item)
	m.keys = make(map[string]string)
	m.mu.Unlock()

	m.emit(events)
	return nil
}

// Items returns a snapshot of the queue in insertion order.
func (m *Manager) Items() []*Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Item, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item.clone())
	}
	return out
}

func (m *Manager) Get(id string) (*Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return item.clone(), true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// TotalBytes is the quota input: the sum of all queued file sizes. It is
// derived, never persisted.
func (m *Manager) TotalBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytesLocked()
}

// NextPending returns the first pending item, preserving queue order.
func (m *Manager) NextPending() (*Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.Status == StatusPending {
			return item.clone(), true
		}
	}
	return nil, false
}

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusUploading, StatusValidationError},
	StatusUploading: {StatusPaused, StatusCompleted, StatusError},
	StatusPaused:    {StatusUploading},
	StatusError:     {StatusPending}, // manual retry re-queues the item
}

// Transition moves an item to a new status, enforcing the per-item state
// machine. Entering uploading from pending resets progress to zero; this
// is the only point at which progress may decrease.
func (m *Manager) Transition(id string, to Status) error {
	m.mu.Lock()
	item, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return ErrItemNotFound
	}
	if !transitionAllowed(item.Status, to) {
		from := item.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
	}
	if item.Status == StatusPending && to == StatusUploading {
		item.Progress = 0
	}
	if item.Status == StatusError && to == StatusPending {
		item.Err = ""
		item.Progress = 0
	}
	if to == StatusCompleted {
		item.Progress = 100
	}
	item.Status = to
	ev := m.eventLocked(item, false)
	m.mu.Unlock()

	m.emit([]Event{ev})
	return nil
}

// Fail marks an uploading item errored with a message. The item stays in
// the queue for manual retry.
func (m *Manager) Fail(id, msg string) error {
	m.mu.Lock()
	item, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return ErrItemNotFound
	}
	if !transitionAllowed(item.Status, StatusError) {
		from := item.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, StatusError)
	}
	item.Status = StatusError
	item.Err = msg
	ev := m.eventLocked(item, false)
	m.mu.Unlock()

	m.emit([]Event{ev})
	return nil
}

// Invalidate marks a pending item as failing pre-flight validation. The
// state is terminal; remediation happens outside the pipeline.
func (m *Manager) Invalidate(id, msg string) error {
	m.mu.Lock()
	item, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return ErrItemNotFound
	}
	if item.Status != StatusPending {
		from := item.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, StatusValidationError)
	}
	item.Status = StatusValidationError
	item.Err = msg
	ev := m.eventLocked(item, false)
	m.mu.Unlock()

	m.emit([]Event{ev})
	return nil
}

// SetProgress applies a progress update to an uploading item. Updates for
// items no longer uploading are dropped, which is how a cancelled or
// errored item's late-arriving events become no-ops. Decreasing values
// are dropped too, keeping per-item progress monotone.
func (m *Manager) SetProgress(id string, pct int) {
	if pct > 100 {
		pct = 100
	}
	m.mu.Lock()
	item, ok := m.index[id]
	if !ok || item.Status != StatusUploading || pct < item.Progress {
		m.mu.Unlock()
		return
	}
	item.Progress = pct
	ev := m.eventLocked(item, false)
	m.mu.Unlock()

	m.emit([]Event{ev})
}

// ApplyMetadata merges patch into each listed item's metadata as a set
// union. Unknown IDs are skipped.
func (m *Manager) ApplyMetadata(ids []string, patch Metadata) {
	var events []Event

	m.mu.Lock()
	for _, id := range ids {
		item, ok := m.index[id]
		if !ok {
			continue
		}
		item.Meta.Merge(patch)
		events = append(events, m.eventLocked(item, false))
	}
	m.mu.Unlock()

	m.emit(events)
}

func (m *Manager) removeLocked(item *Item) Event {
	delete(m.index, item.ID)
	delete(m.keys, item.File.Key())
	for i, it := range m.items {
		if it.ID == item.ID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			break
		}
	}
	ev := m.eventLocked(item, true)
	return ev
}

func (m *Manager) eventLocked(item *Item, removed bool) Event {
	return Event{
		Item:       item.clone(),
		Removed:    removed,
		QueueLen:   len(m.items),
		TotalBytes: m.totalBytesLocked(),
	}
}

func (m *Manager) totalBytesLocked() int64 {
	var total int64
	for _, item := range m.items {
		total += item.File.Size
	}
	return total
}

func (m *Manager) emit(events []Event) {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn == nil {
		return
	}
	for _, ev := range events {
		fn(ev)
	}
}

func transitionAllowed(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
