// Package eventbus is the in-process publish/subscribe hub. The
// service layer publishes typed events after commit; WebSocket
// sessions and internal listeners subscribe per board or globally.
package eventbus

import (
	"sync"
	"time"
)

// EventType names a domain event on the wire.
type EventType string

const (
	TaskCreated         EventType = "task:created"
	TaskUpdated         EventType = "task:updated"
	TaskMoved           EventType = "task:moved"
	TaskDeleted         EventType = "task:deleted"
	NoteAdded           EventType = "note:added"
	NoteUpdated         EventType = "note:updated"
	NoteDeleted         EventType = "note:deleted"
	TagCreated          EventType = "tag:created"
	TagUpdated          EventType = "tag:updated"
	TagDeleted          EventType = "tag:deleted"
	DependencyAdded     EventType = "dependency:added"
	DependencyRemoved   EventType = "dependency:removed"
	DependencyBlocked   EventType = "dependency:blocked"
	DependencyUnblocked EventType = "dependency:unblocked"
	SubtaskCompleted    EventType = "subtask:completed"
	PriorityChanged     EventType = "priority:changed"
	BoardCreated        EventType = "board:created"
	BoardUpdated        EventType = "board:updated"
	BoardDeleted        EventType = "board:deleted"
	BackupStarted       EventType = "backup:started"
	BackupCompleted     EventType = "backup:completed"
	BackupFailed        EventType = "backup:failed"
)

// Event is one hub message. Seq increases monotonically per board;
// Lost is set on the first event delivered after older events were
// dropped from a subscriber's queue.
type Event struct {
	Type      EventType      `json:"type"`
	BoardID   int64          `json:"board_id"`
	Seq       uint64         `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
	Lost      bool           `json:"lost,omitempty"`
}

// AllBoards subscribes to events from every board.
const AllBoards int64 = 0

// DefaultQueueSize bounds each subscriber's pending events.
const DefaultQueueSize = 256

// Subscription is one subscriber's registration. Receive events from
// C; Close to detach. C is closed when the subscription or the hub
// shuts down.
type Subscription struct {
	C chan Event

	hub     *Hub
	id      uint64
	boardID int64
	mask    map[EventType]bool

	mu     sync.Mutex
	lost   bool
	closed bool
}

// Hub fans events out to subscribers. Publishing never blocks: each
// subscriber has a bounded queue and overflow drops the oldest entry.
type Hub struct {
	queueSize int

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    map[int64]uint64
}

// New creates a hub with the given per-subscriber queue size
// (DefaultQueueSize if <= 0).
func New(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		queueSize: queueSize,
		subs:      make(map[uint64]*Subscription),
		seq:       make(map[int64]uint64),
	}
}

// Subscribe registers for events on one board (AllBoards for all),
// optionally restricted to an event-type mask. A nil or empty mask
// means all types.
func (h *Hub) Subscribe(boardID int64, types ...EventType) *Subscription {
	sub := &Subscription{
		C:       make(chan Event, h.queueSize),
		hub:     h,
		boardID: boardID,
	}
	if len(types) > 0 {
		sub.mask = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.mask[t] = true
		}
	}

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return sub
}

// Publish assigns the per-board sequence number and fans the event
// out. Fan-out happens under the hub lock so concurrent publishers on
// the same board cannot interleave deliveries out of sequence order;
// offer never blocks, so holding the lock cannot stall a publisher.
// Callers must not hold the hub lock across database work; publish
// after commit.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq[ev.BoardID]++
	ev.Seq = h.seq[ev.BoardID]
	for _, s := range h.subs {
		s.offer(ev)
	}
}

// Seq returns the last sequence number issued for a board.
func (h *Hub) Seq(boardID int64) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq[boardID]
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches every subscriber and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.shutdown()
	}
}

func (s *Subscription) wants(ev Event) bool {
	if s.boardID != AllBoards && s.boardID != ev.BoardID {
		return false
	}
	return s.mask == nil || s.mask[ev.Type]
}

// offer enqueues without blocking. On overflow the oldest pending
// event is discarded and the delivered event carries Lost.
func (s *Subscription) offer(ev Event) {
	if !s.wants(ev) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.lost {
		ev.Lost = true
	}
	select {
	case s.C <- ev:
		s.lost = false
		return
	default:
	}

	// Queue full: drop the oldest, then retry once. The consumer may
	// have raced a receive in between; losing that race just means the
	// flag carries to the next event.
	select {
	case <-s.C:
	default:
	}
	ev.Lost = true
	select {
	case s.C <- ev:
		s.lost = false
	default:
		s.lost = true
	}
}

// Close detaches the subscription from the hub and closes C.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.C)
}
