package eventbus

import (
	"sync"
	"testing"
	"time"
)

func collect(sub *Subscription, n int, timeout time.Duration) []Event {
	var out []Event
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
	return out
}

func TestPerBoardOrderingAcrossSubscribers(t *testing.T) {
	hub := New(0)
	defer hub.Close()

	a := hub.Subscribe(1)
	b := hub.Subscribe(1)

	hub.Publish(Event{Type: TaskCreated, BoardID: 1})
	hub.Publish(Event{Type: TaskUpdated, BoardID: 1})
	hub.Publish(Event{Type: TaskMoved, BoardID: 1})

	wantTypes := []EventType{TaskCreated, TaskUpdated, TaskMoved}
	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		got := collect(sub, 3, time.Second)
		if len(got) != 3 {
			t.Fatalf("%s received %d events, want 3", name, len(got))
		}
		for i, ev := range got {
			if ev.Type != wantTypes[i] {
				t.Errorf("%s event %d type = %s, want %s", name, i, ev.Type, wantTypes[i])
			}
			if ev.Seq != uint64(i+1) {
				t.Errorf("%s event %d seq = %d, want %d", name, i, ev.Seq, i+1)
			}
		}
	}
}

func TestSeqIsPerBoard(t *testing.T) {
	hub := New(0)
	defer hub.Close()

	hub.Publish(Event{Type: TaskCreated, BoardID: 1})
	hub.Publish(Event{Type: TaskCreated, BoardID: 2})
	hub.Publish(Event{Type: TaskUpdated, BoardID: 1})

	if got := hub.Seq(1); got != 2 {
		t.Errorf("board 1 seq = %d, want 2", got)
	}
	if got := hub.Seq(2); got != 1 {
		t.Errorf("board 2 seq = %d, want 1", got)
	}
}

func TestBoardScopeAndTypeMask(t *testing.T) {
	hub := New(0)
	defer hub.Close()

	boardOnly := hub.Subscribe(1)
	typed := hub.Subscribe(1, TaskMoved)
	global := hub.Subscribe(AllBoards)

	hub.Publish(Event{Type: TaskCreated, BoardID: 1})
	hub.Publish(Event{Type: TaskMoved, BoardID: 1})
	hub.Publish(Event{Type: TaskCreated, BoardID: 2})

	if got := collect(boardOnly, 2, time.Second); len(got) != 2 {
		t.Errorf("board subscriber got %d events, want 2", len(got))
	}
	got := collect(typed, 1, time.Second)
	if len(got) != 1 || got[0].Type != TaskMoved {
		t.Errorf("masked subscriber got %v, want one task:moved", got)
	}
	if got := collect(global, 3, time.Second); len(got) != 3 {
		t.Errorf("global subscriber got %d events, want 3", len(got))
	}
}

func TestOverflowDropsOldestAndFlagsLoss(t *testing.T) {
	hub := New(4)
	defer hub.Close()
	sub := hub.Subscribe(1)

	// Nobody draining: publish past the queue bound.
	for i := 0; i < 10; i++ {
		hub.Publish(Event{Type: TaskUpdated, BoardID: 1})
	}

	got := collect(sub, 4, time.Second)
	if len(got) != 4 {
		t.Fatalf("received %d events, want queue size 4", len(got))
	}
	// The oldest events were dropped; the survivors are the tail.
	if got[0].Seq != 7 || got[3].Seq != 10 {
		t.Errorf("surviving seqs = %d..%d, want 7..10", got[0].Seq, got[3].Seq)
	}
	if !got[0].Lost {
		t.Error("first delivered event after overflow not flagged lost")
	}

	// With the queue drained, delivery is clean again.
	hub.Publish(Event{Type: TaskUpdated, BoardID: 1})
	clean := collect(sub, 1, time.Second)
	if len(clean) != 1 || clean[0].Lost {
		t.Errorf("post-drain event = %+v, want unflagged", clean)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := New(2)
	defer hub.Close()
	hub.Subscribe(1) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(Event{Type: TaskUpdated, BoardID: 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := New(0)
	defer hub.Close()

	sub := hub.Subscribe(1)
	if hub.SubscriberCount() != 1 {
		t.Fatalf("subscriber count = %d, want 1", hub.SubscriberCount())
	}
	sub.Close()
	if hub.SubscriberCount() != 0 {
		t.Fatalf("subscriber count after close = %d, want 0", hub.SubscriberCount())
	}

	// Channel is closed; publish after close must not panic.
	hub.Publish(Event{Type: TaskCreated, BoardID: 1})
	if _, ok := <-sub.C; ok {
		t.Error("received event on closed subscription")
	}
}

func TestConcurrentPublishMonotonicSeq(t *testing.T) {
	hub := New(1024)
	defer hub.Close()
	sub := hub.Subscribe(1)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Publish(Event{Type: TaskUpdated, BoardID: 1})
		}()
	}
	wg.Wait()

	got := collect(sub, n, 2*time.Second)
	if len(got) != n {
		t.Fatalf("received %d events, want %d", len(got), n)
	}
	// Concurrent publishers on one board must still deliver in seq
	// order to each subscriber.
	for i, ev := range got {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d delivered with seq %d, want %d", i, ev.Seq, i+1)
		}
	}
	if hub.Seq(1) != n {
		t.Errorf("final seq = %d, want %d", hub.Seq(1), n)
	}
}
