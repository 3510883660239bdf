package registry

import (
	"sync"
	"testing"
)

// stubConn counts Close calls and accepts every Send.
type stubConn struct {
	mu     sync.Mutex
	closed int
}

func (c *stubConn) Send(v any) error { return nil }

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *stubConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestAttachDetachMembership(t *testing.T) {
	r := New()
	a, b := &stubConn{}, &stubConn{}

	r.Attach("alice", a)
	r.Attach("bob", b)
	r.Detach("alice")

	got := r.Usernames()
	if len(got) != 1 || got[0] != "bob" {
		t.Fatalf("Usernames() = %v, want [bob]", got)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestDetachAbsentIsNoOp(t *testing.T) {
	r := New()
	r.Detach("ghost") // must not panic
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestAttachSupersedes(t *testing.T) {
	r := New()
	first, second := &stubConn{}, &stubConn{}

	r.Attach("alice", first)
	r.Attach("alice", second)

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	conn, ok := r.Get("alice")
	if !ok || conn != Conn(second) {
		t.Fatalf("Get(alice) returned the superseded connection")
	}
	if first.closeCount() != 1 {
		t.Fatalf("superseded connection closed %d times, want 1", first.closeCount())
	}
	if second.closeCount() != 0 {
		t.Fatalf("live connection was closed")
	}
}

func TestDetachConnIgnoresSupersededEntry(t *testing.T) {
	r := New()
	first, second := &stubConn{}, &stubConn{}

	r.Attach("alice", first)
	r.Attach("alice", second)

	// The superseded connection's cleanup must not evict its replacement.
	if r.DetachConn("alice", first) {
		t.Fatalf("DetachConn removed an entry it no longer owns")
	}
	if !r.Contains("alice") {
		t.Fatalf("replacement entry was evicted")
	}
	if !r.DetachConn("alice", second) {
		t.Fatalf("DetachConn failed to remove the live entry")
	}
	if r.Contains("alice") {
		t.Fatalf("entry survived DetachConn")
	}
}

func TestAllSnapshotIsStable(t *testing.T) {
	r := New()
	r.Attach("alice", &stubConn{})
	r.Attach("bob", &stubConn{})

	snapshot := r.All()
	r.Detach("alice")
	r.Detach("bob")

	if len(snapshot) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snapshot))
	}
	if snapshot[0].Username != "alice" || snapshot[1].Username != "bob" {
		t.Fatalf("snapshot order = %v, want insertion order", []string{snapshot[0].Username, snapshot[1].Username})
	}
}

func TestConcurrentAttachDetach(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	names := []string{"a", "b", "c", "d", "e"}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := names[i%len(names)]
			r.Attach(name, &stubConn{})
			_ = r.All()
			_, _ = r.Get(name)
			r.Detach(name)
		}(i)
	}
	wg.Wait()
}
