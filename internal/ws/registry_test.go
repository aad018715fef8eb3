package ws_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/ws"
)

// fakeSub is an in-memory Subscriber with a bounded queue.
type fakeSub struct {
	id     string
	userID string
	queue  chan []byte

	mu         sync.Mutex
	terminated []domain.Code
}

func newFakeSub(id, userID string, capacity int) *fakeSub {
	return &fakeSub{id: id, userID: userID, queue: make(chan []byte, capacity)}
}

func (f *fakeSub) ID() string     { return f.id }
func (f *fakeSub) UserID() string { return f.userID }

func (f *fakeSub) Enqueue(frame []byte) bool {
	select {
	case f.queue <- frame:
		return true
	default:
		return false
	}
}

func (f *fakeSub) Terminate(code domain.Code) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, code)
}

func (f *fakeSub) terminations() []domain.Code {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Code(nil), f.terminated...)
}

// drain decodes everything queued so far.
func (f *fakeSub) drain(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case raw := <-f.queue:
			var m map[string]any
			require.NoError(t, json.Unmarshal(raw, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

type testEvent struct {
	Type string `json:"type"`
	Seq  string `json:"seq"`
}

func event(seq string) testEvent {
	return testEvent{Type: "test_event", Seq: seq}
}

func seqs(frames []map[string]any) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f["seq"].(string))
	}
	return out
}

func TestRegistryBroadcast(t *testing.T) {
	t.Run("RoomScoped", func(t *testing.T) {
		r := ws.NewRegistry(zerolog.Nop())
		a := newFakeSub("conn-a", "alice", 8)
		b := newFakeSub("conn-b", "bob", 8)
		c := newFakeSub("conn-c", "cara", 8)
		r.Join("conv-1", a)
		r.Join("conv-1", b)
		r.Join("conv-2", c)

		r.Broadcast("conv-1", event("m1"))

		assert.Equal(t, []string{"m1"}, seqs(a.drain(t)))
		assert.Equal(t, []string{"m1"}, seqs(b.drain(t)))
		assert.Empty(t, c.drain(t))
	})

	t.Run("MissingRoomIsNoOp", func(t *testing.T) {
		r := ws.NewRegistry(zerolog.Nop())
		r.Broadcast("nowhere", event("m1"))
	})

	t.Run("ExceptSkipsAuthor", func(t *testing.T) {
		r := ws.NewRegistry(zerolog.Nop())
		a := newFakeSub("conn-a", "alice", 8)
		b := newFakeSub("conn-b", "bob", 8)
		r.Join("conv-1", a)
		r.Join("conv-1", b)

		r.BroadcastExcept("conv-1", "conn-a", event("typing"))

		assert.Empty(t, a.drain(t))
		assert.Equal(t, []string{"typing"}, seqs(b.drain(t)))
	})

	t.Run("RejoinDeliversOnce", func(t *testing.T) {
		r := ws.NewRegistry(zerolog.Nop())
		a := newFakeSub("conn-a", "alice", 8)
		r.Join("conv-1", a)
		r.Join("conv-1", a)

		r.Broadcast("conv-1", event("m1"))

		assert.Equal(t, []string{"m1"}, seqs(a.drain(t)))
	})
}

func TestRegistryMembership(t *testing.T) {
	t.Run("LeaveStopsDelivery", func(t *testing.T) {
		r := ws.NewRegistry(zerolog.Nop())
		a := newFakeSub("conn-a", "alice", 8)
		b := newFakeSub("conn-b", "bob", 8)
		r.Join("conv-1", a)
		r.Join("conv-1", b)

		r.Leave("conv-1", a)
		r.Broadcast("conv-1", event("m1"))

		assert.Empty(t, a.drain(t))
		assert.Equal(t, []string{"m1"}, seqs(b.drain(t)))
	})

	t.Run("LeaveUnknownRoomIsNoOp", func(t *testing.T) {
		r := ws.NewRegistry(zerolog.Nop())
		r.Leave("nowhere", newFakeSub("conn-a", "alice", 8))
	})

	t.Run("LeaveAllDropsEveryRoom", func(t *testing.T) {
		r := ws.NewRegistry(zerolog.Nop())
		a := newFakeSub("conn-a", "alice", 8)
		b := newFakeSub("conn-b", "bob", 8)
		r.Join("conv-1", a)
		r.Join("conv-2", a)
		r.Join("conv-1", b)

		r.LeaveAll(a)
		r.LeaveAll(a) // idempotent
		r.Broadcast("conv-1", event("m1"))
		r.Broadcast("conv-2", event("m2"))

		assert.Empty(t, a.drain(t))
		assert.Equal(t, []string{"m1"}, seqs(b.drain(t)))
	})

	t.Run("DetachUserDropsOnlyThatRoom", func(t *testing.T) {
		r := ws.NewRegistry(zerolog.Nop())
		a := newFakeSub("conn-a", "alice", 8)
		b1 := newFakeSub("conn-b1", "bob", 8)
		b2 := newFakeSub("conn-b2", "bob", 8)
		r.Join("conv-1", a)
		r.Join("conv-1", b1)
		r.Join("conv-1", b2)
		r.Join("conv-2", b1)

		r.DetachUser("conv-1", "bob")
		r.Broadcast("conv-1", event("m1"))
		r.Broadcast("conv-2", event("m2"))

		assert.Equal(t, []string{"m1"}, seqs(a.drain(t)))
		assert.Equal(t, []string{"m2"}, seqs(b1.drain(t)))
		assert.Empty(t, b2.drain(t))
		assert.Empty(t, b1.terminations(), "detach must not close the connection")
	})
}

func TestSlowConsumerEviction(t *testing.T) {
	r := ws.NewRegistry(zerolog.Nop())
	slow := newFakeSub("conn-slow", "snail", 1)
	healthy := newFakeSub("conn-ok", "hare", 8)
	r.Join("conv-1", slow)
	r.Join("conv-1", healthy)
	r.Join("conv-2", slow)

	r.Broadcast("conv-1", event("m1"))
	r.Broadcast("conv-1", event("m2")) // overflows slow's queue

	require.Equal(t, []domain.Code{domain.CodeSlowConsumer}, slow.terminations())
	assert.Equal(t, []string{"m1", "m2"}, seqs(healthy.drain(t)),
		"healthy subscriber is unaffected")

	// The evicted subscriber is gone from every room, not just the noisy one.
	r.Broadcast("conv-2", event("m3"))
	assert.Equal(t, []string{"m1"}, seqs(slow.drain(t)))
}

func TestBroadcastOrdering(t *testing.T) {
	t.Run("SubscribersAgreeOnOrder", func(t *testing.T) {
		r := ws.NewRegistry(zerolog.Nop())
		a := newFakeSub("conn-a", "alice", 256)
		b := newFakeSub("conn-b", "bob", 256)
		r.Join("conv-1", a)
		r.Join("conv-1", b)

		var wg sync.WaitGroup
		for _, writer := range []string{"w1", "w2"} {
			wg.Add(1)
			go func(prefix string) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					r.Broadcast("conv-1", event(fmt.Sprintf("%s-%02d", prefix, i)))
				}
			}(writer)
		}
		wg.Wait()

		gotA := seqs(a.drain(t))
		gotB := seqs(b.drain(t))
		require.Len(t, gotA, 100)
		assert.Equal(t, gotA, gotB, "every subscriber observes one interleaving")
	})

	t.Run("DeliveryKeepsUpDuringChurn", func(t *testing.T) {
		r := ws.NewRegistry(zerolog.Nop())
		stable := newFakeSub("conn-stable", "alice", 256)
		r.Join("conv-1", stable)

		done := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				sub := newFakeSub(fmt.Sprintf("conn-churn-%d", n), "churner", 4)
				for {
					select {
					case <-done:
						return
					default:
						r.Join("conv-1", sub)
						r.Leave("conv-1", sub)
					}
				}
			}(i)
		}

		for i := 0; i < 100; i++ {
			r.Broadcast("conv-1", event(fmt.Sprintf("m-%03d", i)))
		}
		close(done)
		wg.Wait()

		got := seqs(stable.drain(t))
		require.Len(t, got, 100, "a subscriber that never leaves misses nothing")
		assert.Equal(t, "m-000", got[0])
		assert.Equal(t, "m-099", got[99])
	})
}
