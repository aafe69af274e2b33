package debugsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/retroenv/retrogolib/assert"
)

func TestQueueFIFO(t *testing.T) {
	q := New()
	for i := range 3 {
		q.Put(NewMessage(KindSnapshot, i))
	}
	assert.Equal(t, 3, q.Len())

	for i := range 3 {
		msg := q.Get(0)
		assert.Equal(t, KindSnapshot, msg.Kind)
		assert.Equal(t, any(i), msg.Payload)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueGetTimeout(t *testing.T) {
	q := New()

	msg := q.Get(0)
	assert.Equal(t, KindTimeout, msg.Kind)

	start := time.Now()
	msg = q.Get(20 * time.Millisecond)
	assert.Equal(t, KindTimeout, msg.Kind)
	assert.True(t, time.Since(start) >= 20*time.Millisecond)
}

func TestQueueGetBlocksUntilPut(t *testing.T) {
	q := New()
	want := NewMessage(KindBlock, "payload")

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Put(want)
	}()

	msg := q.Get(-1)
	assert.Equal(t, want.ID, msg.ID)
	assert.Equal(t, KindBlock, msg.Kind)
}

func TestQueueUniqueIDs(t *testing.T) {
	const count = 100
	ids := make(chan uint64, count)

	var wg sync.WaitGroup
	for range count {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewMessage(KindSnapshot, nil).ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]struct{}{}
	for id := range ids {
		_, ok := seen[id]
		assert.False(t, ok)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, count)
}

func TestQueueConcurrentProducers(t *testing.T) {
	const producers = 4
	const perProducer = 50

	q := New()
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				q.Put(NewMessage(KindSnapshot, p*perProducer+i))
			}
		}()
	}

	received := 0
	for received < producers*perProducer {
		msg := q.Get(time.Second)
		assert.Equal(t, KindSnapshot, msg.Kind)
		received++
	}
	wg.Wait()
	assert.Equal(t, 0, q.Len())
}

func TestQueueRequestResponse(t *testing.T) {
	q := New()

	go func() {
		req := q.Get(-1)
		assert.Equal(t, KindBlock, req.Kind)
		q.RespondTo(req.ID, NewMessage(KindResume, nil))
	}()

	reply := q.Request(NewMessage(KindBlock, Listing{Entry: 0xc000}))
	assert.Equal(t, KindResume, reply.Kind)

	// replies to unknown requests are dropped
	q.RespondTo(12345, NewMessage(KindResume, nil))
	assert.Equal(t, 0, q.Len())
}

func TestQueueRequestWithoutID(t *testing.T) {
	q := New()

	go func() {
		req := q.Get(-1)
		assert.True(t, req.ID != 0)
		q.RespondTo(req.ID, Message{Kind: KindResume})
	}()

	reply := q.Request(Message{Kind: KindBlock})
	assert.Equal(t, KindResume, reply.Kind)
}

func TestQueueClose(t *testing.T) {
	q := New()
	q.Put(NewMessage(KindSnapshot, nil))

	select {
	case <-q.Done():
		t.Fatal("done channel closed before Close")
	default:
	}

	done := make(chan Message)
	go func() {
		done <- q.Request(NewMessage(KindBlock, nil))
	}()

	// drain the pending snapshot and the request before closing
	assert.Equal(t, KindSnapshot, q.Get(time.Second).Kind)
	assert.Equal(t, KindBlock, q.Get(time.Second).Kind)
	q.Close()

	reply := <-done
	assert.Equal(t, KindShutdown, reply.Kind)
	assert.Equal(t, KindShutdown, q.Get(-1).Kind)

	select {
	case <-q.Done():
	default:
		t.Fatal("done channel not closed")
	}

	q.Put(NewMessage(KindSnapshot, nil))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, KindShutdown, q.Request(NewMessage(KindBlock, nil)).Kind)
	q.Close()
}

func TestQueueContext(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.GetContext(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	_, err = q.RequestContext(ctx2, NewMessage(KindBlock, nil))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{A: 0x01, X: 0x02, Y: 0x03, SP: 0xfd, Status: 0x24, PC: 0xc000}
	assert.Equal(t, "PC:C000 A:01 X:02 Y:03 SP:FD P:24 nv-bdIzc", s.String())
	assert.True(t, s.Flag(FlagInterrupt))
	assert.False(t, s.Flag(FlagCarry))
}
