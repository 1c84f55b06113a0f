package logbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMultipleSubscribersBothReceive(t *testing.T) {
	b := New()
	ch1, unsub1 := b.Subscribe(1)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(1)
	defer unsub2()

	b.Publish(Event{RunID: 1, Level: LevelInfo, Message: "extracting chapter1.md"})

	select {
	case e := <-ch1:
		require.Equal(t, "extracting chapter1.md", e.Message)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive event")
	}
	select {
	case e := <-ch2:
		require.Equal(t, "extracting chapter1.md", e.Message)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive event")
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Overflow the ring; Publish must never block regardless of how far
	// over capacity we push it.
	for i := 0; i < defaultBufferSize*3; i++ {
		b.Publish(Event{RunID: 1, Message: "line"})
	}

	require.Len(t, ch, defaultBufferSize)
}

func TestUnsubscribeRemovesListener(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(42)
	require.Equal(t, 1, b.SubscriberCount(42))
	unsub()
	require.Equal(t, 0, b.SubscriberCount(42))
}

func TestEventsScopedByRunID(t *testing.T) {
	b := New()
	chA, unsubA := b.Subscribe(1)
	defer unsubA()
	chB, unsubB := b.Subscribe(2)
	defer unsubB()

	b.Publish(Event{RunID: 1, Message: "for run 1"})

	select {
	case e := <-chA:
		require.Equal(t, "for run 1", e.Message)
	case <-time.After(time.Second):
		t.Fatal("subscriber of run 1 got nothing")
	}
	select {
	case <-chB:
		t.Fatal("subscriber of run 2 should not see run 1's events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTerminalCompleteEventDelivered(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(7)
	defer unsub()

	b.Publish(Event{RunID: 7, Complete: true})

	select {
	case e := <-ch:
		require.True(t, e.Complete)
	case <-time.After(time.Second):
		t.Fatal("terminal event not delivered")
	}
}
