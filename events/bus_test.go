package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishFansOutToAllSubscribers(t *testing.T) {
	b := NewBus()
	ch1, unsub1 := b.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(4)
	defer unsub2()

	b.Publish("request", map[string]string{"method": "GET"})

	select {
	case ev := <-ch1:
		assert.Equal(t, "request", ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber 1")
	}

	select {
	case ev := <-ch2:
		assert.Equal(t, "request", ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber 2")
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(1)
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBus_PublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := NewBus()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish("response", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}

func TestBus_NewBusStartsEmpty(t *testing.T) {
	b := NewBus()
	require.NotNil(t, b.subs)
	assert.Len(t, b.subs, 0)
}
