package queue

import (
	"testing"
	"time"

	"barberbot/app/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_PushAndReceive(t *testing.T) {
	q := NewQueue(2)
	q.Push(domain.BufferedUnit{Key: "a", Text: "one"})
	q.Push(domain.BufferedUnit{Key: "b", Text: "two"})

	first := <-q.Channel()
	second := <-q.Channel()
	assert.Equal(t, domain.ConversationKey("a"), first.Key)
	assert.Equal(t, domain.ConversationKey("b"), second.Key)
}

func TestService_PushBlocksUntilSpace(t *testing.T) {
	q := NewQueue(1)
	q.Push(domain.BufferedUnit{Key: "a"})

	pushed := make(chan struct{})
	go func() {
		q.Push(domain.BufferedUnit{Key: "b"})
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("push into a full queue must block")
	case <-time.After(20 * time.Millisecond):
	}

	<-q.Channel()

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push did not resume after the queue drained")
	}
}

func TestService_ShutdownReleasesBlockedPush(t *testing.T) {
	q := NewQueue(1)
	q.Push(domain.BufferedUnit{Key: "a"})

	pushed := make(chan struct{})
	go func() {
		q.Push(domain.BufferedUnit{Key: "b"})
		close(pushed)
	}()

	require.NoError(t, q.Shutdown())
	require.NoError(t, q.Shutdown())

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not release the blocked push")
	}

	select {
	case <-q.Done():
	default:
		t.Fatal("done channel must be closed after shutdown")
	}
}
