package queue

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentscout/server/internal/models"
)

func item(identity string) Item {
	return Item{Record: &models.ListingRecord{Identity: identity}, Region: "台北市"}
}

func TestNewListingQueue(t *testing.T) {
	logger := logrus.New()
	q := NewListingQueue(10, logger)
	assert.NotNil(t, q)
	assert.Equal(t, 10, q.maxSize)
	assert.False(t, q.IsClosed())

	assert.Equal(t, 1, NewListingQueue(0, nil).maxSize)
}

func TestListingQueue_PushBlocksUntilRoom(t *testing.T) {
	q := NewListingQueue(1, logrus.New())
	require.NoError(t, q.Push(context.Background(), item("1")))

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(context.Background(), item("2"))
	}()

	select {
	case <-pushed:
		t.Fatal("push should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	got := <-q.Items()
	assert.Equal(t, "1", got.Record.Identity)
	assert.NoError(t, <-pushed)
	assert.Equal(t, "2", (<-q.Items()).Record.Identity)
}

func TestListingQueue_PushContextCancelled(t *testing.T) {
	q := NewListingQueue(1, logrus.New())
	require.NoError(t, q.Push(context.Background(), item("1")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Push(ctx, item("2")), context.DeadlineExceeded)
}

func TestListingQueue_CloseWakesBlockedPush(t *testing.T) {
	q := NewListingQueue(1, logrus.New())
	require.NoError(t, q.Push(context.Background(), item("1")))

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(context.Background(), item("2"))
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, q.Close())
	assert.Equal(t, ErrQueueClosed, <-pushed)
}

func TestListingQueue_CloseDrains(t *testing.T) {
	q := NewListingQueue(10, logrus.New())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(context.Background(), item(id)))
	}

	assert.NoError(t, q.Close())
	assert.True(t, q.IsClosed())
	assert.NoError(t, q.Close())

	var ids []string
	for it := range q.Items() {
		ids = append(ids, it.Record.Identity)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, ErrQueueClosed, q.Push(context.Background(), item("d")))
}
