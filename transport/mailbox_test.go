package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxOutOfOrder(t *testing.T) {
	m := NewMailbox()
	m.Deliver(1, 20, []float64{2})
	m.Deliver(1, 10, []float64{1})
	m.Deliver(2, 10, []float64{3})

	ctx := context.Background()
	got, err := m.Take(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, got)

	got, err = m.Take(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, got)

	got, err = m.Take(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, got)
	assert.Zero(t, m.Pending())
}

func TestMailboxBlocksUntilDelivered(t *testing.T) {
	m := NewMailbox()
	done := make(chan []float64)
	go func() {
		msg, err := m.Take(context.Background(), 0, 5)
		assert.NoError(t, err)
		done <- msg
	}()

	time.Sleep(10 * time.Millisecond)
	m.Deliver(0, 5, []float64{42})

	select {
	case msg := <-done:
		assert.Equal(t, []float64{42}, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("Take did not return")
	}
}

func TestMailboxQueuesSameTag(t *testing.T) {
	m := NewMailbox()
	m.Deliver(0, 1, []float64{1})
	m.Deliver(0, 1, []float64{2})
	assert.Equal(t, 2, m.Pending())

	first, err := m.Take(context.Background(), 0, 1)
	require.NoError(t, err)
	second, err := m.Take(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, first)
	assert.Equal(t, []float64{2}, second)
}

func TestMailboxFail(t *testing.T) {
	m := NewMailbox()
	m.Deliver(0, 1, []float64{1})
	boom := errors.New("boom")
	m.Fail(boom)
	m.Fail(errors.New("ignored"))

	_, err := m.Take(context.Background(), 0, 1)
	require.NoError(t, err)

	_, err = m.Take(context.Background(), 0, 1)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, m.Err(), boom)
}

func TestMailboxContext(t *testing.T) {
	m := NewMailbox()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Take(ctx, 0, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocal(t *testing.T) {
	var tr Transport = Local{}
	assert.Equal(t, 0, tr.Rank())
	assert.Equal(t, 1, tr.Size())
	assert.ErrorIs(t, tr.Send(context.Background(), 1, 0, nil), ErrNoPeer)
	assert.ErrorIs(t, tr.Recv(context.Background(), 1, 0, nil), ErrNoPeer)
	assert.NoError(t, tr.Close())
}

func TestCheckPeer(t *testing.T) {
	assert.NoError(t, CheckPeer(0, 3, 2))
	assert.ErrorIs(t, CheckPeer(0, 3, 0), ErrNoPeer)
	assert.ErrorIs(t, CheckPeer(0, 3, 3), ErrNoPeer)
	assert.ErrorIs(t, CheckPeer(0, 3, -1), ErrNoPeer)
}
