// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notifOp(method string) Operation {
	return NewNotificationOperation(method, nil, "")
}

func TestOrderQueueTrySendAndNext(t *testing.T) {
	q := NewOrderQueue(2)

	assert.True(t, q.TrySend(notifOp("a")))
	assert.True(t, q.TrySend(notifOp("b")))
	assert.False(t, q.TrySend(notifOp("c")), "queue is at capacity")

	ctx := context.Background()
	op1, ok, cancelled := q.Next(ctx)
	require.True(t, ok)
	require.False(t, cancelled)
	op2, ok, cancelled := q.Next(ctx)
	require.True(t, ok)
	require.False(t, cancelled)
	assert.Equal(t, "a", op1.Method())
	assert.Equal(t, "b", op2.Method())
}

func TestOrderQueueNextBlocksUntilAvailable(t *testing.T) {
	q := NewOrderQueue(2)

	done := make(chan Operation, 1)
	go func() {
		op, ok, cancelled := q.Next(context.Background())
		if ok && !cancelled {
			done <- op
		}
	}()

	q.TrySend(notifOp("late"))
	op := <-done
	assert.Equal(t, "late", op.Method())
}

func TestOrderQueueNextCancelledByContext(t *testing.T) {
	q := NewOrderQueue(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, cancelled := q.Next(ctx)
	assert.False(t, ok)
	assert.True(t, cancelled)
}

func TestOrderQueueRemoveRequest(t *testing.T) {
	q := NewOrderQueue(4)
	sinkA := make(ResponseSink, 1)
	sinkB := make(ResponseSink, 1)
	idA := RequestId{Str: "a", IsString: true}
	idB := RequestId{Str: "b", IsString: true}

	require.True(t, q.TrySend(NewRequestOperation(idA, "a", nil, "", sinkA)))
	require.True(t, q.TrySend(notifOp("mid")))
	require.True(t, q.TrySend(NewRequestOperation(idB, "b", nil, "", sinkB)))

	found, ok := q.RemoveRequest(idA)
	require.True(t, ok)
	assert.Equal(t, "a", found.Method)

	_, ok = q.RemoveRequest(idA)
	assert.False(t, ok, "already removed")

	remaining := q.Drain()
	require.Len(t, remaining, 2)
	assert.Equal(t, "mid", remaining[0].Method())
	assert.Equal(t, "b", remaining[1].Method())
}

func TestOrderQueueTrySendAfterClose(t *testing.T) {
	q := NewOrderQueue(1)
	q.Close()
	assert.False(t, q.TrySend(notifOp("a")))
}

func TestOrderQueueDrain(t *testing.T) {
	q := NewOrderQueue(4)
	require.True(t, q.TrySend(notifOp("a")))
	require.True(t, q.TrySend(notifOp("b")))

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "a", drained[0].Method())
	assert.Equal(t, "b", drained[1].Method())

	assert.Empty(t, q.Drain())
}

func TestOrderQueueCloseIsIdempotent(t *testing.T) {
	q := NewOrderQueue(1)
	q.Close()
	assert.NotPanics(t, func() { q.Close() })
}
