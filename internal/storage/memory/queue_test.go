package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
)

const (
	testQueueName  = "articles"
	testVisibility = time.Minute
	testMaxReceive = 3
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(t *testing.T) (*Queue, *fakeClock) {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueue(testQueueName, testMaxReceive)
	q.SetClock(clock.now)

	return q, clock
}

func TestQueue_ReceiveHidesMessageUntilTimeout(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue(t)

	id, err := q.Publish(ctx, []byte(`{"a":1}`))
	require.NoError(t, err)

	msgs, err := q.ReceiveBatch(ctx, 5, testVisibility)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, 1, msgs[0].ReceiveCount)

	again, err := q.ReceiveBatch(ctx, 5, testVisibility)
	require.NoError(t, err)
	assert.Empty(t, again)

	clock.advance(testVisibility)

	again, err = q.ReceiveBatch(ctx, 5, testVisibility)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 2, again[0].ReceiveCount)
}

func TestQueue_AckRemovesMessage(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue(t)

	_, err := q.Publish(ctx, []byte("x"))
	require.NoError(t, err)

	msgs, err := q.ReceiveBatch(ctx, 1, testVisibility)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, msgs[0].ID))

	clock.advance(2 * testVisibility)

	msgs, err = q.ReceiveBatch(ctx, 1, testVisibility)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 0, q.Len())
	assert.ErrorIs(t, q.Ack(ctx, "missing"), ErrMessageNotFound)
}

func TestQueue_ReceiveCountAndDeadLetterAfterFailures(t *testing.T) {
	for n := 1; n <= testMaxReceive+1; n++ {
		ctx := context.Background()
		q, clock := newTestQueue(t)

		_, err := q.Publish(ctx, []byte("payload"))
		require.NoError(t, err)

		var last domain.QueueMessage

		for i := 0; i < n; i++ {
			msgs, err := q.ReceiveBatch(ctx, 1, testVisibility)
			require.NoError(t, err)
			require.Len(t, msgs, 1, "delivery %d of %d", i+1, n)

			last = msgs[0]
			require.NoError(t, q.Fail(ctx, last.ID, "boom"))
			clock.advance(testVisibility)
		}

		assert.Equal(t, n, last.ReceiveCount)

		dead, err := q.ListDeadLetters(ctx, 0)
		require.NoError(t, err)

		if n > testMaxReceive {
			require.Len(t, dead, 1, "n=%d", n)
			assert.Equal(t, domain.ReasonMaxReceiveCount, dead[0].Reason)
			assert.Equal(t, n, dead[0].ReceiveCount)
			assert.Equal(t, "boom", dead[0].Detail)
			assert.Equal(t, 0, q.Len())
		} else {
			assert.Empty(t, dead, "n=%d", n)
			assert.Equal(t, 1, q.Len())
		}
	}
}

func TestQueue_AbandonedMessageIsDeadLetteredOnReceive(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue(t)

	_, err := q.Publish(ctx, []byte("payload"))
	require.NoError(t, err)

	for i := 0; i < testMaxReceive+1; i++ {
		msgs, err := q.ReceiveBatch(ctx, 1, testVisibility)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		clock.advance(testVisibility)
	}

	msgs, err := q.ReceiveBatch(ctx, 1, testVisibility)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	dead, err := q.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, testMaxReceive+1, dead[0].ReceiveCount)
}

func TestQueue_DeadLetterAndRedrive(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	id, err := q.Publish(ctx, []byte("bad"))
	require.NoError(t, err)

	msgs, err := q.ReceiveBatch(ctx, 1, testVisibility)
	require.NoError(t, err)
	require.NoError(t, q.DeadLetter(ctx, msgs[0].ID, domain.ReasonMalformedPayload, "invalid character"))

	dead, err := q.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, testQueueName, dead[0].Queue)
	assert.Equal(t, domain.ReasonMalformedPayload, dead[0].Reason)

	require.NoError(t, q.Redrive(ctx, id))

	msgs, err = q.ReceiveBatch(ctx, 1, testVisibility)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].ReceiveCount)
	assert.Equal(t, []byte("bad"), msgs[0].Body)
}

func TestQueue_BatchSizeAndOrder(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	for _, body := range []string{"1", "2", "3"} {
		_, err := q.Publish(ctx, []byte(body))
		require.NoError(t, err)
	}

	msgs, err := q.ReceiveBatch(ctx, 2, testVisibility)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("1"), msgs[0].Body)
	assert.Equal(t, []byte("2"), msgs[1].Body)

	_, err = q.ReceiveBatch(ctx, 0, testVisibility)
	require.Error(t, err)
}
