// Package memory provides in-process backends for single-process runs and tests.
// Each store serializes its own operations, which gives the same atomicity the
// Postgres backends get from row locks.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

// ErrMessageNotFound is returned for unknown or already settled message IDs.
var ErrMessageNotFound = errors.ErrMessageNotFound

type queuedMessage struct {
	id           string
	body         []byte
	receiveCount int
	visibleAt    time.Time
	enqueuedAt   time.Time
	lastError    string
	seq          int64
}

// Queue is an in-process queue with visibility timeouts and a dead-letter list.
type Queue struct {
	name            string
	maxReceiveCount int
	now             func() time.Time

	mu       sync.Mutex
	seq      int64
	messages map[string]*queuedMessage
	dead     map[string]domain.DeadLetter
}

// NewQueue creates a queue that dead-letters messages after maxReceiveCount failed deliveries.
func NewQueue(name string, maxReceiveCount int) *Queue {
	return &Queue{
		name:            name,
		maxReceiveCount: maxReceiveCount,
		now:             time.Now,
		messages:        make(map[string]*queuedMessage),
		dead:            make(map[string]domain.DeadLetter),
	}
}

// SetClock replaces the time source.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.now = now
}

// Publish enqueues body and returns the new message ID.
func (q *Queue) Publish(_ context.Context, body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.seq++
	id := uuid.NewString()
	q.messages[id] = &queuedMessage{
		id:         id,
		body:       append([]byte(nil), body...),
		visibleAt:  now,
		enqueuedAt: now,
		seq:        q.seq,
	}

	return id, nil
}

// ReceiveBatch delivers up to maxSize visible messages, oldest first.
func (q *Queue) ReceiveBatch(_ context.Context, maxSize int, visibilityTimeout time.Duration) ([]domain.QueueMessage, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", errors.ErrInvalidInput, maxSize)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()

	visible := make([]*queuedMessage, 0, len(q.messages))
	for _, m := range q.messages {
		if m.visibleAt.After(now) {
			continue
		}

		// Abandoned past its budget without an explicit Fail.
		if m.receiveCount > q.maxReceiveCount {
			q.moveToDeadLocked(m, domain.ReasonMaxReceiveCount, m.lastError)

			continue
		}

		visible = append(visible, m)
	}

	sort.Slice(visible, func(i, j int) bool { return visible[i].seq < visible[j].seq })

	if len(visible) > maxSize {
		visible = visible[:maxSize]
	}

	out := make([]domain.QueueMessage, 0, len(visible))
	for _, m := range visible {
		m.receiveCount++
		m.visibleAt = now.Add(visibilityTimeout)
		out = append(out, domain.QueueMessage{
			ID:           m.id,
			Body:         append([]byte(nil), m.body...),
			ReceiveCount: m.receiveCount,
			EnqueuedAt:   m.enqueuedAt,
		})
	}

	return out, nil
}

// Ack removes a message for good.
func (q *Queue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.messages[id]; !ok {
		return fmt.Errorf("ack %s: %w", id, ErrMessageNotFound)
	}

	delete(q.messages, id)

	return nil
}

// Fail records cause and leaves the message hidden until its visibility timeout
// elapses. Messages past the receive budget are dead-lettered instead.
func (q *Queue) Fail(_ context.Context, id, cause string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.messages[id]
	if !ok {
		return fmt.Errorf("fail %s: %w", id, ErrMessageNotFound)
	}

	m.lastError = cause

	if m.receiveCount > q.maxReceiveCount {
		q.moveToDeadLocked(m, domain.ReasonMaxReceiveCount, cause)
	}

	return nil
}

// DeadLetter moves a message to the dead-letter list immediately.
func (q *Queue) DeadLetter(_ context.Context, id, reason, detail string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.messages[id]
	if !ok {
		return fmt.Errorf("dead-letter %s: %w", id, ErrMessageNotFound)
	}

	q.moveToDeadLocked(m, reason, detail)

	return nil
}

// ListDeadLetters returns dead letters, most recent first.
func (q *Queue) ListDeadLetters(_ context.Context, limit int) ([]domain.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.DeadLetter, 0, len(q.dead))
	for _, d := range q.dead {
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// Redrive returns a dead letter to the live queue with a fresh receive count.
func (q *Queue) Redrive(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	d, ok := q.dead[id]
	if !ok {
		return fmt.Errorf("redrive %s: %w", id, ErrMessageNotFound)
	}

	delete(q.dead, id)

	q.seq++
	q.messages[id] = &queuedMessage{
		id:         id,
		body:       d.Body,
		visibleAt:  q.now(),
		enqueuedAt: d.EnqueuedAt,
		seq:        q.seq,
	}

	return nil
}

// Len returns the number of live messages, visible or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.messages)
}

func (q *Queue) moveToDeadLocked(m *queuedMessage, reason, detail string) {
	delete(q.messages, m.id)

	if len(detail) > domain.MaxDeadLetterDetail {
		detail = detail[:domain.MaxDeadLetterDetail]
	}

	q.dead[m.id] = domain.DeadLetter{
		ID:           m.id,
		Queue:        q.name,
		Body:         m.body,
		ReceiveCount: m.receiveCount,
		Reason:       reason,
		Detail:       detail,
		EnqueuedAt:   m.enqueuedAt,
		FailedAt:     q.now(),
	}
}
