package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	coreerrors "github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

// Queue is a Postgres-backed queue with visibility timeouts. Claims use
// FOR UPDATE SKIP LOCKED so concurrent consumers never share a delivery.
type Queue struct {
	db              *DB
	name            string
	maxReceiveCount int
}

// NewQueue creates a queue. Messages whose receive count exceeds
// maxReceiveCount are moved to the dead_letters table.
func (db *DB) NewQueue(name string, maxReceiveCount int) *Queue {
	return &Queue{db: db, name: name, maxReceiveCount: maxReceiveCount}
}

// Publish enqueues body and returns the new message ID.
func (q *Queue) Publish(ctx context.Context, body []byte) (string, error) {
	id := uuid.New()

	if _, err := q.db.Pool.Exec(ctx, `
		INSERT INTO queue_messages (id, queue, body)
		VALUES ($1, $2, $3)
	`, id, q.name, body); err != nil {
		return "", fmt.Errorf("%w: publish message: %w", coreerrors.ErrDependencyUnavailable, err)
	}

	return id.String(), nil
}

// ReceiveBatch claims up to maxSize visible messages, oldest first. Visible
// messages already past the receive budget are dead-lettered instead of
// being delivered again.
func (q *Queue) ReceiveBatch(ctx context.Context, maxSize int, visibilityTimeout time.Duration) ([]domain.QueueMessage, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", coreerrors.ErrInvalidInput, maxSize)
	}

	var out []domain.QueueMessage

	err := pgx.BeginFunc(ctx, q.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			WITH abandoned AS (
				DELETE FROM queue_messages
				WHERE id IN (
					SELECT id FROM queue_messages
					WHERE queue = $1 AND visible_at <= now() AND receive_count > $2
					FOR UPDATE SKIP LOCKED
				)
				RETURNING id, queue, body, receive_count, last_error, enqueued_at
			)
			INSERT INTO dead_letters (id, queue, body, receive_count, reason, detail, enqueued_at)
			SELECT id, queue, body, receive_count, $3, left(last_error, $4), enqueued_at
			FROM abandoned
			ON CONFLICT (id) DO NOTHING
		`, q.name, q.maxReceiveCount, domain.ReasonMaxReceiveCount, domain.MaxDeadLetterDetail); err != nil {
			return fmt.Errorf("dead-letter abandoned messages: %w", err)
		}

		rows, err := tx.Query(ctx, `
			WITH picked AS (
				SELECT id
				FROM queue_messages
				WHERE queue = $1 AND visible_at <= now()
				ORDER BY seq
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			UPDATE queue_messages qm
			SET receive_count = qm.receive_count + 1,
				visible_at = now() + make_interval(secs => $3)
			FROM picked
			WHERE qm.id = picked.id
			RETURNING qm.id, qm.body, qm.receive_count, qm.enqueued_at, qm.seq
		`, q.name, maxSize, visibilityTimeout.Seconds())
		if err != nil {
			return fmt.Errorf("claim messages: %w", err)
		}
		defer rows.Close()

		type claimed struct {
			msg domain.QueueMessage
			seq int64
		}

		var batch []claimed

		for rows.Next() {
			var (
				id         uuid.UUID
				c          claimed
				enqueuedAt pgtype.Timestamptz
			)

			if err := rows.Scan(&id, &c.msg.Body, &c.msg.ReceiveCount, &enqueuedAt, &c.seq); err != nil {
				return fmt.Errorf("scan claimed message: %w", err)
			}

			c.msg.ID = id.String()
			c.msg.EnqueuedAt = fromTimestamptz(enqueuedAt)
			batch = append(batch, c)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate claimed messages: %w", err)
		}

		sort.Slice(batch, func(i, j int) bool { return batch[i].seq < batch[j].seq })

		out = make([]domain.QueueMessage, 0, len(batch))
		for _, c := range batch {
			out = append(out, c.msg)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: receive batch: %w", coreerrors.ErrDependencyUnavailable, err)
	}

	return out, nil
}

// Ack deletes a message for good.
func (q *Queue) Ack(ctx context.Context, id string) error {
	msgID, err := parseMessageID(id)
	if err != nil {
		return err
	}

	tag, err := q.db.Pool.Exec(ctx, `DELETE FROM queue_messages WHERE id = $1 AND queue = $2`, msgID, q.name)
	if err != nil {
		return fmt.Errorf("%w: ack %s: %w", coreerrors.ErrDependencyUnavailable, id, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ack %s: %w", id, coreerrors.ErrMessageNotFound)
	}

	return nil
}

// Fail records cause and leaves the message hidden until its visibility
// timeout elapses. Messages past the receive budget are dead-lettered.
func (q *Queue) Fail(ctx context.Context, id, cause string) error {
	msgID, err := parseMessageID(id)
	if err != nil {
		return err
	}

	cause = truncateRunes(SanitizeUTF8(cause), domain.MaxDeadLetterDetail)

	err = pgx.BeginFunc(ctx, q.db.Pool, func(tx pgx.Tx) error {
		var receiveCount int

		err := tx.QueryRow(ctx, `
			UPDATE queue_messages SET last_error = $3
			WHERE id = $1 AND queue = $2
			RETURNING receive_count
		`, msgID, q.name, cause).Scan(&receiveCount)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("fail %s: %w", id, coreerrors.ErrMessageNotFound)
		}

		if err != nil {
			return fmt.Errorf("%w: fail %s: %w", coreerrors.ErrDependencyUnavailable, id, err)
		}

		if receiveCount <= q.maxReceiveCount {
			return nil
		}

		return moveToDead(ctx, tx, msgID, q.name, domain.ReasonMaxReceiveCount, cause)
	})
	if err != nil {
		return fmt.Errorf("fail message: %w", err)
	}

	return nil
}

// DeadLetter moves a message to the dead_letters table immediately.
func (q *Queue) DeadLetter(ctx context.Context, id, reason, detail string) error {
	msgID, err := parseMessageID(id)
	if err != nil {
		return err
	}

	detail = truncateRunes(SanitizeUTF8(detail), domain.MaxDeadLetterDetail)

	return moveToDead(ctx, q.db.Pool, msgID, q.name, reason, detail)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func moveToDead(ctx context.Context, conn rowQuerier, id uuid.UUID, queue, reason, detail string) error {
	var moved uuid.UUID

	err := conn.QueryRow(ctx, `
		WITH moved AS (
			DELETE FROM queue_messages WHERE id = $1 AND queue = $2
			RETURNING id, queue, body, receive_count, enqueued_at
		)
		INSERT INTO dead_letters (id, queue, body, receive_count, reason, detail, enqueued_at)
		SELECT id, queue, body, receive_count, $3, $4, enqueued_at FROM moved
		ON CONFLICT (id) DO UPDATE
		SET body = EXCLUDED.body,
			receive_count = EXCLUDED.receive_count,
			reason = EXCLUDED.reason,
			detail = EXCLUDED.detail,
			failed_at = now()
		RETURNING id
	`, id, queue, reason, detail).Scan(&moved)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("dead-letter %s: %w", id, coreerrors.ErrMessageNotFound)
	}

	if err != nil {
		return fmt.Errorf("%w: dead-letter %s: %w", coreerrors.ErrDependencyUnavailable, id, err)
	}

	return nil
}

// ListDeadLetters returns dead letters, most recent first.
func (q *Queue) ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	if limit <= 0 {
		limit = defaultDeadLetterLimit
	}

	rows, err := q.db.Pool.Query(ctx, `
		SELECT id, queue, body, receive_count, reason, detail, enqueued_at, failed_at
		FROM dead_letters
		WHERE queue = $1
		ORDER BY failed_at DESC
		LIMIT $2
	`, q.name, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list dead letters: %w", coreerrors.ErrDependencyUnavailable, err)
	}
	defer rows.Close()

	var out []domain.DeadLetter

	for rows.Next() {
		var (
			id                   uuid.UUID
			d                    domain.DeadLetter
			enqueuedAt, failedAt pgtype.Timestamptz
		)

		if err := rows.Scan(&id, &d.Queue, &d.Body, &d.ReceiveCount, &d.Reason, &d.Detail, &enqueuedAt, &failedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}

		d.ID = id.String()
		d.EnqueuedAt = fromTimestamptz(enqueuedAt)
		d.FailedAt = fromTimestamptz(failedAt)
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}

	return out, nil
}

// Redrive returns a dead letter to the live queue with a fresh receive count.
func (q *Queue) Redrive(ctx context.Context, id string) error {
	msgID, err := parseMessageID(id)
	if err != nil {
		return err
	}

	var redriven uuid.UUID

	err = q.db.Pool.QueryRow(ctx, `
		WITH dead AS (
			DELETE FROM dead_letters WHERE id = $1 AND queue = $2
			RETURNING id, queue, body, enqueued_at
		)
		INSERT INTO queue_messages (id, queue, body, receive_count, visible_at, enqueued_at)
		SELECT id, queue, body, 0, now(), enqueued_at FROM dead
		RETURNING id
	`, msgID, q.name).Scan(&redriven)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("redrive %s: %w", id, coreerrors.ErrMessageNotFound)
	}

	if err != nil {
		return fmt.Errorf("%w: redrive %s: %w", coreerrors.ErrDependencyUnavailable, id, err)
	}

	return nil
}

func parseMessageID(id string) (uuid.UUID, error) {
	msgID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("message %q: %w", id, coreerrors.ErrMessageNotFound)
	}

	return msgID, nil
}
