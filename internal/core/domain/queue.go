package domain

import "time"

// QueueMessage is the envelope the queue hands to a consumer.
type QueueMessage struct {
	ID           string    // Queue-assigned, opaque
	Body         []byte    // Serialized payload
	ReceiveCount int       // Number of deliveries including this one
	EnqueuedAt   time.Time // Original publish time
}

// DeadLetter is a message that left the live queue for good.
type DeadLetter struct {
	ID           string    // Original message ID
	Queue        string    // Queue the message was published to
	Body         []byte    // Payload as published
	ReceiveCount int       // Deliveries before it was dead-lettered
	Reason       string    // Short machine-readable reason
	Detail       string    // Error detail, truncated
	EnqueuedAt   time.Time // Original publish time
	FailedAt     time.Time // When it was dead-lettered
}

// Outcome is the per-message result reported by the batch consumer.
type Outcome int

// Processing outcomes.
const (
	OutcomeAck Outcome = iota
	OutcomeFail
	OutcomePermanentFail
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeFail:
		return "fail"
	case OutcomePermanentFail:
		return "permanent_fail"
	default:
		return "unknown"
	}
}

// Dead-letter reasons.
const (
	ReasonMaxReceiveCount       = "max_receive_count_exceeded"
	ReasonMalformedPayload      = "malformed_payload"
	ReasonContentUnavailable    = "content_unavailable"
	ReasonExtractionUnparseable = "extraction_unparseable"
	ReasonPermanent             = "permanent_error"
	ReasonConfiguration         = "configuration_error"
)

// MaxDeadLetterDetail caps the stored error detail.
const MaxDeadLetterDetail = 10000
