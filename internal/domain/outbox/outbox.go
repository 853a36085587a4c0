package outbox

import (
	"fmt"
	"time"

	"github.com/abcretailers/retailcore/internal/domain/event"
	"github.com/google/uuid"
)

// Entry is a domain event staged for publication. Entries are written in the
// same transaction as the mutation that produced them and published by the
// worker's outbox poller.
type Entry struct {
	ID          uuid.UUID
	Queue       string
	EventID     string
	EventType   event.Type
	Body        []byte // encoded event envelope
	Status      Status
	RetryCount  int
	MaxRetries  int
	CreatedAt   time.Time
	PublishedAt *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// NewEntry stages an envelope for publication to its queue. Envelopes whose
// type has no queue are rejected here; a staged entry with an empty queue
// would fail on every poll.
func NewEntry(env *event.Envelope) (*Entry, error) {
	queueName := event.QueueFor(env.Type)
	if queueName == "" {
		return nil, fmt.Errorf("no queue for event type %q", env.Type)
	}
	body, err := env.Encode()
	if err != nil {
		return nil, err
	}
	return &Entry{
		ID:         uuid.New(),
		Queue:      queueName,
		EventID:    env.ID,
		EventType:  env.Type,
		Body:       body,
		Status:     StatusPending,
		RetryCount: 0,
		MaxRetries: 5,
		CreatedAt:  time.Now(),
	}, nil
}
