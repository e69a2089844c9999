// Package queue wraps repository.QueueRepository with JSON payload
// marshaling and a visibility-lease based Claim/Ack/Nack contract, so
// producers and consumers never touch raw []byte.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/repository"
)

type Broker struct {
	repo repository.QueueRepository
}

func NewBroker(repo repository.QueueRepository) *Broker {
	return &Broker{repo: repo}
}

func (b *Broker) Publish(ctx context.Context, queueName string, payload any) error {
	return b.PublishAt(ctx, queueName, payload, time.Now())
}

func (b *Broker) PublishAt(ctx context.Context, queueName string, payload any, availableAt time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", queueName, err)
	}
	if _, err := b.repo.Publish(ctx, queueName, body, availableAt); err != nil {
		return fmt.Errorf("publish %s: %w", queueName, err)
	}
	return nil
}

// Lease is a claimed message plus the bookkeeping a consumer needs to
// ack/nack it — consumers never see the repository directly.
type Lease struct {
	Message *domain.QueueMessage
	broker  *Broker
}

func (b *Broker) Claim(ctx context.Context, queueName string, leaseFor time.Duration, limit int) ([]*Lease, error) {
	msgs, err := b.repo.Claim(ctx, queueName, time.Now().Add(leaseFor), limit)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", queueName, err)
	}
	leases := make([]*Lease, len(msgs))
	for i, m := range msgs {
		leases[i] = &Lease{Message: m, broker: b}
	}
	return leases, nil
}

func (l *Lease) Unmarshal(v any) error {
	return json.Unmarshal(l.Message.Payload, v)
}

func (l *Lease) Ack(ctx context.Context) error {
	return l.broker.repo.Ack(ctx, l.Message.ID)
}

// Nack schedules a redelivery at retryAt, or dead-letters the message when
// the caller has decided no further attempt is warranted.
func (l *Lease) Nack(ctx context.Context, retryAt time.Time, deadLetter bool) error {
	return l.broker.repo.Nack(ctx, l.Message.ID, retryAt, deadLetter)
}

func (b *Broker) Depth(ctx context.Context, queueName string) (int, error) {
	return b.repo.QueueDepth(ctx, queueName)
}
