package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StreamPublisher appends appointment events to a capped Redis stream that
// agenda screens and notifiers tail.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, clinicID string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: StreamKey(clinicID),
		maxLen: maxLen,
	}
}

func StreamKey(clinicID string) string {
	return fmt.Sprintf("agenda:%s:events", clinicID)
}

func (p *StreamPublisher) Publish(ctx context.Context, eventType, appointmentID string, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":           eventType,
			"appointment_id": appointmentID,
			"payload":        string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}
