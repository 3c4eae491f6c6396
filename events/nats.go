package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/CytonicMC/Cyparty/env"
	"github.com/nats-io/nats.go"
)

// Conn is the part of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
}

var _ Conn = (*nats.Conn)(nil)

// NatsPublisher publishes each record as JSON on party.events.<kind>.
type NatsPublisher struct {
	nc Conn
}

func NewNatsPublisher(nc Conn) *NatsPublisher {
	return &NatsPublisher{nc: nc}
}

// Subject returns the subject records of kind are published on.
func Subject(kind Kind) string {
	return env.EnsurePrefixed("party.events." + string(kind))
}

func (p *NatsPublisher) Publish(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", rec.Kind, err)
	}
	if err := p.nc.Publish(Subject(rec.Kind), data); err != nil {
		log.Printf("Error publishing %s record for party %s: %v", rec.Kind, rec.PartyID, err)
		return fmt.Errorf("publish %s record: %w", rec.Kind, err)
	}
	return nil
}
