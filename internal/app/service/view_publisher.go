package service

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/gongdel/promptview/internal/app/model"
)

// ViewPublisher publishes accepted view events to NATS JetStream, decoupling
// the hot record path from Postgres writes.
type ViewPublisher struct {
	js nats.JetStreamContext
}

// NewViewPublisher creates a view event publisher.
func NewViewPublisher(js nats.JetStreamContext) *ViewPublisher {
	return &ViewPublisher{js: js}
}

// Publish places a view record on the stream.
func (p *ViewPublisher) Publish(record *model.ViewRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.ViewStreamSubject, data)
	return err
}
