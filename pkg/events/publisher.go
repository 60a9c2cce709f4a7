// Package events publishes evaluation lifecycle events for the external
// notification layer. Delivery is best effort: the engine never fails a
// domain operation because an event could not be published.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event names emitted by the engine.
const (
	EvaluationAssigned     = "evaluation.assigned"
	EvaluationTransitioned = "evaluation.transitioned"
	EvaluationFlagged      = "evaluation.flagged"
)

// Event is the envelope sent to the broker.
type Event struct {
	Name         string                 `json:"name"`
	EvaluationID uint                   `json:"evaluation_id"`
	AssignmentID uint                   `json:"assignment_id"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	EmittedAt    time.Time              `json:"emitted_at"`
}

// Publisher emits domain events; implementations must be safe for concurrent use.
type Publisher interface {
	Publish(event Event) error
}

type natsPublisher struct {
	conn        *nats.Conn
	subjectBase string
	logger      zerolog.Logger
}

// NewNATSPublisher connects a publisher to the given subject base, e.g.
// "peerlens" yields subjects like "peerlens.evaluation.transitioned".
func NewNATSPublisher(conn *nats.Conn, subjectBase string, logger zerolog.Logger) Publisher {
	return &natsPublisher{
		conn:        conn,
		subjectBase: strings.Trim(subjectBase, "."),
		logger:      logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsPublisher) Publish(event Event) error {
	if p.conn == nil {
		return nil
	}

	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.Name, err)
	}

	subject := event.Name
	if p.subjectBase != "" {
		subject = p.subjectBase + "." + event.Name
	}

	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}

	p.logger.Debug().Str("subject", subject).Uint("evaluation_id", event.EvaluationID).Msg("event published")
	return nil
}

// Connect dials the NATS server at url; an empty url disables eventing and
// returns a nil connection.
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := nats.Connect(url, nats.Name("peerlens-api"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return conn, nil
}
