// README: Publishes finished bookings to Kafka as JSON events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"nuber/internal/modules/dispatch"
)

const (
	TypeBookingCompleted = "booking.completed"
	TypeBookingFailed    = "booking.failed"
	source               = "nuber-dispatch"
)

// Event is the envelope written for every finished booking.
type Event struct {
	ID     string                 `json:"id"`
	Type   string                 `json:"type"`
	Source string                 `json:"source"`
	RunID  string                 `json:"run_id"`
	Time   time.Time              `json:"time"`
	Data   dispatch.BookingResult `json:"data"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// ResultPublisher is a dispatch.ResultSink writing to a Kafka topic.
type ResultPublisher struct {
	writer messageWriter
	runID  uuid.UUID
	logger *zap.Logger
}

func NewResultPublisher(brokers []string, topic string, runID uuid.UUID, logger *zap.Logger) *ResultPublisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newResultPublisher(w, runID, logger)
}

func newResultPublisher(w messageWriter, runID uuid.UUID, logger *zap.Logger) *ResultPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultPublisher{writer: w, runID: runID, logger: logger}
}

// Record publishes r keyed by booking id so one booking always lands on one partition.
func (p *ResultPublisher) Record(ctx context.Context, r dispatch.BookingResult) error {
	eventType := TypeBookingCompleted
	if r.Status == dispatch.StatusFailed {
		eventType = TypeBookingFailed
	}
	evt := Event{
		ID:     uuid.NewString(),
		Type:   eventType,
		Source: source,
		RunID:  p.runID.String(),
		Time:   time.Now().UTC(),
		Data:   r,
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(strconv.FormatInt(r.BookingID, 10)),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(eventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish booking %d: %w", r.BookingID, err)
	}
	p.logger.Debug("booking event published", zap.Int64("booking_id", r.BookingID))
	return nil
}

func (p *ResultPublisher) Close() error {
	return p.writer.Close()
}

// Decode parses a message written by ResultPublisher.
func Decode(msg kafkago.Message) (Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return Event{}, fmt.Errorf("decode booking event: %w", err)
	}
	if evt.Type != TypeBookingCompleted && evt.Type != TypeBookingFailed {
		return Event{}, fmt.Errorf("unexpected event type %q", evt.Type)
	}
	return evt, nil
}
