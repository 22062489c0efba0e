package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

type EventType string

const (
	CompanyCreated  EventType = "company_created"
	CompanyUpdated  EventType = "company_updated"
	CompanyDeleted  EventType = "company_deleted"
	CustomerCreated EventType = "customer_created"
	CustomerUpdated EventType = "customer_updated"
	CustomerDeleted EventType = "customer_deleted"
	CouponCreated   EventType = "coupon_created"
	CouponUpdated   EventType = "coupon_updated"
	CouponDeleted   EventType = "coupon_deleted"
	CouponPurchased EventType = "coupon_purchased"
	CouponExpired   EventType = "coupon_expired"
)

// Event is one marketplace change. EntityID names the company, customer or
// coupon the event is about; purchases also carry the buying customer.
type Event struct {
	Type       EventType `json:"type"`
	EntityID   int64     `json:"entity_id"`
	CustomerID int64     `json:"customer_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewEvent(eventType EventType, entityID int64) Event {
	return Event{Type: eventType, EntityID: entityID, OccurredAt: time.Now().UTC()}
}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	queueSize    = 1000
	writeTimeout = 10 * time.Second
)

type Producer struct {
	writer    KafkaWriter
	events    chan Event
	logger    *zap.Logger
	closeChan chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewProducer creates the topic if needed and starts the delivery loop.
func NewProducer(brokers []string, topic string, logger *zap.Logger) (*Producer, error) {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Warn("failed to create topic (may already exist)", zap.Error(err))
	}

	p := newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}, logger, queueSize)
	go p.eventLoop()
	return p, nil
}

func newProducer(writer KafkaWriter, logger *zap.Logger, size int) *Producer {
	return &Producer{
		writer:    writer,
		events:    make(chan Event, size),
		logger:    logger.Named("kafka_producer"),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Produce queues event for delivery without blocking; a full queue drops it.
func (p *Producer) Produce(event Event) {
	select {
	case p.events <- event:
	default:
		p.logger.Warn("Kafka producer queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.Int64("entity_id", event.EntityID),
		)
	}
}

func (p *Producer) eventLoop() {
	defer close(p.done)
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		case <-p.closeChan:
			// Flush what was queued before Close.
			for {
				select {
				case event := <-p.events:
					p.sendEvent(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

func (p *Producer) sendEvent(ctx context.Context, event Event) {
	value, err := jsonMarshal(event)
	if err != nil {
		p.logger.Error("Failed to serialize event",
			zap.Error(err),
			zap.Int64("entity_id", event.EntityID),
		)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	// Keyed by entity so every event about one coupon lands on one partition.
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(strconv.FormatInt(event.EntityID, 10)),
		Value:   value,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(event.Type)}},
	})
	if err != nil {
		p.logger.Error("Failed to produce event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.Int64("entity_id", event.EntityID),
		)
	}
}

// Close stops the delivery loop once the queue is flushed and closes the writer.
// The loop must have been started.
func (p *Producer) Close() {
	p.closeOnce.Do(func() {
		close(p.closeChan)
		<-p.done
		if err := p.writer.Close(); err != nil {
			p.logger.Error("Failed to close Kafka writer", zap.Error(err))
		}
	})
}

// NopProducer discards every event. It stands in when no brokers are configured.
type NopProducer struct{}

func (NopProducer) Produce(Event) {}
