// Package events publishes document lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

type EventType string

const (
	DocumentCreated EventType = "document_created"
	DocumentUpdated EventType = "document_updated"
	DocumentDeleted EventType = "document_deleted"
	ProductDeleted  EventType = "product_deleted"
	CategoryDeleted EventType = "category_deleted"
)

// Change is one edited field of a document_updated event.
type Change struct {
	Element string `json:"element"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// Event describes one change of a company's catalog. EntityID is the
// company-local id of the document, product or category.
type Event struct {
	Type       EventType `json:"type"`
	Company    string    `json:"company"`
	EntityID   int       `json:"entity_id"`
	Title      string    `json:"title,omitempty"`
	File       string    `json:"file,omitempty"`
	Changes    []Change  `json:"changes,omitempty"`
	ActorID    uint      `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key partitions events by company, keeping each company's events in order.
func (ev Event) Key() string {
	return ev.Company
}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer    KafkaWriter
	events    chan Event
	logger    *zap.Logger
	closeChan chan struct{}
	done      chan struct{}
}

const queueSize = 1000

func NewProducer(brokers []string, topic string, logger *zap.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	logger = logger.Named("kafka_producer")

	// Create topic if it doesn't exist
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		logger.Warn("failed to reach kafka, topic not created", zap.Error(err))
	} else {
		defer conn.Close()
		err = conn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
		if err != nil {
			logger.Warn("failed to create topic (may already exist)", zap.Error(err))
		}
	}

	p := newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		Topic:                  topic,
		AllowAutoTopicCreation: true,
	}, logger, queueSize)

	go p.eventLoop()
	return p, nil
}

func newProducer(writer KafkaWriter, logger *zap.Logger, size int) *Producer {
	return &Producer{
		writer:    writer,
		events:    make(chan Event, size),
		logger:    logger,
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Produce queues the event. It never blocks; events are dropped when the
// queue is full.
func (p *Producer) Produce(event Event) {
	select {
	case p.events <- event:
	default:
		p.logger.Warn("Kafka producer queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("key", event.Key()),
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
			p.drain()
			return
		}
	}
}

// drain sends what is still queued at shutdown.
func (p *Producer) drain() {
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		default:
			return
		}
	}
}

func (p *Producer) sendEvent(ctx context.Context, event Event) {
	value, err := jsonMarshal(event)
	if err != nil {
		p.logger.Error("Failed to serialize event",
			zap.Error(err),
			zap.String("key", event.Key()),
		)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key()),
		Value: value,
	})
	if err != nil {
		p.logger.Error("Failed to produce event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.String("key", event.Key()),
		)
	}
}

// Close stops the event loop after the queue is drained and closes the writer.
func (p *Producer) Close() {
	close(p.closeChan)
	<-p.done
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}

// NopProducer discards every event. It is used when no brokers are configured.
type NopProducer struct{}

func (NopProducer) Produce(Event) {}

func (NopProducer) Close() {}
