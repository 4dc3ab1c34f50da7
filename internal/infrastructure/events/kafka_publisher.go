// Package events publica los eventos de stock confirmados.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

var _ inventory.EventPublisher = (*KafkaPublisher)(nil)

// MessageWriter subconjunto de *kafka.Writer que usa el publicador.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher envía movimientos y alertas a sus tópicos, con la llave owner:producto para
// conservar el orden por producto dentro de una partición.
type KafkaPublisher struct {
	movements MessageWriter
	alerts    MessageWriter
	log       *logger.Logger
}

// NewKafkaPublisher crea los writers de ambos tópicos.
func NewKafkaPublisher(brokers []string, stockTopic, alertsTopic string, log *logger.Logger) *KafkaPublisher {
	return NewKafkaPublisherWithWriters(newWriter(brokers, stockTopic), newWriter(brokers, alertsTopic), log)
}

// NewKafkaPublisherWithWriters permite inyectar los writers (pruebas).
func NewKafkaPublisherWithWriters(movements, alerts MessageWriter, log *logger.Logger) *KafkaPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaPublisher{movements: movements, alerts: alerts, log: log.Component("kafka")}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

// Publish serializa el evento en JSON y lo escribe en el tópico que corresponde a su tipo.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, event any) error {
	var w MessageWriter
	var eventType string
	switch e := event.(type) {
	case inventory.StockMovedEvent:
		w, eventType = p.movements, e.EventType
	case inventory.StockAlertEvent:
		w, eventType = p.alerts, e.EventType
	default:
		return fmt.Errorf("tipo de evento no soportado %T", event)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to kafka: %w", err)
	}
	p.log.Debug().Str("key", key).Str("event_type", eventType).Msg("evento publicado")
	return nil
}

// Close cierra ambos writers.
func (p *KafkaPublisher) Close() error {
	return errors.Join(p.movements.Close(), p.alerts.Close())
}
