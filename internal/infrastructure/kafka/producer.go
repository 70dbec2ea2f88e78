// Package kafka publishes fill audit events with franz-go. Downstream
// consumers (CSR tooling, reporting) subscribe to the fill topics; the batch
// itself never depends on a consumer being present.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// ProducerConfig holds configuration for the event producer.
type ProducerConfig struct {
	Brokers []string
	// LingerMS is the time to wait before sending a batch.
	LingerMS int64
	// MaxRetries is the maximum number of retries for failed sends.
	MaxRetries int
}

// DefaultProducerConfig returns defaults sized for batch-cron volumes.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:    []string{"localhost:9092"},
		LingerMS:   25,
		MaxRetries: 3,
	}
}

// Producer publishes fill events.
type Producer struct {
	client *kgo.Client
	logger *zap.Logger
}

// NewProducer creates an event producer.
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS)*time.Millisecond),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Producer{client: client, logger: logger}, nil
}

// FillEvent is the payload published per processed order.
type FillEvent struct {
	CRMType   string    `json:"crm_type"`
	CRMID     string    `json:"crm_id"`
	CRMOrder  string    `json:"crm_order"`
	Pharmacy  string    `json:"pharmacy,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	List      string    `json:"list"`
	Timestamp time.Time `json:"timestamp"`
}

// Publish sends one event to a topic, keyed by order id, and waits for the
// broker ack.
func (p *Producer) Publish(ctx context.Context, topic string, event FillEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(event.CRMOrder),
		Value: value,
	}

	var produceErr error
	var wg sync.WaitGroup
	wg.Add(1)
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		defer wg.Done()
		if err != nil {
			produceErr = err
			p.logger.Error("produce failed",
				zap.String("topic", topic),
				zap.String("crm_order", event.CRMOrder),
				zap.Error(err))
		}
	})
	wg.Wait()

	return produceErr
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("flush on close", zap.Error(err))
	}
	p.client.Close()
	return nil
}
