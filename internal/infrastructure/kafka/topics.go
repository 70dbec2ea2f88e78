package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Fill event topics.
const (
	TopicFillResolved = "fill.resolved"
	TopicFillFailed   = "fill.failed"
	TopicRxExpiring   = "rx.expiring"
)

// EnsureTopics creates the fill topics if they do not exist. Safe to call on
// every startup.
func EnsureTopics(ctx context.Context, brokers []string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer client.Close()

	adm := kadm.NewClient(client)

	topics := []string{TopicFillResolved, TopicFillFailed, TopicRxExpiring}
	resp, err := adm.CreateTopics(ctx, 3, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}

	for _, res := range resp.Sorted() {
		if res.Err != nil && !strings.Contains(res.Err.Error(), "TOPIC_ALREADY_EXISTS") {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
		logger.Debug("topic ensured", zap.String("topic", res.Topic))
	}
	return nil
}
