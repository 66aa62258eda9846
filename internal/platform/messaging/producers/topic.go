package producers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const topicLookupAttempts = 5

// topicLookupDelay is the pause between partition lookups
var topicLookupDelay = 2 * time.Second

// topicAdmin is the part of *kafka.Conn used to provision topics
type topicAdmin interface {
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	CreateTopics(topics ...kafka.TopicConfig) error
}

// ensureTopic creates topicCfg.Topic unless the broker already reports partitions
// for it. Partition lookups are retried because a fresh broker often answers
// with a leader-not-available error for a few seconds.
func ensureTopic(ctx context.Context, admin topicAdmin, topicCfg kafka.TopicConfig, logger *slog.Logger) error {
	logger = logger.With("topic", topicCfg.Topic)

	var lookupErr error
	for attempt := 1; attempt <= topicLookupAttempts; attempt++ {
		partitions, err := admin.ReadPartitions(topicCfg.Topic)
		if err == nil && len(partitions) > 0 {
			logger.Debug("Kafka topic exists", "partitions", len(partitions))
			return nil
		}
		lookupErr = err
		if err == nil {
			break
		}
		logger.Warn("Failed to read topic partitions", "attempt", attempt, "error", err)
		if attempt == topicLookupAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("topic lookup for %s canceled: %w", topicCfg.Topic, ctx.Err())
		case <-time.After(topicLookupDelay):
		}
	}

	topicCfg.NumPartitions = max(topicCfg.NumPartitions, 1)
	topicCfg.ReplicationFactor = max(topicCfg.ReplicationFactor, 1)
	logger.Info("Creating Kafka topic",
		"partitions", topicCfg.NumPartitions,
		"replication_factor", topicCfg.ReplicationFactor,
		"last_lookup_error", lookupErr)

	if err := admin.CreateTopics(topicCfg); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topicCfg.Topic, err)
	}
	return nil
}
