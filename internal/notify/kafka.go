// Package notify delivers post-commit notifications to the audit log,
// Kafka and the application log.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/logging"
)

// Event types written to the commit topic.
const (
	EventImportCommitted = "import.committed"
	EventAssetMigrate    = "asset.migrate"
)

const schemaVersion = "1.0"

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers []string
	// Topic receives one event per committed import.
	Topic string
	// AssetTopic receives one event per image that needs migrating. Empty
	// disables asset events.
	AssetTopic   string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes commit and asset events. It is a core.Notifier.
type KafkaPublisher struct {
	writer     messageWriter
	topic      string
	assetTopic string
}

// NewKafkaPublisher creates a publisher writing to cfg.Brokers.
func NewKafkaPublisher(cfg ProducerConfig) *KafkaPublisher {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(writer, cfg.Topic, cfg.AssetTopic)
}

func newKafkaPublisher(w messageWriter, topic, assetTopic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, assetTopic: assetTopic}
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// CommitEvent is the value of an import.committed message.
type CommitEvent struct {
	EventType   string              `json:"event_type"`
	SessionID   string              `json:"session_id"`
	OwnerID     string              `json:"owner_id"`
	Kind        string              `json:"kind"`
	FileName    string              `json:"file_name,omitempty"`
	Created     []core.EntityChange `json:"created"`
	Merged      []core.EntityChange `json:"merged"`
	Skipped     []core.SkippedRow   `json:"skipped"`
	Deferred    []int               `json:"deferred,omitempty"`
	Invalid     int                 `json:"invalid"`
	CommittedAt time.Time           `json:"committed_at"`
}

// AssetEvent asks the asset service to copy an external image into
// owned storage and repoint the entity at it.
type AssetEvent struct {
	EventType string    `json:"event_type"`
	SessionID string    `json:"session_id"`
	OwnerID   string    `json:"owner_id"`
	Kind      string    `json:"kind"`
	EntityID  string    `json:"entity_id"`
	Field     string    `json:"field"`
	SourceURL string    `json:"source_url"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *KafkaPublisher) NotifyCommit(ctx context.Context, n core.CommitNotification) error {
	msgs, err := p.messages(n)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish commit events: %w", err)
	}

	logging.ForSession(ctx, n.SessionID, n.OwnerID).Debug("published commit events",
		"topic", p.topic,
		"messages", len(msgs),
	)
	return nil
}

// messages builds the commit event followed by one asset event per image.
func (p *KafkaPublisher) messages(n core.CommitNotification) ([]kafka.Message, error) {
	committedAt := n.CommittedAt
	if committedAt.IsZero() {
		committedAt = time.Now().UTC()
	}

	data, err := json.Marshal(CommitEvent{
		EventType:   EventImportCommitted,
		SessionID:   n.SessionID,
		OwnerID:     n.OwnerID,
		Kind:        n.Kind,
		FileName:    n.FileName,
		Created:     n.Created,
		Merged:      n.Merged,
		Skipped:     n.Skipped,
		Deferred:    n.Deferred,
		Invalid:     n.Invalid,
		CommittedAt: committedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode commit event: %w", err)
	}

	msgs := []kafka.Message{{
		Topic:   p.topic,
		Key:     []byte(n.SessionID),
		Value:   data,
		Headers: headers(EventImportCommitted, n),
	}}

	if p.assetTopic == "" {
		return msgs, nil
	}
	for _, a := range n.Assets {
		data, err := json.Marshal(AssetEvent{
			EventType: EventAssetMigrate,
			SessionID: n.SessionID,
			OwnerID:   n.OwnerID,
			Kind:      n.Kind,
			EntityID:  a.EntityID,
			Field:     a.Field,
			SourceURL: a.URL,
			Timestamp: committedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("encode asset event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Topic:   p.assetTopic,
			Key:     []byte(a.EntityID),
			Value:   data,
			Headers: headers(EventAssetMigrate, n),
		})
	}
	return msgs, nil
}

func headers(eventType string, n core.CommitNotification) []kafka.Header {
	return []kafka.Header{
		{Key: "event_type", Value: []byte(eventType)},
		{Key: "owner_id", Value: []byte(n.OwnerID)},
		{Key: "entity_type", Value: []byte(n.Kind)},
		{Key: "schema_version", Value: []byte(schemaVersion)},
	}
}

var _ core.Notifier = (*KafkaPublisher)(nil)
