package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// EventBriefPublished is the record type emitted for every stored brief.
const EventBriefPublished = "brief.published"

// BriefRecord is the JSON value of a published record. Consumers key on
// WeekStart; a re-run for the same week publishes a newer record under the
// same key.
type BriefRecord struct {
	Type        string    `json:"type"`
	WeekStart   string    `json:"week_start"`
	WeekEnd     string    `json:"week_end"`
	Markdown    string    `json:"markdown"`
	Watchlist   []string  `json:"watchlist"`
	PublishedAt time.Time `json:"published_at"`
}

// Kafka publishes briefs to a topic.
type Kafka struct {
	client *kgo.Client
	admin  *kadm.Client
	topic  string
	now    func() time.Time

	mu         sync.Mutex
	topicReady bool
}

// KafkaOption configures a Kafka notifier.
type KafkaOption func(*Kafka)

// WithClock overrides the publication timestamp source.
func WithClock(now func() time.Time) KafkaOption {
	return func(k *Kafka) { k.now = now }
}

// NewKafka connects lazily; no broker is contacted until the first Notify.
func NewKafka(brokers []string, topic string, opts ...KafkaOption) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	k := &Kafka{
		client: client,
		admin:  kadm.NewClient(client),
		topic:  topic,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

func (k *Kafka) Name() string { return "kafka" }

// Notify publishes one record keyed by week start and waits for the ack.
func (k *Kafka) Notify(ctx context.Context, msg Message) error {
	if err := k.ensureTopic(ctx); err != nil {
		return err
	}

	watchlist := msg.Watchlist
	if watchlist == nil {
		watchlist = []string{}
	}
	value, err := json.Marshal(BriefRecord{
		Type:        EventBriefPublished,
		WeekStart:   msg.WeekStart.Format(dateLayout),
		WeekEnd:     msg.WeekEnd.Format(dateLayout),
		Markdown:    msg.Markdown,
		Watchlist:   watchlist,
		PublishedAt: k.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal brief record: %w", err)
	}

	rec := &kgo.Record{
		Key:   []byte(msg.WeekStart.Format(dateLayout)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(EventBriefPublished)},
		},
	}
	if err := k.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce brief record: %w", err)
	}
	return nil
}

// ensureTopic creates the topic once per process; an existing topic is fine.
func (k *Kafka) ensureTopic(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.topicReady {
		return nil
	}

	resp, err := k.admin.CreateTopic(ctx, 1, -1, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", k.topic, resp.Err)
	}
	k.topicReady = true
	return nil
}

// Close flushes and closes the client.
func (k *Kafka) Close() {
	k.client.Close()
}
