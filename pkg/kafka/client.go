// Package kafka publishes chat records to Kafka and archives them from a consumer group.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"cyberchat-go/internal/config"
	"cyberchat-go/internal/model"
	"cyberchat-go/pkg/log"
	"cyberchat-go/pkg/tasks"
)

// maxAttempts is how many times a record is retried before its offset is committed anyway.
const maxAttempts = 3

// retryBackoff is the pause between two attempts on the same record.
var retryBackoff = time.Second

// TaskProcessor handles one chat record task.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ChatRecordTask) error
}

// AttemptCounter tracks failed processing attempts per task key.
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// Producer publishes chat records. It satisfies conversation.Sink.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer for cfg.Topic.
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Infof("[Kafka] producer initialized, topic: %s", cfg.Topic)
	return &Producer{writer: w}
}

// Write publishes rec keyed by session id, so a session's records stay ordered.
func (p *Producer) Write(ctx context.Context, rec model.ChatRecord) error {
	value, err := json.Marshal(tasks.NewChatRecordTask(rec))
	if err != nil {
		return fmt.Errorf("marshal chat record task: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(rec.SessionID), Value: value}); err != nil {
		return fmt.Errorf("publish chat record: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader is the subset of *kafka.Reader the consumer loop needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StartConsumer archives chat records until ctx is cancelled.
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	log.Infof("[Kafka] consumer started, topic: '%s', group: '%s'", cfg.Topic, cfg.GroupID)
	consume(ctx, r, processor, attempts)
}

func consume(ctx context.Context, r messageReader, processor TaskProcessor, attempts AttemptCounter) {
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("[Kafka] close consumer failed: %v", err)
		}
	}()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("[Kafka] fetch message failed", err)
			}
			return
		}

		var task tasks.ChatRecordTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("[Kafka] cannot decode message at offset %d: %v", m.Offset, err)
			commit(ctx, r, m)
			continue
		}

		if !handle(ctx, processor, attempts, task) {
			return
		}
		commit(ctx, r, m)
	}
}

// handle processes task until it succeeds or has failed maxAttempts times, then reports true so
// the offset can be committed. It reports false when ctx ends first, leaving the offset uncommitted.
func handle(ctx context.Context, processor TaskProcessor, attempts AttemptCounter, task tasks.ChatRecordTask) bool {
	key := task.Key()
	for attempt := int64(1); ; attempt++ {
		err := processor.Process(ctx, task)
		if err == nil {
			_ = attempts.Reset(ctx, key)
			return true
		}

		// The shared counter carries attempts across consumer restarts.
		n, incErr := attempts.Incr(ctx, key)
		if incErr != nil || n < attempt {
			n = attempt
		}
		log.Errorf("[Kafka] archive chat record failed, session: %s, attempt %d/%d: %v", task.SessionID, n, maxAttempts, err)
		if n >= maxAttempts {
			log.Errorf("[Kafka] giving up on chat record after %d attempts, session: %s", n, task.SessionID)
			_ = attempts.Reset(ctx, key)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(retryBackoff):
		}
	}
}

func commit(ctx context.Context, r messageReader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("[Kafka] commit offset %d failed: %v", m.Offset, err)
	}
}

func brokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// RedisAttempts counts attempts in redis with a one-day expiry.
type RedisAttempts struct {
	client *redis.Client
}

func NewRedisAttempts(client *redis.Client) *RedisAttempts {
	return &RedisAttempts{client: client}
}

func (a *RedisAttempts) Incr(ctx context.Context, key string) (int64, error) {
	k := "kafka:attempts:" + key
	n, err := a.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	_ = a.client.Expire(ctx, k, 24*time.Hour).Err()
	return n, nil
}

func (a *RedisAttempts) Reset(ctx context.Context, key string) error {
	return a.client.Del(ctx, "kafka:attempts:"+key).Err()
}

// MemoryAttempts counts attempts in process memory. Used when redis is not configured.
type MemoryAttempts struct {
	counts map[string]int64
}

func NewMemoryAttempts() *MemoryAttempts {
	return &MemoryAttempts{counts: make(map[string]int64)}
}

func (a *MemoryAttempts) Incr(_ context.Context, key string) (int64, error) {
	a.counts[key]++
	return a.counts[key], nil
}

func (a *MemoryAttempts) Reset(_ context.Context, key string) error {
	delete(a.counts, key)
	return nil
}
