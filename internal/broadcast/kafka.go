package broadcast

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/signalsfoundry/plant-trainer/internal/logging"
	"github.com/signalsfoundry/plant-trainer/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig selects brokers, topics and sampling for the sink.
type KafkaConfig struct {
	Brokers      []string
	TopicPrefix  string
	PublishEvery int
	Codec        Codec
}

// SnapshotTopic is where sampled frames go.
func (c KafkaConfig) SnapshotTopic() string { return c.TopicPrefix + ".snapshots" }

// EventTopic is where operator history events go.
func (c KafkaConfig) EventTopic() string { return c.TopicPrefix + ".events" }

const eventQueueSize = 256

// KafkaSink is a hub observer that publishes every PublishEvery-th frame and
// every history event to Kafka. Delivery failures are logged and dropped;
// the simulation never waits on the broker.
type KafkaSink struct {
	cfg    KafkaConfig
	writer messageWriter
	log    logging.Logger
	events chan model.HistoryEvent

	mu      sync.Mutex
	written int
	failed  int
}

var errNoBrokers = errors.New("broadcast: kafka sink needs at least one broker")

// NewKafkaSink builds a sink on a kafka-go writer using the hash balancer so
// messages with the same key land on the same partition.
func NewKafkaSink(cfg KafkaConfig, log logging.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
	return newKafkaSinkWithWriter(cfg, w, log), nil
}

func newKafkaSinkWithWriter(cfg KafkaConfig, w messageWriter, log logging.Logger) *KafkaSink {
	if cfg.PublishEvery <= 0 {
		cfg.PublishEvery = 1
	}
	if cfg.Codec == nil {
		cfg.Codec = jsonCodec{}
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "plant-trainer"
	}
	if log == nil {
		log = logging.Noop()
	}
	return &KafkaSink{
		cfg:    cfg,
		writer: w,
		log:    log.With(logging.String("component", "kafka_sink")),
		events: make(chan model.HistoryEvent, eventQueueSize),
	}
}

// RecordEvent queues a history event for publication. A full queue drops it.
func (k *KafkaSink) RecordEvent(ev model.HistoryEvent) {
	select {
	case k.events <- ev:
	default:
		k.log.Warn(context.Background(), "kafka event queue full, dropping event",
			logging.String("event_id", ev.ID))
	}
}

// Run consumes frames from sub and queued events until ctx is cancelled or
// the subscription closes, then closes the writer.
func (k *KafkaSink) Run(ctx context.Context, sub *Subscription) error {
	defer func() {
		if err := k.writer.Close(); err != nil {
			k.log.Warn(ctx, "kafka writer close failed", logging.Err(err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			k.drainEvents()
			return nil
		case ev := <-k.events:
			k.publishEvent(ctx, ev)
		case f, ok := <-sub.C():
			if !ok {
				k.drainEvents()
				return nil
			}
			if f.State == nil || f.Seq%uint64(k.cfg.PublishEvery) != 0 {
				continue
			}
			k.publishFrame(ctx, f)
		}
	}
}

func (k *KafkaSink) drainEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-k.events:
			k.publishEvent(ctx, ev)
		default:
			return
		}
	}
}

func (k *KafkaSink) publishFrame(ctx context.Context, f Frame) {
	value, err := k.cfg.Codec.Marshal(f)
	if err != nil {
		k.log.Error(ctx, "encode frame failed", logging.Err(err), logging.Uint64("seq", f.Seq))
		return
	}
	msg := kafka.Message{
		Topic: k.cfg.SnapshotTopic(),
		Key:   []byte(strconv.FormatUint(f.Seq, 10)),
		Value: value,
		Time:  f.State.SimTime,
		Headers: []kafka.Header{
			{Key: "codec", Value: []byte(k.cfg.Codec.Name())},
		},
	}
	k.write(ctx, msg, logging.Uint64("seq", f.Seq))
}

func (k *KafkaSink) publishEvent(ctx context.Context, ev model.HistoryEvent) {
	value, err := k.cfg.Codec.Marshal(ev)
	if err != nil {
		k.log.Error(ctx, "encode event failed", logging.Err(err), logging.String("event_id", ev.ID))
		return
	}
	msg := kafka.Message{
		Topic: k.cfg.EventTopic(),
		Key:   []byte(ev.EntityID),
		Value: value,
		Time:  ev.Time,
		Headers: []kafka.Header{
			{Key: "codec", Value: []byte(k.cfg.Codec.Name())},
			{Key: "category", Value: []byte(ev.Category)},
		},
	}
	k.write(ctx, msg, logging.String("event_id", ev.ID))
}

func (k *KafkaSink) write(ctx context.Context, msg kafka.Message, field logging.Field) {
	err := k.writer.WriteMessages(ctx, msg)
	k.mu.Lock()
	if err != nil {
		k.failed++
	} else {
		k.written++
	}
	k.mu.Unlock()
	if err != nil && !errors.Is(err, context.Canceled) {
		k.log.Warn(ctx, "kafka write failed", logging.Err(err), logging.String("topic", msg.Topic), field)
	}
}

// Stats returns the number of successful and failed writes.
func (k *KafkaSink) Stats() (written, failed int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.written, k.failed
}
