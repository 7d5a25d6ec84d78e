package broadcast

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

const (
	defaultQueueSize = 1024
	maxBatch         = 100
	writeAttempts    = 3
	flushTimeout     = 5 * time.Second
)

// messageWriter is the part of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards committed engine records to a Kafka topic.
// Publish never blocks the engine: when the queue is full the record is
// dropped and counted. Consumers can backfill from /api/v1/events by seq.
type KafkaPublisher struct {
	writer  messageWriter
	queue   chan core.Record
	log     *zap.SugaredLogger
	dropped atomic.Uint64
	backoff time.Duration
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.SugaredLogger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaPublisher(w, defaultQueueSize, logger)
}

func newKafkaPublisher(w messageWriter, queueSize int, logger *zap.SugaredLogger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &KafkaPublisher{
		writer:  w,
		queue:   make(chan core.Record, queueSize),
		log:     logger,
		backoff: 200 * time.Millisecond,
	}
}

// Publish queues a record. Register it with Engine.Subscribe.
func (p *KafkaPublisher) Publish(rec core.Record) {
	select {
	case p.queue <- rec:
	default:
		n := p.dropped.Add(1)
		p.log.Warnw("kafka_queue_full", "seq", rec.Seq, "kind", rec.Kind, "dropped", n)
	}
}

// Dropped returns how many records were never written
func (p *KafkaPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Run writes queued records in batches until ctx is done, then flushes
// what is left and closes the writer
func (p *KafkaPublisher) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-p.queue:
			p.write(ctx, p.collect(rec))
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			for len(p.queue) > 0 {
				p.write(flushCtx, p.collect(<-p.queue))
			}
			cancel()
			return p.writer.Close()
		}
	}
}

// collect takes first plus whatever else is already queued, up to maxBatch
func (p *KafkaPublisher) collect(first core.Record) []core.Record {
	batch := []core.Record{first}
	for len(batch) < maxBatch {
		select {
		case rec := <-p.queue:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
	return batch
}

func (p *KafkaPublisher) write(ctx context.Context, batch []core.Record) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, rec := range batch {
		msg, err := toMessage(rec)
		if err != nil {
			p.dropped.Add(1)
			p.log.Errorw("kafka_encode_failed", "seq", rec.Seq, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}

	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err = p.writer.WriteMessages(ctx, msgs...); err == nil {
			p.log.Debugw("kafka_written", "records", len(msgs), "last_seq", batch[len(batch)-1].Seq)
			return
		}
		p.log.Warnw("kafka_write_failed", "attempt", attempt, "records", len(msgs), "error", err)
		select {
		case <-time.After(p.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			attempt = writeAttempts
		}
	}
	n := p.dropped.Add(uint64(len(msgs)))
	p.log.Errorw("kafka_batch_dropped", "first_seq", batch[0].Seq, "records", len(msgs), "dropped", n, "error", err)
}

// toMessage keys by event kind and carries seq as a header so consumers
// can order records across partitions
func toMessage(rec core.Record) (kafka.Message, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(rec.Kind),
		Value: value,
		Headers: []kafka.Header{
			{Key: "seq", Value: []byte(strconv.FormatUint(rec.Seq, 10))},
		},
	}, nil
}
