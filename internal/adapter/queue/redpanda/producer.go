// Package redpanda provides Redpanda/Kafka queue integration.
//
// It carries ingest tasks from the API to the worker with exactly-once
// produce semantics and keyed ordering per resume.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/resume-rag/internal/adapter/observability"
	"github.com/fairyhunter13/resume-rag/internal/domain"
)

// TopicIngest is the Kafka topic for resume ingest jobs.
const TopicIngest = "resume-ingest"

// Producer wraps a transactional Kafka producer and implements domain.Queue.
type Producer struct {
	client *kgo.Client
	// serializes transactions; franz-go permits one open txn per client
	txnCh chan struct{}
}

// NewProducer constructs a Producer with exactly-once semantics.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTransactionalID(brokers, "resume-rag-producer")
}

// NewProducerWithTransactionalID constructs a Producer with a custom
// transactional ID, useful to isolate concurrent test producers.
func NewProducerWithTransactionalID(brokers []string, transactionalID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	if err := createTopicIfNotExists(context.Background(), client, TopicIngest, 1, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist",
			slog.String("topic", TopicIngest),
			slog.Any("error", err))
	}

	slog.Info("redpanda producer created", slog.Any("brokers", brokers))
	return &Producer{
		client: client,
		txnCh:  make(chan struct{}, 1),
	}, nil
}

// EnqueueIngest enqueues an ingest task with exactly-once semantics.
func (p *Producer) EnqueueIngest(ctx domain.Context, payload domain.IngestTaskPayload) (string, error) {
	return p.enqueueToTopic(ctx, payload, TopicIngest)
}

func (p *Producer) enqueueToTopic(ctx domain.Context, payload domain.IngestTaskPayload, topic string) (string, error) {
	select {
	case p.txnCh <- struct{}{}:
		defer func() { <-p.txnCh }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("failed to abort transaction", slog.Any("error", abortErr))
		}
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		// Key by resume so re-ingests of one document stay ordered
		Key:   []byte(payload.ResumeID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "job_id", Value: []byte(payload.JobID)},
			{Key: "resume_id", Value: []byte(payload.ResumeID)},
		},
	}

	e := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, record, e.Promise())
	if err := e.Err(); err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("failed to abort transaction", slog.Any("error", abortErr))
		}
		return "", fmt.Errorf("produce: %w", err)
	}

	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}

	observability.EnqueueJob("ingest")
	slog.Info("ingest task enqueued",
		slog.String("topic", topic),
		slog.String("job_id", payload.JobID),
		slog.String("resume_id", payload.ResumeID))
	return payload.JobID, nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
