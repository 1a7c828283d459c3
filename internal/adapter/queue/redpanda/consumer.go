package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/resume-rag/internal/adapter/observability"
	"github.com/fairyhunter13/resume-rag/internal/domain"
)

// IngestHandler processes one ingest task. Implemented by the ingest pipeline.
type IngestHandler interface {
	HandleIngest(ctx context.Context, payload domain.IngestTaskPayload) error
}

// Consumer reads ingest tasks from the topic within a consumer-group
// transact session and fans them out to a fixed worker pool.
type Consumer struct {
	session     *kgo.GroupTransactSession
	handler     IngestHandler
	jobs        domain.IngestJobRepository
	topic       string
	concurrency int
}

// NewConsumer constructs a consumer-group session with kotel trace hooks.
func NewConsumer(brokers []string, groupID string, handler IngestHandler, jobs domain.IngestJobRepository, concurrency int) (*Consumer, error) {
	return NewConsumerWithTopic(brokers, groupID, "resume-rag-consumer", handler, jobs, concurrency, TopicIngest)
}

// NewConsumerWithTopic constructs a consumer bound to a specific topic,
// useful to isolate tests.
func NewConsumerWithTopic(brokers []string, groupID, transactionalID string, handler IngestHandler, jobs domain.IngestJobRepository, concurrency int, topic string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	kotelTracer := kotel.NewTracer(
		kotel.TracerProvider(otel.GetTracerProvider()),
	)
	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotelTracer),
	)

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.TransactionalID(transactionalID),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.RequireStableFetchOffsets(),
		kgo.WithHooks(kotelService.Hooks()...),
	}

	session, err := kgo.NewGroupTransactSession(opts...)
	if err != nil {
		return nil, fmt.Errorf("redpanda consumer session: %w", err)
	}

	return &Consumer{
		session:     session,
		handler:     handler,
		jobs:        jobs,
		topic:       topic,
		concurrency: concurrency,
	}, nil
}

// Start consumes until ctx is cancelled. Each poll runs inside a session
// transaction so offsets commit only after the records are processed.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("ingest consumer started",
		slog.String("topic", c.topic),
		slog.Int("concurrency", c.concurrency))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fetches := c.session.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return errors.New("consumer client closed")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			slog.Error("fetch error",
				slog.String("topic", topic),
				slog.Int("partition", int(partition)),
				slog.Any("error", err))
		})

		records := make([]*kgo.Record, 0, fetches.NumRecords())
		fetches.EachRecord(func(rec *kgo.Record) {
			records = append(records, rec)
		})
		if len(records) == 0 {
			continue
		}

		if err := c.session.Begin(); err != nil {
			slog.Error("begin session transaction", slog.Any("error", err))
			continue
		}

		c.processBatch(ctx, records)

		committed, err := c.session.End(ctx, kgo.TryCommit)
		if err != nil {
			slog.Error("end session transaction", slog.Any("error", err))
			continue
		}
		if !committed {
			slog.Warn("session transaction aborted, records will be redelivered",
				slog.Int("records", len(records)))
		}
	}
}

// processBatch fans records out to the worker pool and waits for the batch.
func (c *Consumer) processBatch(ctx context.Context, records []*kgo.Record) {
	work := make(chan *kgo.Record)
	var wg sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				c.processRecord(ctx, rec)
			}
		}()
	}
	for _, rec := range records {
		work <- rec
	}
	close(work)
	wg.Wait()
}

// processRecord runs one ingest task. Handler failures mark the job failed
// rather than aborting the batch: the task is not retried, the failure is
// visible through the job status endpoint.
func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) {
	var payload domain.IngestTaskPayload
	if err := json.Unmarshal(record.Value, &payload); err != nil {
		slog.Error("unmarshal ingest payload, dropping record",
			slog.Any("error", err),
			slog.Int64("offset", record.Offset))
		return
	}

	log := slog.With(
		slog.String("job_id", payload.JobID),
		slog.String("resume_id", payload.ResumeID))
	log.Info("processing ingest task")
	observability.StartProcessingJob("ingest")
	start := time.Now()

	if err := c.handler.HandleIngest(ctx, payload); err != nil {
		observability.FailJob("ingest")
		log.Error("ingest task failed", slog.Any("error", err), slog.Duration("took", time.Since(start)))
		msg := err.Error()
		if uerr := c.jobs.UpdateStatus(ctx, payload.JobID, domain.JobFailed, &msg); uerr != nil {
			log.Error("mark job failed", slog.Any("error", uerr))
		}
		return
	}

	observability.CompleteJob("ingest")
	log.Info("ingest task completed", slog.Duration("took", time.Since(start)))
}

// Close closes the underlying session.
func (c *Consumer) Close() error {
	if c.session != nil {
		c.session.Close()
	}
	return nil
}
