package transmission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"
)

// KafkaQueue publishes transmission jobs to the transmission topic, keyed by
// document id so retries of one document stay on one partition.
type KafkaQueue struct {
	client *kgo.Client
	topic  string
}

func NewKafkaQueue(client *kgo.Client, topic string) *KafkaQueue {
	return &KafkaQueue{client: client, topic: topic}
}

func (q *KafkaQueue) Publish(ctx context.Context, job Job) error {
	value, err := job.Encode()
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: q.topic,
		Key:   []byte(job.DocumentID.String()),
		Value: value,
	}
	if err := q.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce transmission job: %w", err)
	}
	return nil
}

// Consumer polls the transmission topic and feeds jobs to the processor on a
// bounded worker pool. Offsets commit only for records that processed to
// settlement; a failed record holds back its partition so a restart or
// rebalance redelivers it. The document claim guard absorbs redeliveries.
type Consumer struct {
	client  *kgo.Client
	proc    *Processor
	workers int
	log     *slog.Logger
}

func NewConsumer(client *kgo.Client, proc *Processor, workers int, log *slog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{client: client, proc: proc, workers: workers, log: log}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.log.ErrorContext(ctx, "fetch error",
				"topic", topic, "partition", partition, "error", err.Error())
		})

		records := fetches.Records()
		if len(records) == 0 {
			continue
		}

		var mu sync.Mutex
		failed := make(map[int32]int64) // partition -> lowest failed offset

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.workers)
		for _, record := range records {
			g.Go(func() error {
				job, err := DecodeJob(record.Value)
				if err != nil {
					// Poison record: log and move on, never wedge the
					// partition.
					c.log.ErrorContext(gctx, "undecodable transmission job",
						"partition", record.Partition, "offset", record.Offset, "error", err.Error())
					return nil
				}
				if err := c.proc.Process(gctx, job); err != nil {
					c.log.ErrorContext(gctx, "transmission job failed",
						"job_id", job.JobID.String(), "error", err.Error())
					mu.Lock()
					if low, ok := failed[record.Partition]; !ok || record.Offset < low {
						failed[record.Partition] = record.Offset
					}
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// Committing past a failed record would drop it; everything at or
		// above the first failure in a partition stays uncommitted.
		commit := make([]*kgo.Record, 0, len(records))
		for _, record := range records {
			if low, ok := failed[record.Partition]; ok && record.Offset >= low {
				continue
			}
			commit = append(commit, record)
		}
		if len(commit) == 0 {
			continue
		}
		if err := c.client.CommitRecords(ctx, commit...); err != nil {
			c.log.ErrorContext(ctx, "commit offsets", "error", err.Error())
		}
	}
}
