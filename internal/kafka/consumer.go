package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Handler must return nil only when the message was processed and its offset
// may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
	Workers int
	// FromLatest starts a new group at the end of the topic instead of the
	// beginning.
	FromLatest bool
}

type Consumer struct {
	r       *kafka.Reader
	workers int
	backoff time.Duration
	log     logrus.FieldLogger
}

func NewConsumer(cfg ConsumerConfig, log logrus.FieldLogger) *Consumer {
	start := kafka.FirstOffset
	if cfg.FromLatest {
		start = kafka.LastOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        250 * time.Millisecond,
		StartOffset:    start,
		CommitInterval: 0, // manual commit
	})
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:       r,
		workers: workers,
		backoff: 200 * time.Millisecond,
		log:     log.WithFields(logrus.Fields{"group": cfg.GroupID, "topic": cfg.Topic}),
	}
}

// Start fetches messages and hands them to the worker pool until ctx is
// done. With more than one worker, per-partition order is not preserved and
// one worker may commit past a message another is still retrying.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if !c.process(ctx, h, m) {
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					c.log.WithError(err).Warn("commit failed")
				}
			}
		}()
	}
	defer wg.Wait()
	defer close(jobs)

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// process runs h until it succeeds, so no later commit on the partition can
// pass over a failed offset. It reports false when ctx ended first; the
// message then stays uncommitted.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return true
		}
		c.log.WithError(err).WithFields(logrus.Fields{
			"partition": m.Partition,
			"offset":    m.Offset,
			"attempt":   attempt,
		}).Warn("handler failed, retrying")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.backoff):
		}
	}
}
