package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nsqio/go-nsq"
)

// Trigger connects job submission to the worker pool. Notify publishes a
// job id after its row is durably queued; Jobs is the stream the runner
// consumes. Triggers are hints, not state: a lost trigger leaves the job
// queued until startup recovery or an explicit processing request picks it
// up.
type Trigger interface {
	Notify(ctx context.Context, jobID string) error
	Jobs() <-chan string
	Stop()
}

// ChannelTrigger is the in-process trigger used when no NSQ address is
// configured. A full buffer drops the notification rather than blocking the
// submit path.
type ChannelTrigger struct {
	ch     chan string
	logger *slog.Logger
}

// NewChannelTrigger creates an in-process trigger with the given buffer size.
func NewChannelTrigger(bufferSize int, logger *slog.Logger) *ChannelTrigger {
	return &ChannelTrigger{
		ch:     make(chan string, bufferSize),
		logger: logger,
	}
}

var _ Trigger = (*ChannelTrigger)(nil)

func (t *ChannelTrigger) Notify(ctx context.Context, jobID string) error {
	select {
	case t.ch <- jobID:
		return nil
	default:
		t.logger.WarnContext(ctx, "trigger buffer full, dropping notification",
			"job_id", jobID)
		return nil
	}
}

func (t *ChannelTrigger) Jobs() <-chan string {
	return t.ch
}

func (t *ChannelTrigger) Stop() {
	close(t.ch)
}

// NSQTrigger publishes job ids to an NSQ topic and consumes them back on a
// shared channel, giving at-least-once triggering across processes.
type NSQTrigger struct {
	producer *nsq.Producer
	consumer *nsq.Consumer
	topic    string
	ch       chan string
	logger   *slog.Logger
}

// NSQTriggerConfig holds the connection settings for the NSQ trigger.
type NSQTriggerConfig struct {
	NSQDAddress string
	Topic       string
	Channel     string
	BufferSize  int
}

// NewNSQTrigger connects a producer and consumer to nsqd. The consumer joins
// the given channel so every running instance shares one stream of job ids.
func NewNSQTrigger(cfg NSQTriggerConfig, logger *slog.Logger) (*NSQTrigger, error) {
	nsqCfg := nsq.NewConfig()

	producer, err := nsq.NewProducer(cfg.NSQDAddress, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("creating nsq producer: %w", err)
	}

	consumer, err := nsq.NewConsumer(cfg.Topic, cfg.Channel, nsqCfg)
	if err != nil {
		producer.Stop()
		return nil, fmt.Errorf("creating nsq consumer: %w", err)
	}

	t := &NSQTrigger{
		producer: producer,
		consumer: consumer,
		topic:    cfg.Topic,
		ch:       make(chan string, cfg.BufferSize),
		logger:   logger,
	}

	consumer.AddHandler(nsq.HandlerFunc(func(msg *nsq.Message) error {
		jobID := string(msg.Body)
		select {
		case t.ch <- jobID:
		default:
			// Requeue through NSQ rather than block the consumer.
			msg.Requeue(-1)
			return nil
		}
		return nil
	}))

	if err := consumer.ConnectToNSQD(cfg.NSQDAddress); err != nil {
		producer.Stop()
		consumer.Stop()
		return nil, fmt.Errorf("connecting nsq consumer: %w", err)
	}

	return t, nil
}

var _ Trigger = (*NSQTrigger)(nil)

func (t *NSQTrigger) Notify(ctx context.Context, jobID string) error {
	if err := t.producer.Publish(t.topic, []byte(jobID)); err != nil {
		t.logger.WarnContext(ctx, "failed to publish trigger",
			"job_id", jobID,
			"error", err)
		return err
	}
	return nil
}

func (t *NSQTrigger) Jobs() <-chan string {
	return t.ch
}

func (t *NSQTrigger) Stop() {
	t.consumer.Stop()
	<-t.consumer.StopChan
	t.producer.Stop()
	close(t.ch)
}
