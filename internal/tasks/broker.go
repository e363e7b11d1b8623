package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
)

// BrokerConfig points the broker at Redis.
type BrokerConfig struct {
	Addr        string
	Password    string
	Queue       string
	Concurrency int
	JobTimeout  time.Duration
}

// Broker runs jobs through Redis with asynq. The job key becomes the asynq
// task id, so a second submit while the first is queued or running is
// rejected with ErrDuplicate, matching Queue.
type Broker struct {
	config    BrokerConfig
	client    *asynq.Client
	server    *asynq.Server
	inspector *asynq.Inspector
	mux       *asynq.ServeMux
	log       *zap.SugaredLogger
	started   bool
}

// NewBroker connects to Redis. Call Start after registering handlers.
func NewBroker(config BrokerConfig, log *zap.SugaredLogger) *Broker {
	if config.Queue == "" {
		config.Queue = "facegift"
	}
	if config.Concurrency < 1 {
		config.Concurrency = DefaultConfig().Workers
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}

	opt := asynq.RedisClientOpt{Addr: config.Addr, Password: config.Password}
	log = logging.OrNop(log)

	return &Broker{
		config:    config,
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: config.Concurrency,
			Queues:      map[string]int{config.Queue: 1},
			Logger:      log,
		}),
		mux: asynq.NewServeMux(),
		log: log,
	}
}

// Register sets the handler for kind.
func (b *Broker) Register(kind string, h Handler) {
	b.mux.HandleFunc(kind, func(ctx context.Context, t *asynq.Task) error {
		key, _ := asynq.GetTaskID(ctx)
		return h(ctx, Job{Key: key, Kind: t.Type(), Payload: t.Payload()})
	})
}

// Start begins processing in the background.
func (b *Broker) Start() error {
	if err := b.server.Start(b.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	b.started = true
	b.log.Infof("task broker consuming queue %q from %s", b.config.Queue, b.config.Addr)
	return nil
}

// Submit enqueues job. Failed jobs are not retried; side effects like
// payments must not repeat. A failed or finished job still holding the key
// in Redis is removed so the key can be used again.
func (b *Broker) Submit(job Job) error {
	if job.Key == "" {
		job.Key = job.Kind
	}
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = b.config.JobTimeout
	}

	err := b.enqueue(job, timeout)
	if errors.Is(err, asynq.ErrTaskIDConflict) && b.reclaim(job.Key) {
		err = b.enqueue(job, timeout)
	}
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("%w: %s", ErrDuplicate, job.Key)
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Key, err)
	}
	return nil
}

func (b *Broker) enqueue(job Job, timeout time.Duration) error {
	_, err := b.client.Enqueue(asynq.NewTask(job.Kind, job.Payload),
		asynq.TaskID(job.Key),
		asynq.Queue(b.config.Queue),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
	)
	return err
}

// reclaim deletes the task holding key when it is archived or completed.
// Pending and running tasks keep the key.
func (b *Broker) reclaim(key string) bool {
	info, err := b.inspector.GetTaskInfo(b.config.Queue, key)
	if err != nil {
		b.log.Debugf("task %s: %v", key, err)
		return false
	}
	if info.State != asynq.TaskStateArchived && info.State != asynq.TaskStateCompleted {
		return false
	}
	if err := b.inspector.DeleteTask(b.config.Queue, key); err != nil {
		b.log.Warnf("delete %s task %s: %v", info.State, key, err)
		return false
	}
	b.log.Debugf("reclaimed key of %s task %s", info.State, key)
	return true
}

// Cancel deletes a queued job or signals a running one.
func (b *Broker) Cancel(key string) bool {
	if err := b.inspector.DeleteTask(b.config.Queue, key); err == nil {
		return true
	}
	return b.inspector.CancelProcessing(key) == nil
}

// Close stops the server and closes the Redis connections.
func (b *Broker) Close() error {
	if b.started {
		b.server.Shutdown()
	}
	return errors.Join(b.client.Close(), b.inspector.Close())
}
