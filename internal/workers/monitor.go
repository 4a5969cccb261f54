package workers

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"celldock/internal/tasks"
)

// QueueInspector is the part of asynq.Inspector the monitor reads
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// QueueMonitor periodically logs the replay queue and warns about archived
// replays, which asynq keeps after their single attempt failed.
type QueueMonitor struct {
	inspector QueueInspector
	interval  time.Duration
	logger    *zap.Logger
	archived  int
}

var _ Worker = (*QueueMonitor)(nil)

// NewQueueMonitor creates a monitor over a Redis-backed inspector
func NewQueueMonitor(opts ServerOptions, interval time.Duration, logger *zap.Logger) *QueueMonitor {
	inspector := asynq.NewInspector(asynq.RedisClientOpt{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
	return newQueueMonitor(inspector, interval, logger)
}

func newQueueMonitor(inspector QueueInspector, interval time.Duration, logger *zap.Logger) *QueueMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &QueueMonitor{
		inspector: inspector,
		interval:  interval,
		logger:    logger,
	}
}

// Start polls until ctx is done
func (m *QueueMonitor) Start(ctx context.Context) error {
	m.logger.Info("Replay queue monitoring enabled", zap.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.check()
		}
	}
}

// check logs the queue state once
func (m *QueueMonitor) check() {
	info, err := m.inspector.GetQueueInfo(tasks.QueueReplay)
	if err != nil {
		m.logger.Warn("Failed to get queue info", zap.String("queue", tasks.QueueReplay), zap.Error(err))
		return
	}

	if info.Pending > 0 || info.Active > 0 || info.Scheduled > 0 || info.Retry > 0 {
		m.logger.Info("Queue status",
			zap.String("queue", info.Queue),
			zap.Int("pending", info.Pending),
			zap.Int("active", info.Active),
			zap.Int("scheduled", info.Scheduled),
			zap.Int("retry", info.Retry),
		)
	}

	if info.Archived > m.archived {
		m.logger.Warn("Failed replays archived",
			zap.String("queue", info.Queue),
			zap.Int("archived", info.Archived),
			zap.Int("new", info.Archived-m.archived),
		)
	}
	m.archived = info.Archived
}

// Stop closes the inspector
func (m *QueueMonitor) Stop(ctx context.Context) error {
	return m.inspector.Close()
}

// Name returns the monitor name
func (m *QueueMonitor) Name() string {
	return "queue-monitor"
}
