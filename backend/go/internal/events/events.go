// Package events 负责把完成的对话轮次发布给下游消费者。
package events

import (
	"context"
	"sync"
	"time"

	"PersonaGen/backend/go/internal/models"
	"PersonaGen/backend/go/pkg/logger"
)

// Publisher 发布对话事件。实现必须可以被并发调用。
type Publisher interface {
	PublishTurn(ctx context.Context, event *models.TurnEvent) error
	Close() error
}

// Noop 丢弃所有事件，是未配置 Kafka 时的默认实现。
type Noop struct{}

func (Noop) PublishTurn(context.Context, *models.TurnEvent) error { return nil }
func (Noop) Close() error                                           { return nil }

// AsyncPublisher 在后台 goroutine 中转发事件，使对话不必等待消息队列。
// 缓冲区已满时事件会被丢弃并记录警告。
type AsyncPublisher struct {
	next         Publisher
	queue        chan *models.TurnEvent
	log          *logger.Logger
	writeTimeout time.Duration

	mu        sync.RWMutex // guards closed against sends on queue
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncPublisher starts the forwarding goroutine. Close stops it after the
// queued events have been handed to next.
func NewAsyncPublisher(next Publisher, buffer int, log *logger.Logger) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	p := &AsyncPublisher{
		next:         next,
		queue:        make(chan *models.TurnEvent, buffer),
		log:          log,
		writeTimeout: 5 * time.Second,
		done:         make(chan struct{}),
	}
	go p.run()
	return p
}

// PublishTurn enqueues event without blocking. It never returns an error;
// delivery failures are logged by the forwarding goroutine. Events published
// after Close are dropped.
func (p *AsyncPublisher) PublishTurn(_ context.Context, event *models.TurnEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.WithField("profile_id", event.ProfileID).Warn("turn publisher closed, dropping event")
		return nil
	}
	select {
	case p.queue <- event:
	default:
		p.log.WithField("profile_id", event.ProfileID).Warn("turn event queue full, dropping event")
	}
	return nil
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for event := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		if err := p.next.PublishTurn(ctx, event); err != nil {
			p.log.WithError(models.NewErrorInfo(err, "publish_error")).
				WithField("profile_id", event.ProfileID).
				Warn("failed to publish turn event")
		}
		cancel()
	}
}

// Close drains the queue and closes the wrapped publisher.
func (p *AsyncPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		<-p.done
		err = p.next.Close()
	})
	return err
}
