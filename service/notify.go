package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TradeStacksInc/UNIvote2/notification"
)

// Dispatcher delivers notifications asynchronously. Dispatch never
// blocks and never fails the triggering operation; delivery outcomes
// are logged on their own channel of failure.
type Dispatcher struct {
	sender      notification.Sender
	ch          chan notification.Message
	wg          sync.WaitGroup
	shutdownCh  chan struct{}
	sendTimeout time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	stopped bool
}

func NewDispatcher(sender notification.Sender, queueSize int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sender:      sender,
		ch:          make(chan notification.Message, queueSize),
		shutdownCh:  make(chan struct{}),
		sendTimeout: 15 * time.Second,
		logger:      logger,
	}
}

// Start begins processing queued messages.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
}

// Stop shuts the worker down after the queue drains. Dispatch calls
// arriving after Stop are dropped with a warning.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	close(d.shutdownCh)
	d.wg.Wait()

	// A Dispatch that won the race against the stopped flag has already
	// enqueued; nothing new can arrive now, so one more sweep empties
	// the channel for good.
	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		default:
			return
		}
	}
}

// Dispatch queues a message without waiting. A full queue or a stopped
// dispatcher drops the message with a warning rather than stalling the
// caller.
func (d *Dispatcher) Dispatch(msg notification.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		d.logger.Warn("dispatcher stopped, message dropped",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject))
		return
	}
	select {
	case d.ch <- msg:
	default:
		d.logger.Warn("notification queue full, message dropped",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject))
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.shutdownCh:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg notification.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.logger.Warn("notification delivery failed",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err))
		return
	}
	d.logger.Debug("notification delivered",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
}
