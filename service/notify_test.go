package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/TradeStacksInc/UNIvote2/notification"
)

func TestDispatcherDeliversQueuedMessages(t *testing.T) {
	sender := notification.NewFakeSender()
	dispatcher := NewDispatcher(sender, 8, zap.NewNop())
	dispatcher.Start()

	dispatcher.Dispatch(notification.Welcome("a@example.edu", "Ada"))
	dispatcher.Dispatch(notification.Welcome("b@example.edu", "Ben"))

	// Stop drains the queue before returning.
	dispatcher.Stop()

	messages := sender.Messages()
	assert.Len(t, messages, 2)
}

func TestDispatcherDropsAfterStop(t *testing.T) {
	sender := notification.NewFakeSender()
	dispatcher := NewDispatcher(sender, 8, zap.NewNop())
	dispatcher.Start()
	dispatcher.Stop()

	dispatcher.Dispatch(notification.Welcome("a@example.edu", "Ada"))

	assert.Empty(t, sender.Messages())
}

func TestDispatcherStopSweepsUndeliveredMessages(t *testing.T) {
	sender := notification.NewFakeSender()
	// Never started: the message sits in the queue until Stop's final
	// sweep, which must not strand it.
	dispatcher := NewDispatcher(sender, 8, zap.NewNop())
	dispatcher.Dispatch(notification.Welcome("a@example.edu", "Ada"))
	dispatcher.Stop()

	assert.Len(t, sender.Messages(), 1)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sender := notification.NewFakeSender()
	// Never started: the queue only fills.
	dispatcher := NewDispatcher(sender, 1, zap.NewNop())

	dispatcher.Dispatch(notification.Welcome("a@example.edu", "Ada"))
	dispatcher.Dispatch(notification.Welcome("b@example.edu", "Ben")) // dropped, not blocking

	assert.Empty(t, sender.Messages())
}
