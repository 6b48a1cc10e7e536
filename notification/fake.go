package notification

import (
	"context"
	"sync"
)

// FakeSender records messages in memory. Tests flip Err to simulate a
// failing delivery channel.
type FakeSender struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func NewFakeSender() *FakeSender {
	return &FakeSender{}
}

var _ Sender = (*FakeSender)(nil)

func (f *FakeSender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *FakeSender) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.messages))
	copy(out, f.messages)
	return out
}
