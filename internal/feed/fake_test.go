package feed

import (
	"context"
	"errors"
	"sync"
)

type fakeSource struct {
	ch     chan result
	mu     sync.Mutex
	closed bool
}

type result struct {
	msg Message
	err error
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan result, 16)}
}

func (f *fakeSource) send(topic, payload string) {
	f.ch <- result{msg: Message{Topic: topic, Payload: []byte(payload)}}
}

func (f *fakeSource) fail(err error) {
	f.ch <- result{err: err}
}

func (f *fakeSource) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case r := <-f.ch:
		return r.msg, r.err
	}
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func dialerFor(src Source) Dialer {
	return func(ctx context.Context) (Source, error) { return src, nil }
}

var errTransport = errors.New("socket gone")
