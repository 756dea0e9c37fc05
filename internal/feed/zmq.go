package feed

import (
	"context"
	"fmt"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

const defaultRecvTimeout = 250 * time.Millisecond

// ZMQSource subscribes to a ZeroMQ publisher. Receives time out periodically
// so a cancelled context is noticed without closing the socket underneath a
// blocked call.
type ZMQSource struct {
	socket *zmq.Socket
}

// DialZMQ connects a SUB socket to addr and subscribes to each topic prefix.
func DialZMQ(addr string, topics []string, recvTimeout time.Duration) (*ZMQSource, error) {
	if recvTimeout <= 0 {
		recvTimeout = defaultRecvTimeout
	}
	sock, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("create zmq socket: %w", err)
	}
	fail := func(step string, err error) (*ZMQSource, error) {
		sock.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	if err := sock.SetLinger(0); err != nil {
		return fail("set zmq linger", err)
	}
	if err := sock.SetRcvtimeo(recvTimeout); err != nil {
		return fail("set zmq receive timeout", err)
	}
	if err := sock.Connect(addr); err != nil {
		return fail(fmt.Sprintf("connect %s", addr), err)
	}
	for _, topic := range topics {
		if err := sock.SetSubscribe(topic); err != nil {
			return fail(fmt.Sprintf("subscribe %q", topic), err)
		}
	}
	return &ZMQSource{socket: sock}, nil
}

// ZMQDialer returns a Dialer that opens a ZMQSource on every call.
func ZMQDialer(addr string, topics []string, recvTimeout time.Duration) Dialer {
	return func(ctx context.Context) (Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return DialZMQ(addr, topics, recvTimeout)
	}
}

func (s *ZMQSource) Receive(ctx context.Context) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		frames, err := s.socket.RecvMessageBytes(0)
		if err != nil {
			switch zmq.AsErrno(err) {
			case zmq.Errno(syscall.EAGAIN), zmq.Errno(syscall.EINTR):
				continue
			}
			return Message{}, fmt.Errorf("zmq receive: %w", err)
		}
		return SplitFrames(frames)
	}
}

func (s *ZMQSource) Close() error {
	return s.socket.Close()
}
