package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// ErrMalformed marks a feed message that could not be split or decoded.
// Such messages are dropped; they never stop the collector.
var ErrMalformed = errors.New("malformed feed message")

// Message is one publication on the metadata feed.
type Message struct {
	Topic   string
	Payload []byte
}

// Source yields feed messages. Receive blocks until a message arrives, the
// context is cancelled or the transport fails.
type Source interface {
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Dialer opens a fresh Source. The collector dials once per run, so a
// restarted collector gets a new connection.
type Dialer func(ctx context.Context) (Source, error)

// SplitFrames turns the frames of one transport message into a Message.
// A single frame carries "topic payload" separated by the first space; two
// frames carry topic and payload separately.
func SplitFrames(frames [][]byte) (Message, error) {
	switch len(frames) {
	case 1:
		idx := bytes.IndexByte(frames[0], ' ')
		if idx <= 0 {
			return Message{}, fmt.Errorf("%w: no topic separator", ErrMalformed)
		}
		return Message{
			Topic:   string(frames[0][:idx]),
			Payload: bytes.TrimSpace(frames[0][idx+1:]),
		}, nil
	case 2:
		if len(frames[0]) == 0 {
			return Message{}, fmt.Errorf("%w: empty topic frame", ErrMalformed)
		}
		return Message{
			Topic:   string(frames[0]),
			Payload: bytes.TrimSpace(frames[1]),
		}, nil
	default:
		return Message{}, fmt.Errorf("%w: %d frames", ErrMalformed, len(frames))
	}
}
