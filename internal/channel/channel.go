// Package channel carries fixed-width command records from one perception
// task to the arbiter.
//
// Each Channel has exactly one producer and one consumer. The producer blocks
// while the buffer is full; the consumer never blocks.
package channel

import (
	"context"
	"errors"
	"log"
	"sync"

	"AcademyBot/internal/model"
	"AcademyBot/internal/parser"
)

// ErrChannelClosed is returned by Send after Close.
var ErrChannelClosed = errors.New("channel closed")

// Channel is a bounded single-producer/single-consumer record queue.
type Channel struct {
	name   string
	parser parser.Parser
	buf    chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a channel holding up to capacity records encoded with p.
func New(name string, p parser.Parser, capacity int) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel{
		name:   name,
		parser: p,
		buf:    make(chan []byte, capacity),
		done:   make(chan struct{}),
	}
}

// Name identifies the channel in logs.
func (c *Channel) Name() string { return c.name }

// Len returns the number of buffered records.
func (c *Channel) Len() int { return len(c.buf) }

// Send encodes m and appends it, blocking while the channel is full.
func (c *Channel) Send(ctx context.Context, m model.Message) error {
	rec, err := c.parser.EncodeRecord(m)
	if err != nil {
		return err
	}
	return c.SendRecord(ctx, rec)
}

// SendRecord appends a pre-encoded record. Records of the wrong width are
// accepted as-is; the consumer rejects what it cannot decode.
func (c *Channel) SendRecord(ctx context.Context, rec []byte) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.buf <- rec:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read returns the next buffered message without blocking. It reports false
// when nothing is buffered, after Close, or when the record is blank or
// cannot be decoded; undecodable records are logged and dropped.
func (c *Channel) Read() (model.Message, bool) {
	m, ok, err := c.Receive()
	if err != nil {
		log.Printf("[channel:%s] dropped record: %v", c.name, err)
	}
	return m, ok
}

// Receive is Read for consumers that account for rejected records. A record
// that cannot be decoded is consumed and its decode error returned with ok
// false. Blank records are skipped silently.
func (c *Channel) Receive() (model.Message, bool, error) {
	select {
	case <-c.done:
		return model.Message{}, false, nil
	default:
	}
	select {
	case rec := <-c.buf:
		m, err := c.parser.DecodeRecord(rec)
		if err != nil {
			if errors.Is(err, parser.ErrEmptyRecord) {
				return model.Message{}, false, nil
			}
			return model.Message{}, false, err
		}
		return m, true, nil
	default:
		return model.Message{}, false, nil
	}
}

// Drain discards every buffered record and returns how many were dropped.
func (c *Channel) Drain() int {
	n := 0
	for {
		select {
		case <-c.buf:
			n++
		default:
			return n
		}
	}
}

// Close marks the producer as permanently silent. It is safe to call more
// than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
