package service

import (
	"context"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
)

// clientConn represents a client connection with priority queues for messaging.
type clientConn struct {
	playerID    string
	highQueue   chan *ServerMessage // For high-priority world events
	normalQueue chan *ServerMessage // For normal events
	done        chan struct{}
	closeOnce   sync.Once
	dropped     atomic.Int64
}

func newClientConn(playerID string) *clientConn {
	return &clientConn{
		playerID:    playerID,
		highQueue:   make(chan *ServerMessage, sendQueueSize),
		normalQueue: make(chan *ServerMessage, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// send enqueues a message into the appropriate queue. If block is true, it blocks until the message
// is enqueued or the connection closes; otherwise it drops on overflow.
func (c *clientConn) send(msg *ServerMessage, high, block bool) bool {
	q := c.normalQueue
	if high {
		q = c.highQueue
	}
	select {
	case <-c.done:
		return false
	default:
	}
	if block {
		select {
		case q <- msg:
			return true
		case <-c.done:
			return false
		}
	}
	select {
	case q <- msg:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// close останавливает запись; сообщения высокого приоритета успевают уйти
func (c *clientConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writeLoop отправляет сообщения в поток, пока соединение не закрыто
func (c *clientConn) writeLoop(ctx context.Context, stream grpc.BidiStreamingServer[ClientMessage, ServerMessage]) error {
	for {
		var msg *ServerMessage
		select {
		case msg = <-c.highQueue:
		default:
			select {
			case msg = <-c.highQueue:
			case msg = <-c.normalQueue:
			case <-c.done:
				return c.flushHigh(stream)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
		eventsSent.Add(1)
	}
}

func (c *clientConn) flushHigh(stream grpc.BidiStreamingServer[ClientMessage, ServerMessage]) error {
	for {
		select {
		case msg := <-c.highQueue:
			if err := stream.Send(msg); err != nil {
				return err
			}
			eventsSent.Add(1)
		default:
			return nil
		}
	}
}
