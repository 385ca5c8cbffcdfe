package subscription

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
)

// SubscriptionBufferSize is the buffer size between the producer and the forwarding loop.
var SubscriptionBufferSize = 8

// Subscription forwards values from a producer to a consumer channel, in order.
//
// The producer calls Send/SendError and finally Close once it has nothing more
// to send; values already sent are still delivered. The consumer may stop early
// with Unsubscribe. Done is closed when forwarding has stopped for either reason.
type Subscription[T any] struct {
	channel chan<- T
	in      chan T
	err     chan error

	closeOnce sync.Once
	quitOnce  sync.Once
	quit      chan struct{}
	done      chan struct{}
}

func NewSubscription[T any](channel chan<- T) *Subscription[T] {
	s := &Subscription[T]{
		channel: channel,
		in:      make(chan T, SubscriptionBufferSize),
		err:     make(chan error, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Client returns the consumer side of the subscription.
func (s *Subscription[T]) Client() *ClientSubscription[T] {
	return &ClientSubscription[T]{s: s}
}

// Send queues value for delivery.
func (s *Subscription[T]) Send(ctx context.Context, value T) error {
	if s.isDone() {
		return errors.Wrap(errs.Closed, "subscription is closed")
	}
	select {
	case s.in <- value:
		return nil
	case <-s.done:
		return errors.Wrap(errs.Closed, "subscription is closed")
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// SendError reports a producer failure. Only the first error is kept.
func (s *Subscription[T]) SendError(ctx context.Context, err error) error {
	select {
	case s.err <- err:
		return nil
	case <-s.done:
		return errors.Wrap(errs.Closed, "subscription is closed")
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	default:
		return nil
	}
}

// Close marks the end of the stream. Must not be called concurrently with Send.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() { close(s.in) })
}

// Unsubscribe stops forwarding, dropping values not yet delivered.
func (s *Subscription[T]) Unsubscribe() {
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Subscription[T]) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscription[T]) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case value, ok := <-s.in:
			if !ok {
				return
			}
			select {
			case s.channel <- value:
			case <-s.quit:
				return
			}
		}
	}
}

// ClientSubscription is the consumer side of a Subscription.
type ClientSubscription[T any] struct {
	s *Subscription[T]
}

func (c *ClientSubscription[T]) Unsubscribe() {
	c.s.Unsubscribe()
}

// Err returns the channel of producer errors.
func (c *ClientSubscription[T]) Err() <-chan error {
	return c.s.err
}

// Done is closed once every value has been delivered or the consumer unsubscribed.
func (c *ClientSubscription[T]) Done() <-chan struct{} {
	return c.s.done
}
