package utils

import (
	"github.com/sasha-s/go-deadlock"
)

// Topic fans values out to subscribers without ever blocking the
// publisher. A subscriber whose buffer is full misses the value and is
// reported back to the caller.
type Topic[T any] struct {
	buffer      int
	subscribers map[*Subscriber[T]]struct{}
	mutex       deadlock.Mutex
}

func NewTopic[T any](buffer int) *Topic[T] {
	return &Topic[T]{
		buffer:      buffer,
		subscribers: make(map[*Subscriber[T]]struct{}),
	}
}

// Publish returns the subscribers that could not keep up.
func (t *Topic[T]) Publish(value T) []*Subscriber[T] {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var slow []*Subscriber[T]
	for subscriber := range t.subscribers {
		select {
		case subscriber.channel <- value:
		default:
			slow = append(slow, subscriber)
		}
	}
	return slow
}

func (t *Topic[T]) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.subscribers)
}

type Subscriber[T any] struct {
	channel chan T
	topic   *Topic[T]
}

func (t *Topic[T]) Subscribe() *Subscriber[T] {
	subscriber := &Subscriber[T]{
		channel: make(chan T, t.buffer),
		topic:   t,
	}

	t.mutex.Lock()
	t.subscribers[subscriber] = struct{}{}
	t.mutex.Unlock()

	return subscriber
}

func (s *Subscriber[T]) Recv() <-chan T {
	return s.channel
}

// Done unsubscribes. Values already buffered stay readable.
func (s *Subscriber[T]) Done() {
	topic := s.topic
	topic.mutex.Lock()
	delete(topic.subscribers, s)
	topic.mutex.Unlock()
}
