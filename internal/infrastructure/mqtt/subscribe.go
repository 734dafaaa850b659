package mqtt

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
)

// Subscription is a handle returned by Subscribe.
//
// It stays registered with the client across reconnects until passed to
// Unsubscribe.
type Subscription struct {
	topic   string
	handler MessageHandler

	// epoch is the connection epoch the broker subscribe succeeded in, 0 when
	// not subscribed.
	epoch   atomic.Uint64
	removed atomic.Bool
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Subscribe registers a handler for messages on the exact topic.
//
// Wildcards are rejected: inbound dispatch matches topics exactly. The
// subscription is recorded even while disconnected and is sent to the broker
// on the next connection. When already connected the broker subscribe is
// issued before returning; a failure there is logged and retried on the next
// reconnect.
//
// Parameters:
//   - topic: The exact topic to subscribe to
//   - handler: Callback function invoked for each message
//
// Returns:
//   - *Subscription: Handle for Unsubscribe
//   - error: ErrInvalidTopic or ErrSubscribeFailed for invalid arguments
//
// Example:
//
//	sub, err := client.Subscribe("graylogic-agent/bench/VirtualSwitch/state",
//	    func(topic string, payload []byte) error {
//	        return toggle(payload)
//	    })
func (c *Client) Subscribe(topic string, handler MessageHandler) (*Subscription, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return nil, fmt.Errorf("%w: wildcards are not supported: %q", ErrInvalidTopic, topic)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	sub := &Subscription{topic: topic, handler: handler}

	c.subMu.Lock()
	c.subscriptions = append(c.subscriptions, sub)
	c.subMu.Unlock()

	if c.IsConnected() {
		c.resubscribe()
	}

	return sub, nil
}

// Unsubscribe removes a subscription.
//
// The broker unsubscribe is only sent while connected and when no other
// Subscription shares the topic. Any messages in flight may still be
// delivered.
//
// Returns:
//   - error: nil on success, or wrapped ErrUnsubscribeFailed
func (c *Client) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return fmt.Errorf("%w: nil subscription", ErrUnsubscribeFailed)
	}

	sub.removed.Store(true)

	c.subMu.Lock()
	c.subscriptions = slices.DeleteFunc(c.subscriptions, func(s *Subscription) bool {
		return s == sub
	})
	shared := slices.ContainsFunc(c.subscriptions, func(s *Subscription) bool {
		return s.topic == sub.topic
	})
	c.subMu.Unlock()

	if shared || !c.IsConnected() {
		return nil
	}

	token := c.client.Unsubscribe(sub.topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of registered subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// PendingCount returns the number of registered subscriptions not yet
// subscribed on the current connection.
func (c *Client) PendingCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	n := 0
	for _, sub := range c.subscriptions {
		if !c.isSubscribed(sub) {
			n++
		}
	}
	return n
}

// HasSubscription checks if a subscription exists for the exact topic.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return slices.ContainsFunc(c.subscriptions, func(s *Subscription) bool {
		return s.topic == topic
	})
}
