package mqtt

import (
	"fmt"
)

// Subscribe registers handler for every topic in one SUBSCRIBE packet.
// Clean sessions are used, so subscriptions live exactly as long as this client.
func (c *Client) Subscribe(topics []string, handler MessageHandler) error {
	if len(topics) == 0 {
		return ErrInvalidTopic
	}
	if c.opts.QoS > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	filters := make(map[string]byte, len(topics))
	for _, topic := range topics {
		if topic == "" {
			return ErrInvalidTopic
		}
		filters[topic] = c.opts.QoS
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.SubscribeMultiple(filters, c.wrapHandler(handler))
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, c.opts.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}
