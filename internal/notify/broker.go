package notify

import (
	"context"
	"encoding/json"

	"github.com/microblog-hq/microblog/internal/mq"
	"go.uber.org/zap"
)

// BrokerDispatcher publishes confirmation messages as JSON on a broker
// channel.
type BrokerDispatcher struct {
	backend  string
	channel  string
	composer Composer
	pub      mq.Publisher
	logger   *zap.Logger
}

func NewBrokerDispatcher(backend string, pub mq.Publisher, channel string, composer Composer, logger *zap.Logger) *BrokerDispatcher {
	return &BrokerDispatcher{
		backend:  backend,
		channel:  channel,
		composer: composer,
		pub:      pub,
		logger:   logger,
	}
}

func (d *BrokerDispatcher) SendConfirmation(ctx context.Context, email, token string) error {
	msg := d.composer.Compose(email, token)
	data, err := json.Marshal(msg)
	if err != nil {
		return &TransportError{Backend: d.backend, Err: err}
	}

	id, err := d.pub.Publish(ctx, d.channel, mq.Message{
		ID:          msg.ID,
		ContentType: "application/json",
		Data:        data,
		Attributes:  map[string]string{"kind": "account_confirmation"},
	})
	if err != nil {
		return &TransportError{Backend: d.backend, Err: err}
	}

	d.logger.Debug("confirmation published",
		zap.String("channel", d.channel),
		zap.String("message_id", id),
	)
	return nil
}

// Close closes the underlying publisher.
func (d *BrokerDispatcher) Close() error {
	return d.pub.Close()
}
