package notify

import (
	"context"
	"fmt"

	"github.com/microblog-hq/microblog/config"
	"github.com/microblog-hq/microblog/internal/mq"
	"github.com/microblog-hq/microblog/internal/storage"
	"go.uber.org/zap"
)

// Backend names accepted in NOTIFY_BACKEND.
const (
	BackendLog      = "log"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendMinio    = "minio"
	BackendGCS      = "gcs"
)

// New builds the dispatcher selected by cfg.Notify.Backend. The returned
// close function releases backend connections and is never nil.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (Dispatcher, func() error, error) {
	noop := func() error { return nil }
	composer := NewComposer(cfg.Notify.PublicBaseURL, cfg.Notify.FromAddress)
	logger = logger.With(zap.String("notify_backend", cfg.Notify.Backend))

	switch cfg.Notify.Backend {
	case "", BackendLog:
		return NewLogDispatcher(composer, logger), noop, nil

	case BackendRabbitMQ:
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, noop, fmt.Errorf("connect rabbitmq: %w", err)
		}
		d := NewBrokerDispatcher(BackendRabbitMQ, client, cfg.Notify.Channel, composer, logger)
		return d, d.Close, nil

	case BackendPubSub:
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, noop, fmt.Errorf("connect pubsub: %w", err)
		}
		d := NewBrokerDispatcher(BackendPubSub, client, cfg.Notify.Channel, composer, logger)
		return d, d.Close, nil

	case BackendMinio:
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, noop, fmt.Errorf("connect minio: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, noop, fmt.Errorf("ensure minio bucket: %w", err)
		}
		return NewOutboxDispatcher(BackendMinio, client, composer, logger), noop, nil

	case BackendGCS:
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, noop, fmt.Errorf("connect gcs: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("ensure gcs bucket: %w", err)
		}
		return NewOutboxDispatcher(BackendGCS, client, composer, logger), client.Close, nil
	}

	return nil, noop, fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
}
