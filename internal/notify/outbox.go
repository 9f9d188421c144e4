package notify

import (
	"context"
	"path"

	"github.com/microblog-hq/microblog/internal/storage"
	"go.uber.org/zap"
)

const outboxPrefix = "confirmations"

// OutboxDispatcher drops each confirmation message as an .eml object into a
// bucket drained by a mail relay.
type OutboxDispatcher struct {
	backend  string
	composer Composer
	objects  storage.ObjectWriter
	logger   *zap.Logger
}

func NewOutboxDispatcher(backend string, objects storage.ObjectWriter, composer Composer, logger *zap.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		backend:  backend,
		composer: composer,
		objects:  objects,
		logger:   logger,
	}
}

func (d *OutboxDispatcher) SendConfirmation(ctx context.Context, email, token string) error {
	msg := d.composer.Compose(email, token)
	key := path.Join(outboxPrefix, msg.ID+".eml")

	err := d.objects.Put(ctx, storage.Object{
		Key:         key,
		ContentType: "message/rfc822",
		Body:        msg.EML(),
		Metadata:    map[string]string{"kind": "account_confirmation"},
	})
	if err != nil {
		return &TransportError{Backend: d.backend, Err: err}
	}

	d.logger.Debug("confirmation written to outbox",
		zap.String("bucket", d.objects.Bucket()),
		zap.String("key", key),
	)
	return nil
}
