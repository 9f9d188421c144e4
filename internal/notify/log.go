package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogDispatcher writes confirmation messages to the log. It is meant for
// development, where following the logged link stands in for reading mail.
type LogDispatcher struct {
	composer Composer
	logger   *zap.Logger
}

func NewLogDispatcher(composer Composer, logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{composer: composer, logger: logger}
}

func (d *LogDispatcher) SendConfirmation(ctx context.Context, email, token string) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Backend: "log", Err: err}
	}
	msg := d.composer.Compose(email, token)
	d.logger.Info("confirmation message",
		zap.String("message_id", msg.ID),
		zap.String("to", msg.To),
		zap.String("link", msg.Link),
	)
	return nil
}
