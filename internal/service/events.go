package service

import (
	"context"
	"encoding/json"

	"shop-admin/internal/broadcast"
	"shop-admin/internal/domain"
	"shop-admin/internal/repository"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Notifier is told after a commit that new outbox events are waiting
type Notifier interface {
	Notify()
}

type noopNotifier struct{}

func (noopNotifier) Notify() {}

func orNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// recordEvent appends an event to the outbox inside the caller's
// transaction. The socket id of the requesting browser, if any, is kept so
// the event is not echoed back to it.
func recordEvent(ctx context.Context, outbox repository.OutboxRepository, channel, name string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s payload", name)
	}
	return outbox.Append(ctx, &domain.Event{
		Channel:         channel,
		Name:            name,
		Payload:         body,
		ExcludeSocketID: broadcast.SocketIDFromContext(ctx),
	})
}

// surface logs unexpected failures with context and passes caller-actionable
// errors through unchanged.
func surface(logger *zap.Logger, err error, msg string, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrConflict) {
		return err
	}
	logger.Error(msg, append(fields, zap.Error(err))...)
	return err
}
