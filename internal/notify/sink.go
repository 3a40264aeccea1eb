package notify

import (
	"context"

	"go.uber.org/zap"

	"transferWatch/internal/model"
	"transferWatch/internal/storage"
)

// StorageDestination archives transfer events; text-only messages are skipped.
type StorageDestination struct {
	name  string
	store storage.Storage
}

func NewStorageDestination(name string, store storage.Storage) *StorageDestination {
	return &StorageDestination{name: name, store: store}
}

func (s *StorageDestination) Name() string { return s.name }

func (s *StorageDestination) Send(ctx context.Context, msg Message) error {
	if msg.Event == nil {
		return nil
	}
	return s.store.PutEvents(ctx, []model.TransferEvent{*msg.Event})
}

// LogDestination writes messages to the logger. Used when no chat is configured.
type LogDestination struct {
	logger *zap.Logger
}

func NewLogDestination(logger *zap.Logger) *LogDestination {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDestination{logger: logger}
}

func (l *LogDestination) Name() string { return "log" }

func (l *LogDestination) Send(_ context.Context, msg Message) error {
	l.logger.Info("notification", zap.String("direction", string(msg.Direction)), zap.String("text", msg.Text))
	return nil
}
