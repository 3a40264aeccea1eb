package storage

import (
	"context"

	"transferWatch/internal/model"
)

// Storage defines a sink for transfer events.
type Storage interface {
	PutEvents(ctx context.Context, events []model.TransferEvent) error
}
