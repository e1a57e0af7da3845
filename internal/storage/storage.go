// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"gazette_bot/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
// Subscribers are read and written as whole records keyed by chat ID.
type Storage interface {
	GetSubscriber(ctx context.Context, chatID int64) (*model.Subscriber, error)
	SaveSubscriber(ctx context.Context, sub *model.Subscriber) error
	ListSubscribers(ctx context.Context, optedInOnly bool) ([]model.Subscriber, error)

	MarkBroadcast(ctx context.Context, edition int) error
	WasBroadcast(ctx context.Context, edition int) (bool, error)

	Close() error
}
