// Package storage defines the delivery journal interface and its implementations.
package storage

import (
	"context"

	"dynamic_bot/internal/model"
)

// Journal records the outcome of every dispatched notification.
// It is an audit log only; novelty state is never restored from it.
type Journal interface {
	RecordDelivery(ctx context.Context, d *model.Delivery) error
	ListDeliveries(ctx context.Context, subjectID int64, limit int) ([]model.Delivery, error)
	CountDeliveries(ctx context.Context) (map[model.DeliveryStatus]int, error)

	Close() error
}
