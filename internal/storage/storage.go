// Package storage records built vector stores in a catalog.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kura/internal/models"
)

// ErrStoreNotFound is returned by GetStore when no store of that name was recorded.
var ErrStoreNotFound = errors.New("store not found")

// Catalog defines the store catalog operations.
type Catalog interface {
	RecordStore(ctx context.Context, info *models.StoreInfo) error
	GetStore(ctx context.Context, name string) (*models.StoreInfo, error)
	// ListStores returns stores newest first.
	ListStores(ctx context.Context, offset, limit int) ([]*models.StoreInfo, error)
	CountStores(ctx context.Context) (int64, error)

	Close() error
}
