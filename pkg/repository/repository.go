package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/smallbiznis/cloudbill/pkg/db/option"
)

// Repository is the generic lookup surface shared by feature services.
// Query structs filter on their non-zero fields only.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil without error when no row matches.
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Count(ctx context.Context, query *T) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
}

// ProvideStore builds a Repository bound to conn, which may be an open
// transaction.
func ProvideStore[T any](conn *gorm.DB) Repository[T] {
	return &store[T]{conn: conn}
}
