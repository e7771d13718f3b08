package repository

import (
	"context"

	"gpu-notebook-bridge/internal/domain/model"
)

// NodeRegistry keeps connected nodes in insertion order.
type NodeRegistry interface {
	Add(ctx context.Context, node *model.Node) error
	FindByID(ctx context.Context, id string) (*model.Node, error)
	// List returns nodes oldest first.
	List(ctx context.Context) ([]*model.Node, error)
	Count(ctx context.Context) (int, error)
}
